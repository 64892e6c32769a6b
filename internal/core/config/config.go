// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	OpTimeout time.Duration
	LRUSize   int
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	PolyDir        string
	OutputDir      string
	OutputFormat   string
	Zooms          []tile.Zoom
	Strategy       string
	HonorHoles     bool
	JobWorkers     int
	MaxGridTiles   int
	MetricsEnabled bool
	Cache          CacheCfg
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	workers := getint("JOB_WORKERS", 4)
	if workers < 1 {
		workers = 1
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		PolyDir:        getenv("POLY_DIR", "poly"),
		OutputDir:      getenv("OUTPUT_DIR", "out"),
		OutputFormat:   strings.ToLower(getenv("OUTPUT_FORMAT", "osm")),
		Zooms:          parseZooms(getenv("ZOOMS", "14,17")),
		Strategy:       getenv("COVERAGE_STRATEGY", "contour"),
		HonorHoles:     getbool("HONOR_HOLES", false),
		JobWorkers:     workers,
		MaxGridTiles:   max(getint("MAX_GRID_TILES", 1_000_000), 0),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", ""),
			TTL:       getduration("CACHE_TTL", 24*time.Hour),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			LRUSize:   getint("CACHE_LRU_SIZE", 256),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "region-boundaries"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "squadrats-grid"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "14,17" into zoom levels; invalid entries are skipped and an empty
// result falls back to the two standard levels
func parseZooms(s string) []tile.Zoom {
	var out []tile.Zoom
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		z, err := tile.ParseZoom(p)
		if err != nil {
			continue
		}
		out = append(out, z)
	}
	if len(out) == 0 {
		return []tile.Zoom{tile.Squadrats, tile.Squadratinhos}
	}
	return out
}
