// Package keys builds the cache keys under which coverages are stored.
package keys

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

const prefix = "cov"

// Key identifies one coverage: the region, the strategy and options that
// produced it, and a hash of the exact geometry so an edited boundary never
// reads a stale entry.
func Key(region, strategy string, z tile.Zoom, holes bool, geom uint64) string {
	h := 0
	if holes {
		h = 1
	}
	return fmt.Sprintf("%s:%s:%s:z%d:h%d:g=%016x",
		prefix, sanitize(region), sanitize(strategy), int(z), h, geom)
}

// RegionPrefix is the common prefix of every key of region.
func RegionPrefix(region string) string {
	return prefix + ":" + sanitize(region) + ":"
}

// RegionPattern is a redis SCAN MATCH pattern for every key of region.
func RegionPattern(region string) string {
	return RegionPrefix(region) + "*"
}

// GeometryHash is a stable digest of the vertex stream of mp.
func GeometryHash(mp orb.MultiPolygon) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint64(len(mp)))
	for _, p := range mp {
		put(uint64(len(p)))
		for _, r := range p {
			put(uint64(len(r)))
			for _, pt := range r {
				put(math.Float64bits(pt[0]))
				put(math.Float64bits(pt[1]))
			}
		}
	}
	return d.Sum64()
}

// sanitize keeps keys glob-safe: only ASCII alphanumerics, '_' and '-'
// survive and runs of replacements collapse.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r <= unicode.MaxASCII && unicode.IsDigit(r))
}
