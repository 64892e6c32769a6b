// Package poly loads region boundaries from Osmosis POLY files and GeoJSON.
package poly

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

type IncorrectFiletypeError struct {
	Filetype string
}

func (e *IncorrectFiletypeError) Error() string {
	return fmt.Sprintf("expecting polygon filetype, got %q instead", e.Filetype)
}

type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("poly line %d: %s", e.Line, e.Msg)
}

var ErrUnsupportedFormat = errors.New("unsupported boundary file format")

// Load reads a boundary file, choosing the parser by extension.
func Load(path string) (orb.MultiPolygon, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".poly":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open poly: %w", err)
		}
		defer func() { _ = f.Close() }()
		mp, err := ParsePOLY(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return mp, nil
	case ".json", ".geojson":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read geojson: %w", err)
		}
		mp, err := ParseGeoJSON(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ParsePOLY reads the Osmosis polygon filter format. Sections whose name
// starts with "!" are holes of the polygon before them. Rings are returned
// closed.
func ParsePOLY(r io.Reader) (orb.MultiPolygon, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read poly: %w", err)
		}
		return nil, &IncorrectFiletypeError{Filetype: ""}
	}
	lineNo++
	if ft := strings.TrimRight(sc.Text(), "\r\n"); ft != "polygon" {
		return nil, &IncorrectFiletypeError{Filetype: ft}
	}

	var mp orb.MultiPolygon
	for {
		name, ok := next()
		if !ok {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("read poly: %w", err)
			}
			return nil, &FormatError{Line: lineNo, Msg: "missing final END"}
		}
		if name == "END" {
			break
		}

		var ring orb.Ring
		for {
			s, ok := next()
			if !ok {
				return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("section %q not terminated", name)}
			}
			if s == "END" {
				break
			}
			p, err := parsePoint(s)
			if err != nil {
				return nil, &FormatError{Line: lineNo, Msg: err.Error()}
			}
			ring = append(ring, p)
		}
		if len(ring) > 0 && !ring.Closed() {
			ring = append(ring, ring[0])
		}

		if strings.HasPrefix(name, "!") {
			if len(mp) == 0 {
				return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("hole %q before any polygon", name)}
			}
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	if len(mp) == 0 {
		return nil, &FormatError{Line: lineNo, Msg: "no polygons"}
	}
	return mp, nil
}

func parsePoint(s string) (orb.Point, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return orb.Point{}, fmt.Errorf("expected \"lon lat\", got %q", s)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse lon: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse lat: %w", err)
	}
	return orb.Point{lon, lat}, nil
}

type DomainError struct {
	Point orb.Point
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("point %v outside the web mercator domain (|lat| <= %.4f, |lon| <= 180)", e.Point, tile.MaxLatitude)
}

// CheckDomain rejects geometry the tile transform cannot handle.
func CheckDomain(mp orb.MultiPolygon) error {
	for _, p := range mp {
		for _, r := range p {
			for _, pt := range r {
				if pt.Lon() < -180 || pt.Lon() > 180 || pt.Lat() < -tile.MaxLatitude || pt.Lat() > tile.MaxLatitude {
					return &DomainError{Point: pt}
				}
			}
		}
	}
	return nil
}
