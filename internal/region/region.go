// Package region indexes boundary files by ISO 3166 code.
package region

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/mohammed-shakir/squadrats-grid/internal/poly"
)

type Kind int8

const (
	Country Kind = iota
	Subdivision
)

func (k Kind) String() string {
	switch k {
	case Country:
		return "country"
	case Subdivision:
		return "subdivision"
	default:
		return fmt.Sprintf("kind(%d)", int8(k))
	}
}

// Region is a country or a subdivision of one. Code is "PL" or "PL-22".
type Region struct {
	Kind Kind
	Code string
	Name string
	Path string

	once sync.Once
	geom orb.MultiPolygon
	err  error
}

// New wraps an in-memory geometry.
func New(kind Kind, code, name string, geom orb.MultiPolygon) *Region {
	r := &Region{Kind: kind, Code: code, Name: name}
	r.once.Do(func() { r.geom = geom })
	return r
}

func (r *Region) String() string { return r.Code }

// reset returns an unloaded copy; in-memory regions have nothing to reread.
func (r *Region) reset() *Region {
	if r.Path == "" {
		return r
	}
	return &Region{Kind: r.Kind, Code: r.Code, Name: r.Name, Path: r.Path}
}

func (r *Region) CountryCode() string {
	switch r.Kind {
	case Subdivision:
		return r.Code[:2]
	default:
		return r.Code
	}
}

func (r *Region) CountryName() string { return CountryName(r.CountryCode()) }

// DisplayName is the country name, or "Country - Subdivision".
func (r *Region) DisplayName() string {
	switch r.Kind {
	case Subdivision:
		return r.CountryName() + " - " + r.Name
	default:
		return r.CountryName()
	}
}

// Geometry loads the boundary on first use and validates it against the
// tile transform's domain.
func (r *Region) Geometry() (orb.MultiPolygon, error) {
	r.once.Do(func() {
		mp, err := poly.Load(r.Path)
		if err != nil {
			r.err = fmt.Errorf("load region %s: %w", r.Code, err)
			return
		}
		if err := poly.CheckDomain(mp); err != nil {
			r.err = fmt.Errorf("region %s: %w", r.Code, err)
			return
		}
		r.geom = mp
	})
	return r.geom, r.err
}

// CountryName resolves an ISO 3166-1 alpha-2 code to its English name,
// falling back to the code.
func CountryName(code string) string {
	reg, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(reg); name != "" {
		return name
	}
	return code
}
