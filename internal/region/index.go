package region

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("region not found")

	countryCodeRe     = regexp.MustCompile(`^[A-Z]{2}$`)
	subdivisionCodeRe = regexp.MustCompile(`^[A-Z0-9]{1,3}$`)
)

type country struct {
	region       *Region
	subdivisions map[string][]*Region
}

type Index struct {
	mu        sync.RWMutex
	countries map[string]*country
}

// ValidCode reports whether code is a country ("PL") or subdivision
// ("PL-22") code.
func ValidCode(code string) bool {
	cc, sub, found := strings.Cut(code, "-")
	if !countryCodeRe.MatchString(cc) {
		return false
	}
	return !found || subdivisionCodeRe.MatchString(sub)
}

// BuildIndex walks root for boundary files named CC.poly, CC-SUB.poly or
// CC-SUB-Name.poly (.geojson and .json work too). Files without a country
// code are skipped.
func BuildIndex(root string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{countries: map[string]*country{}}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".poly" && ext != ".geojson" && ext != ".json" {
			return nil
		}
		idx.add(path, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), logger)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	logger.Debug("region index built", "root", root, "countries", len(idx.countries))
	return idx, nil
}

func (idx *Index) add(path, stem string, logger *slog.Logger) {
	parts := strings.SplitN(stem, "-", 3)
	cc := parts[0]
	if !countryCodeRe.MatchString(cc) {
		logger.Debug("no country code in file name; skipping", "path", path)
		return
	}
	c := idx.countries[cc]
	if c == nil {
		c = &country{subdivisions: map[string][]*Region{}}
		idx.countries[cc] = c
	}

	if len(parts) == 1 || !subdivisionCodeRe.MatchString(parts[1]) {
		c.region = &Region{Kind: Country, Code: cc, Name: CountryName(cc), Path: path}
		return
	}

	code := cc + "-" + parts[1]
	name := code
	if len(parts) == 3 && parts[2] != "" {
		name = strings.ReplaceAll(parts[2], "_", " ")
	}
	c.subdivisions[code] = append(c.subdivisions[code], &Region{Kind: Subdivision, Code: code, Name: name, Path: path})
}

// Countries lists the indexed country codes.
func (idx *Index) Countries() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.countries))
	for cc := range idx.countries {
		out = append(out, cc)
	}
	slices.Sort(out)
	return out
}

// Subdivisions lists every subdivision of a country ordered by code.
func (idx *Index) Subdivisions(cc string) []*Region {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.subdivisions(cc)
}

func (idx *Index) subdivisions(cc string) []*Region {
	c := idx.countries[cc]
	if c == nil {
		return nil
	}
	codes := make([]string, 0, len(c.subdivisions))
	for code := range c.subdivisions {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	var out []*Region
	for _, code := range codes {
		out = append(out, c.subdivisions[code]...)
	}
	return out
}

// Select resolves selectors: "PL" for the country border, "PL-*" for all of
// its subdivisions, "PL-22" for one subdivision (which may span several files).
func (idx *Index) Select(selectors []string) ([]*Region, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []*Region
	for _, sel := range selectors {
		cc, sub, _ := strings.Cut(strings.TrimSpace(sel), "-")
		if cc == "" {
			return nil, fmt.Errorf("invalid region code %q", sel)
		}
		c := idx.countries[cc]
		if c == nil {
			return nil, fmt.Errorf("missing border definitions for country %s: %w", cc, ErrNotFound)
		}
		switch sub {
		case "":
			if c.region == nil {
				return nil, fmt.Errorf("missing border definitions for country %s: %w", cc, ErrNotFound)
			}
			out = append(out, c.region)
		case "*":
			out = append(out, idx.subdivisions(cc)...)
		default:
			rs := c.subdivisions[cc+"-"+sub]
			if len(rs) == 0 {
				return nil, fmt.Errorf("missing border definitions for subdivision %s in country %s: %w", sel, CountryName(cc), ErrNotFound)
			}
			out = append(out, rs...)
		}
	}
	return out, nil
}

// Lookup resolves a single code to its regions.
func (idx *Index) Lookup(code string) ([]*Region, error) {
	if strings.Contains(code, "*") || strings.Contains(code, ",") {
		return nil, fmt.Errorf("invalid region code %q", code)
	}
	return idx.Select([]string{code})
}

// Refresh forgets the loaded geometry of code so the next job rereads its
// files. With remove set the code is dropped from the index. It reports
// whether code was indexed.
func (idx *Index) Refresh(code string, remove bool) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cc, sub, _ := strings.Cut(code, "-")
	c := idx.countries[cc]
	if c == nil {
		return false
	}
	if sub == "" {
		if c.region == nil {
			return false
		}
		if remove {
			c.region = nil
		} else {
			c.region = c.region.reset()
		}
		return true
	}
	rs, ok := c.subdivisions[code]
	if !ok {
		return false
	}
	if remove {
		delete(c.subdivisions, code)
		return true
	}
	fresh := make([]*Region, len(rs))
	for i, r := range rs {
		fresh[i] = r.reset()
	}
	c.subdivisions[code] = fresh
	return true
}
