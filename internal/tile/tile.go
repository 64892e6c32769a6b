// Package tile converts between WGS84 coordinates and slippy-map tile indices.
//
// Latitudes must stay within the Web-Mercator domain (|lat| <= MaxLatitude).
// Nothing here clamps; callers validate their input first.
package tile

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Zoom is a slippy-map zoom level. At zoom z the world is a square of 2^z by
// 2^z tiles.
type Zoom int

const (
	Squadrats     Zoom = 14
	Squadratinhos Zoom = 17

	MaxZoom Zoom = 24
)

var ErrInvalidZoom = errors.New("invalid zoom")

// MaxLatitude is the northern edge of row 0 at every zoom.
var MaxLatitude = Lat(0, 0)

// values this close to an integer tile coordinate are treated as lying on it
const snapEpsilon = 1e-7

// N is the number of tile columns, and of tile rows, at z.
func (z Zoom) N() int { return 1 << uint(z) }

// Validate rejects zooms outside [0, MaxZoom] with an error wrapping
// ErrInvalidZoom.
func (z Zoom) Validate() error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("%w: %d out of range [0,%d]", ErrInvalidZoom, int(z), int(MaxZoom))
	}
	return nil
}

func (z Zoom) String() string { return strconv.Itoa(int(z)) }

func ParseZoom(s string) (Zoom, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %v", ErrInvalidZoom, s, err)
	}
	z := Zoom(n)
	if err := z.Validate(); err != nil {
		return 0, err
	}
	return z, nil
}

// Lon returns the western edge longitude of tile column x.
func Lon(x int, z Zoom) float64 {
	return float64(x)/float64(z.N())*360.0 - 180.0
}

// Lat returns the northern edge latitude of tile row y.
func Lat(y int, z Zoom) float64 {
	n := math.Pi * (1 - 2*float64(y)/float64(z.N()))
	return math.Atan(math.Sinh(n)) * 180.0 / math.Pi
}

// X returns the column containing lon.
func X(lon float64, z Zoom) int {
	return floor((lon + 180.0) / 360.0 * float64(z.N()))
}

// Y returns the row containing lat.
func Y(lat float64, z Zoom) int {
	r := lat * math.Pi / 180.0
	return floor((1 - math.Asinh(math.Tan(r))/math.Pi) / 2 * float64(z.N()))
}

func floor(f float64) int {
	if r := math.Round(f); math.Abs(f-r) < snapEpsilon {
		return int(r)
	}
	return int(math.Floor(f))
}

// Tile is a grid square addressed by column X, counted east from lon -180,
// and row Y, counted south from MaxLatitude.
type Tile struct {
	X, Y int
}

func At(p orb.Point, z Zoom) Tile {
	return Tile{X: X(p.Lon(), z), Y: Y(p.Lat(), z)}
}

func (t Tile) String() string { return fmt.Sprintf("%d/%d", t.X, t.Y) }

func (t Tile) Bound(z Zoom) orb.Bound {
	return orb.Bound{
		Min: orb.Point{Lon(t.X, z), Lat(t.Y+1, z)},
		Max: orb.Point{Lon(t.X+1, z), Lat(t.Y, z)},
	}
}

// MapTile converts to the orb representation. The tile must be inside the grid.
func (t Tile) MapTile(z Zoom) maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(z))
}

func FromMapTile(mt maptile.Tile) (Tile, Zoom) {
	return Tile{X: int(mt.X), Y: int(mt.Y)}, Zoom(mt.Z)
}

// Corner is a grid line intersection. Corner (x, y) is the north-west corner of
// tile (x, y).
type Corner struct {
	X, Y int
}

func (c Corner) Point(z Zoom) orb.Point {
	return orb.Point{Lon(c.X, z), Lat(c.Y, z)}
}
