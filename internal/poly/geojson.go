package poly

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON accepts a Polygon or MultiPolygon geometry, a Feature holding
// one, or a FeatureCollection whose polygonal features are combined.
func ParseGeoJSON(data []byte) (orb.MultiPolygon, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	switch hdr.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature collection: %w", err)
		}
		var out orb.MultiPolygon
		for i, f := range fc.Features {
			mp, err := toMultiPolygon(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			out = append(out, mp...)
		}
		if len(out) == 0 {
			return nil, errors.New("feature collection has no polygons")
		}
		return out, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature: %w", err)
		}
		return toMultiPolygon(f.Geometry)

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		return toMultiPolygon(g.Geometry())
	}
}

func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, errors.New("empty polygon")
		}
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		return v, nil
	case nil:
		return nil, errors.New("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}
