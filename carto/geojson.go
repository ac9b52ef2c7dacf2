package carto

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseCollection decodes a GeoJSON FeatureCollection
func ParseCollection(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feature collection: %w", err)
	}
	return fc, nil
}

// ReadCollection loads a GeoJSON FeatureCollection from a file
func ReadCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fc, err := ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

// WriteCollection writes a FeatureCollection as GeoJSON
func WriteCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CollectionBound returns the bounding box of every geometry in the
// collection. The bool is false if no feature has a geometry.
func CollectionBound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	if fc == nil {
		return bound, false
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound = b
			found = true
			continue
		}
		bound = bound.Union(b)
	}
	return bound, found
}

// featureID returns the identifier of a feature: the named property, or the
// feature id when field is empty.
func featureID(f *geojson.Feature, field string) (string, bool) {
	if field == "" {
		return idString(f.ID)
	}
	v, ok := f.Properties[field]
	if !ok {
		return "", false
	}
	return idString(v)
}

// idString normalises string and numeric identifiers
func idString(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case json.Number:
		return id.String(), true
	}
	return "", false
}

// anchorPoint extracts the position of a point feature
func anchorPoint(f *geojson.Feature) (Point, error) {
	switch g := f.Geometry.(type) {
	case orb.Point:
		return PointFromOrb(g), nil
	case orb.MultiPoint:
		if len(g) == 1 {
			return PointFromOrb(g[0]), nil
		}
		return Point{}, fmt.Errorf("multipoint with %d points", len(g))
	case nil:
		return Point{}, fmt.Errorf("no geometry")
	default:
		return Point{}, fmt.Errorf("geometry %s is not a point", g.GeoJSONType())
	}
}
