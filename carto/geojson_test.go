package carto

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestReadWriteCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.geojson")
	fc := pointCollection([]string{"a", "b"}, []Point{{X: 1, Y: 2}, {X: 3, Y: 4}})

	if err := WriteCollection(path, fc); err != nil {
		t.Fatalf("WriteCollection() error: %v", err)
	}
	got, err := ReadCollection(path)
	if err != nil {
		t.Fatalf("ReadCollection() error: %v", err)
	}
	if len(got.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(got.Features))
	}
	if got.Features[1].Properties["name"] != "b" {
		t.Errorf("name = %v, want b", got.Features[1].Properties["name"])
	}
}

func TestReadCollection_Errors(t *testing.T) {
	if _, err := ReadCollection(filepath.Join(t.TempDir(), "missing.geojson")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := ParseCollection([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCollectionBound(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	if _, ok := CollectionBound(fc); ok {
		t.Error("empty collection should have no bound")
	}
	if _, ok := CollectionBound(nil); ok {
		t.Error("nil collection should have no bound")
	}

	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {4, 1}}))
	fc.Append(geojson.NewFeature(nil))
	fc.Append(geojson.NewFeature(orb.Point{-2, 5}))

	b, ok := CollectionBound(fc)
	if !ok {
		t.Fatal("expected a bound")
	}
	want := orb.Bound{Min: orb.Point{-2, 0}, Max: orb.Point{4, 5}}
	if !b.Equal(want) {
		t.Errorf("bound = %v, want %v", b, want)
	}
}

func TestFeatureID(t *testing.T) {
	tests := []struct {
		name   string
		id     interface{}
		props  map[string]interface{}
		field  string
		want   string
		wantOK bool
	}{
		{"string property", nil, map[string]interface{}{"code": "75056"}, "code", "75056", true},
		{"float property", nil, map[string]interface{}{"code": 12.0}, "code", "12", true},
		{"int property", nil, map[string]interface{}{"code": 12}, "code", "12", true},
		{"json number", nil, map[string]interface{}{"code": json.Number("0042")}, "code", "0042", true},
		{"missing property", nil, map[string]interface{}{}, "code", "", false},
		{"empty string", nil, map[string]interface{}{"code": ""}, "code", "", false},
		{"bool property", nil, map[string]interface{}{"code": true}, "code", "", false},
		{"feature id", "paris", nil, "", "paris", true},
		{"numeric feature id", 3.0, nil, "", "3", true},
		{"no feature id", nil, nil, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := geojson.NewFeature(orb.Point{0, 0})
			f.ID = tt.id
			for k, v := range tt.props {
				f.Properties[k] = v
			}
			got, ok := featureID(f, tt.field)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("featureID() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAnchorPoint(t *testing.T) {
	p, err := anchorPoint(geojson.NewFeature(orb.MultiPoint{{3, 4}}))
	if err != nil {
		t.Fatalf("anchorPoint() error: %v", err)
	}
	if p != (Point{X: 3, Y: 4}) {
		t.Errorf("anchorPoint() = %v, want (3, 4)", p)
	}

	if _, err := anchorPoint(geojson.NewFeature(orb.MultiPoint{{1, 1}, {2, 2}})); err == nil {
		t.Error("expected error for multipoint with two points")
	}
	if _, err := anchorPoint(geojson.NewFeature(nil)); err == nil {
		t.Error("expected error for missing geometry")
	}
}
