package carto

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/stat"
)

// TimeMatrix is a square travel-time table. The first row holds the
// destination ids, the first column the origin ids.
type TimeMatrix struct {
	ids   []string
	index map[string]int
	rows  map[string][]string
}

// ParseTimeMatrix reads a travel-time matrix from CSV
func ParseTimeMatrix(r io.Reader) (*TimeMatrix, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading time matrix: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("reading time matrix: need a header and at least one row")
	}

	m := &TimeMatrix{
		ids:   records[0],
		index: make(map[string]int, len(records[0])),
		rows:  make(map[string][]string, len(records)-1),
	}
	for i, id := range m.ids {
		id = strings.Trim(id, `"`)
		m.ids[i] = id
		if id != "" {
			m.index[id] = i
		}
	}
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		m.rows[strings.Trim(rec[0], `"`)] = rec
	}
	return m, nil
}

// IDs returns the destination ids of the matrix header
func (m *TimeMatrix) IDs() []string {
	out := make([]string, 0, len(m.index))
	for _, id := range m.ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Times returns the travel time from origin to every row id. Cells that do
// not parse as numbers are reported as NaN.
func (m *TimeMatrix) Times(origin string) (map[string]float64, error) {
	col, ok := m.index[origin]
	if !ok {
		return nil, fmt.Errorf("time matrix has no column %q", origin)
	}
	times := make(map[string]float64, len(m.rows))
	for id, rec := range m.rows {
		v := math.NaN()
		if col < len(rec) {
			if f, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64); err == nil {
				v = f
			}
		}
		times[id] = v
	}
	return times, nil
}

// ImageLayer derives target positions for the source points from travel
// times to a single origin.
//
// Each point gets a speed (euclidean distance to the origin / time). The
// median speed is the reference, and every point is moved along the line
// from the origin so its distance is scaled by reference/speed: slow places
// are pushed away, fast places pulled in. factor blends between no move (0)
// and the full move (1). The origin stays put. Points with no usable time
// keep their position.
func ImageLayer(source *geojson.FeatureCollection, idField, origin string, m *TimeMatrix, factor float64) (*geojson.FeatureCollection, error) {
	if source == nil {
		return nil, fmt.Errorf("image layer: no source collection")
	}
	times, err := m.Times(origin)
	if err != nil {
		return nil, fmt.Errorf("image layer: %w", err)
	}

	var originPt Point
	found := false
	for _, f := range source.Features {
		if id, ok := featureID(f, idField); ok && id == origin {
			if originPt, err = anchorPoint(f); err != nil {
				return nil, fmt.Errorf("image layer: origin %q: %w", origin, err)
			}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("image layer: origin %q not in source collection", origin)
	}

	type entry struct {
		id       string
		point    Point
		time     float64
		distance float64
		speed    float64
	}
	entries := make([]entry, len(source.Features))
	speeds := make([]float64, 0, len(source.Features))
	for i, f := range source.Features {
		id, ok := featureID(f, idField)
		if !ok {
			return nil, fmt.Errorf("image layer: feature %d has no identifier %q", i, idField)
		}
		p, err := anchorPoint(f)
		if err != nil {
			return nil, fmt.Errorf("image layer: %q: %w", id, err)
		}
		t, ok := times[id]
		if !ok {
			t = math.NaN()
		}
		e := entry{id: id, point: p, time: t, distance: p.Distance(originPt)}
		e.speed = e.distance / e.time
		if !math.IsNaN(e.speed) && !math.IsInf(e.speed, 0) && e.speed > 0 {
			speeds = append(speeds, e.speed)
		}
		entries[i] = e
	}
	if len(speeds) == 0 {
		return nil, fmt.Errorf("image layer: no usable travel time for origin %q", origin)
	}
	reference := medianOf(speeds)

	out := geojson.NewFeatureCollection()
	for i, f := range source.Features {
		e := entries[i]
		displacement := reference / e.speed
		if math.IsNaN(displacement) || math.IsInf(displacement, 0) {
			displacement = 1
		}

		moved := e.point
		if e.id != origin {
			d := 1 + (displacement-1)*factor
			moved = Point{
				X: originPt.X + (e.point.X-originPt.X)*d,
				Y: originPt.Y + (e.point.Y-originPt.Y)*d,
			}
		}

		nf := geojson.NewFeature(orb.Point{moved.X, moved.Y})
		nf.ID = f.ID
		if f.Properties != nil {
			nf.Properties = f.Properties.Clone()
		}
		nf.Properties["time"] = jsonFloat(e.time)
		nf.Properties["distance"] = e.distance
		nf.Properties["speed"] = jsonFloat(e.speed)
		nf.Properties["displacement"] = displacement
		out.Append(nf)
	}
	return out, nil
}

// medianOf returns the median of values, averaging the two middle values
// when the count is even. values is sorted in place.
func medianOf(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return stat.Quantile(0.5, stat.Empirical, values, nil)
}

// jsonFloat maps values JSON cannot encode to nil
func jsonFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
