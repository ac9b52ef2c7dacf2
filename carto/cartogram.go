package carto

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// DefaultIterationCoefficient scales the iteration count: K = coef*sqrt(n)
const DefaultIterationCoefficient = 4.0

// MeshKind selects which node position a grid mesh is built from
type MeshKind string

const (
	// MeshSource is the undeformed lattice
	MeshSource MeshKind = "source"
	// MeshInterp is the lattice after relaxation
	MeshInterp MeshKind = "interp"
)

// ParseMeshKind validates a mesh kind name
func ParseMeshKind(s string) (MeshKind, error) {
	switch MeshKind(s) {
	case MeshSource, MeshInterp:
		return MeshKind(s), nil
	}
	return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidMeshKind, s, MeshSource, MeshInterp)
}

// Options configures a cartogram computation
type Options struct {
	// SourceID and TargetID name the identifier property of each anchor
	// collection. Empty means the feature id.
	SourceID string `yaml:"sourceId,omitempty" json:"sourceId,omitempty"`
	TargetID string `yaml:"targetId,omitempty" json:"targetId,omitempty"`

	// Precision controls grid fineness; larger is finer.
	Precision float64 `yaml:"precision" json:"precision"`

	// IterationCoefficient defaults to DefaultIterationCoefficient.
	IterationCoefficient float64 `yaml:"iterationCoefficient,omitempty" json:"iterationCoefficient,omitempty"`

	// Bound overrides the extent derived from the background.
	Bound *orb.Bound `yaml:"-" json:"-"`

	// Simplify is a Douglas-Peucker tolerance applied to transformed
	// background geometry; 0 disables it.
	Simplify float64 `yaml:"simplify,omitempty" json:"simplify,omitempty"`
}

// Anchor is one source/target correspondence
type Anchor struct {
	ID     string `json:"id"`
	Source Point  `json:"source"`
	Target Point  `json:"target"`
}

// AnchorResult reports where an anchor landed after relaxation
type AnchorResult struct {
	Anchor
	Result   Point   `json:"result"`
	Residual float64 `json:"residual"`
}

// Cartogram is one distance-cartogram computation: the relaxed grid, the
// anchors that drove it and the background it deforms.
type Cartogram struct {
	grid       *Grid
	anchors    []Anchor
	background *geojson.FeatureCollection
	options    Options
	iterations int
}

// IterationCount returns round(coef*sqrt(n))
func IterationCount(n int, coef float64) int {
	if coef <= 0 {
		coef = DefaultIterationCoefficient
	}
	return int(math.Round(coef * math.Sqrt(float64(n))))
}

// MatchAnchors pairs source and target point features by identifier.
// The result follows the order of the source collection. An identifier
// present on only one side is reported as a *MissingCorrespondenceError.
func MatchAnchors(source, target *geojson.FeatureCollection, sourceField, targetField string) ([]Anchor, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("matching anchors: missing collection: %w", ErrDegenerateInput)
	}

	targets := make(map[string]Point, len(target.Features))
	for i, f := range target.Features {
		id, ok := featureID(f, targetField)
		if !ok {
			return nil, fmt.Errorf("matching anchors: target feature %d has no identifier %q", i, targetField)
		}
		if _, dup := targets[id]; dup {
			return nil, fmt.Errorf("matching anchors: duplicate target identifier %q", id)
		}
		p, err := anchorPoint(f)
		if err != nil {
			return nil, fmt.Errorf("matching anchors: target %q: %w", id, err)
		}
		targets[id] = p
	}

	anchors := make([]Anchor, 0, len(source.Features))
	seen := make(map[string]bool, len(source.Features))
	for i, f := range source.Features {
		id, ok := featureID(f, sourceField)
		if !ok {
			return nil, fmt.Errorf("matching anchors: source feature %d has no identifier %q", i, sourceField)
		}
		if seen[id] {
			return nil, fmt.Errorf("matching anchors: duplicate source identifier %q", id)
		}
		seen[id] = true
		p, err := anchorPoint(f)
		if err != nil {
			return nil, fmt.Errorf("matching anchors: source %q: %w", id, err)
		}
		t, ok := targets[id]
		if !ok {
			return nil, &MissingCorrespondenceError{ID: id, Side: SideTarget}
		}
		anchors = append(anchors, Anchor{ID: id, Source: p, Target: t})
	}

	if len(targets) != len(anchors) {
		for _, f := range target.Features {
			id, _ := featureID(f, targetField)
			if !seen[id] {
				return nil, &MissingCorrespondenceError{ID: id, Side: SideSource}
			}
		}
	}

	return anchors, nil
}

// NewCartogram correlates the anchor collections, builds the grid over the
// background extent and relaxes it.
func NewCartogram(source, target, background *geojson.FeatureCollection, opts Options) (*Cartogram, error) {
	anchors, err := MatchAnchors(source, target, opts.SourceID, opts.TargetID)
	if err != nil {
		return nil, err
	}
	return NewCartogramFromAnchors(anchors, background, opts)
}

// NewCartogramFromAnchors is NewCartogram for already matched anchors
func NewCartogramFromAnchors(anchors []Anchor, background *geojson.FeatureCollection, opts Options) (*Cartogram, error) {
	if len(anchors) == 0 {
		return nil, fmt.Errorf("computing cartogram: no anchors: %w", ErrDegenerateInput)
	}
	if background == nil {
		background = geojson.NewFeatureCollection()
	}

	src := make([]Point, len(anchors))
	dst := make([]Point, len(anchors))
	for i, a := range anchors {
		src[i] = a.Source
		dst[i] = a.Target
	}

	bound, err := extent(background, src, opts.Bound)
	if err != nil {
		return nil, fmt.Errorf("computing cartogram: %w", err)
	}

	grid, err := NewGrid(src, opts.Precision, &bound)
	if err != nil {
		return nil, fmt.Errorf("computing cartogram: %w", err)
	}

	iterations := IterationCount(len(anchors), opts.IterationCoefficient)
	if _, err := grid.Relax(dst, iterations); err != nil {
		return nil, fmt.Errorf("computing cartogram: %w", err)
	}

	stats := grid.Stats()
	log.Printf("Cartogram: %d anchors, grid %dx%d (resolution %.4g), %d iterations, %d smoothing sweeps, max residual %.4g",
		len(anchors), grid.Width(), grid.Height(), grid.Resolution(), iterations, stats.SmoothingSweeps, stats.MaxResidual)
	if stats.Fallbacks > 0 {
		log.Printf("Warning: %d constraint updates used the nearest-corner fallback", stats.Fallbacks)
	}

	return &Cartogram{
		grid:       grid,
		anchors:    append([]Anchor(nil), anchors...),
		background: background,
		options:    opts,
		iterations: iterations,
	}, nil
}

// extent returns the rectangle the grid must cover. An explicit bound is
// used as is. Otherwise the background and anchor extent is used, and if it
// is flat along one axis that axis is widened to match the other.
func extent(background *geojson.FeatureCollection, anchors []Point, explicit *orb.Bound) (orb.Bound, error) {
	if explicit != nil {
		return *explicit, nil
	}

	bound, _ := BoundOf(anchors)
	if bg, ok := CollectionBound(background); ok {
		bound = bound.Union(bg)
	}

	w := bound.Max[0] - bound.Min[0]
	h := bound.Max[1] - bound.Min[1]
	switch {
	case w <= 0 && h <= 0:
		return bound, fmt.Errorf("extent is a single point: %w", ErrDegenerateInput)
	case h <= 0:
		bound.Min[1] -= w / 2
		bound.Max[1] += w / 2
	case w <= 0:
		bound.Min[0] -= h / 2
		bound.Max[0] += h / 2
	}
	return bound, nil
}

// Grid returns the relaxed grid
func (c *Cartogram) Grid() *Grid { return c.grid }

// Iterations returns the number of relaxation iterations that were run
func (c *Cartogram) Iterations() int { return c.iterations }

// Background returns the original background collection
func (c *Cartogram) Background() *geojson.FeatureCollection { return c.background }

// Anchors reports each anchor with its deformed position
func (c *Cartogram) Anchors() []AnchorResult {
	positions := c.grid.AnchorPositions()
	out := make([]AnchorResult, len(c.anchors))
	for i, a := range c.anchors {
		out[i] = AnchorResult{
			Anchor:   a,
			Result:   positions[i],
			Residual: positions[i].Distance(a.Target),
		}
	}
	return out
}

// Mesh returns the grid as one quadrilateral per cell, built from the
// source or the interp positions of the cell corners.
func (c *Cartogram) Mesh(kind MeshKind) (*geojson.FeatureCollection, error) {
	if kind != MeshSource && kind != MeshInterp {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMeshKind, kind)
	}

	g := c.grid
	fc := geojson.NewFeatureCollection()
	for i := 0; i < g.height-1; i++ {
		for j := 0; j < g.width-1; j++ {
			corners, _ := g.cornersAt(i, j)
			src := cellRing(corners, MeshSource)

			f := geojson.NewFeature(orb.Polygon{src})
			f.ID = i*(g.width-1) + j
			f.Properties["i"] = i
			f.Properties["j"] = j

			if kind == MeshInterp {
				ring := cellRing(corners, MeshInterp)
				f.Geometry = orb.Polygon{ring}
				if a := math.Abs(planar.Area(src)); a > 0 {
					f.Properties["dilatation"] = math.Abs(planar.Area(ring)) / a
				}
			}
			fc.Append(f)
		}
	}
	return fc, nil
}

// SourceMesh is Mesh(MeshSource)
func (c *Cartogram) SourceMesh() *geojson.FeatureCollection {
	fc, _ := c.Mesh(MeshSource)
	return fc
}

// InterpMesh is Mesh(MeshInterp)
func (c *Cartogram) InterpMesh() *geojson.FeatureCollection {
	fc, _ := c.Mesh(MeshInterp)
	return fc
}

// cellRing closes the cell outline NW, SW, SE, NE, NW
func cellRing(c [4]*Node, kind MeshKind) orb.Ring {
	pos := func(n *Node) orb.Point {
		if kind == MeshInterp {
			return n.Interp.Orb()
		}
		return n.Source.Orb()
	}
	return orb.Ring{pos(c[0]), pos(c[2]), pos(c[3]), pos(c[1]), pos(c[0])}
}

// TransformGeometry maps every coordinate of g through the deformation
func (c *Cartogram) TransformGeometry(g orb.Geometry) (orb.Geometry, error) {
	out, err := mapGeometry(g, c.grid.InterpolateOrb)
	if err != nil {
		return nil, err
	}
	if c.options.Simplify > 0 && out != nil {
		out = simplify.DouglasPeucker(c.options.Simplify).Simplify(out)
	}
	return out, nil
}

// TransformBackground returns a deformed copy of the background. Feature
// order, ids, properties and foreign members such as "crs" are preserved.
func (c *Cartogram) TransformBackground() (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	if c.background.ExtraMembers != nil {
		out.ExtraMembers = c.background.ExtraMembers.Clone()
	}

	for idx, f := range c.background.Features {
		if f == nil {
			out.Append(geojson.NewFeature(nil))
			continue
		}
		geom, err := c.TransformGeometry(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("transforming background feature %d: %w", idx, err)
		}
		nf := geojson.NewFeature(geom)
		nf.ID = f.ID
		if f.Properties != nil {
			nf.Properties = f.Properties.Clone()
		}
		if len(f.BBox) > 0 && geom != nil {
			nf.BBox = geojson.NewBBox(geom.Bound())
		}
		out.Append(nf)
	}

	if len(c.background.BBox) > 0 {
		if b, ok := CollectionBound(out); ok {
			out.BBox = geojson.NewBBox(b)
		}
	}
	return out, nil
}

// Summary describes a computed cartogram without its geometry
type Summary struct {
	Anchors    int        `json:"anchors"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Resolution float64    `json:"resolution"`
	Iterations int        `json:"iterations"`
	Stats      RelaxStats `json:"stats"`
	Timestamp  int64      `json:"timestamp"`
}

// Summary returns the grid size and relaxation statistics
func (c *Cartogram) Summary() Summary {
	return Summary{
		Anchors:    len(c.anchors),
		Width:      c.grid.Width(),
		Height:     c.grid.Height(),
		Resolution: c.grid.Resolution(),
		Iterations: c.iterations,
		Stats:      c.grid.Stats(),
		Timestamp:  time.Now().Unix(),
	}
}
