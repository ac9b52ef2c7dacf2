package carto

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Node is one lattice intersection of the grid.
// Source is fixed at construction, Interp is moved by Relax.
type Node struct {
	I      int   `json:"i"`
	J      int   `json:"j"`
	Source Point `json:"source"`
	Interp Point `json:"interp"`
	// Weight counts the anchors whose supporting cell has this node as a
	// corner. Zero marks a free node that only the smoother moves.
	Weight int `json:"weight"`
}

// Grid is a regular lattice of nodes covering the padded bounding rectangle
// of a set of anchor points. Row 0 is the north edge, column 0 the west edge.
type Grid struct {
	nodes      []Node
	width      int
	height     int
	resolution float64
	minX       float64
	maxY       float64
	rectWidth  float64
	rectHeight float64

	points       []Point
	interpPoints []Point

	scaleX float64
	scaleY float64
	stats  RelaxStats
}

// NewGrid builds the lattice for the given anchors.
//
// The cell size is (1/precision)*sqrt(area/len(points)), so a larger
// precision gives a finer grid. When bound is nil it is computed from the
// points; a supplied bound is extended to cover every anchor. The rectangle
// is grown to a whole number of cells and then padded with one extra ring of
// cells on every side, so the four corners of any anchor's cell are never on
// the lattice border.
func NewGrid(points []Point, precision float64, bound *orb.Bound) (*Grid, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("building grid: no anchor points: %w", ErrDegenerateInput)
	}
	if math.IsNaN(precision) || math.IsInf(precision, 0) || precision <= 0 {
		return nil, fmt.Errorf("building grid: precision %v: %w", precision, ErrInvalidPrecision)
	}
	for i, p := range points {
		if !p.finite() {
			return nil, fmt.Errorf("building grid: anchor %d has non-finite coordinates: %w", i, ErrDegenerateInput)
		}
	}

	rect, _ := BoundOf(points)
	if bound != nil {
		rect = rect.Union(*bound)
	}

	rectWidth := rect.Max[0] - rect.Min[0]
	rectHeight := rect.Max[1] - rect.Min[1]
	area := rectWidth * rectHeight
	if !(area > 0) || math.IsInf(area, 0) {
		return nil, fmt.Errorf("building grid: bounding rectangle %vx%v has no area: %w",
			rectWidth, rectHeight, ErrDegenerateInput)
	}

	resolution := 1 / precision * math.Sqrt(area/float64(len(points)))

	cellsX := int(math.Ceil(rectWidth/resolution)) + 1
	cellsY := int(math.Ceil(rectHeight/resolution)) + 1
	dx := float64(cellsX)*resolution - rectWidth
	dy := float64(cellsY)*resolution - rectHeight

	g := &Grid{
		width:      cellsX + 3,
		height:     cellsY + 3,
		resolution: resolution,
		minX:       rect.Min[0] - dx/2 - resolution,
		maxY:       rect.Max[1] + dy/2 + resolution,
		points:     append([]Point(nil), points...),
		scaleX:     1,
		scaleY:     1,
	}
	g.rectWidth = float64(g.width-1) * resolution
	g.rectHeight = float64(g.height-1) * resolution

	g.nodes = make([]Node, g.width*g.height)
	for i := 0; i < g.height; i++ {
		for j := 0; j < g.width; j++ {
			src := Point{
				X: g.minX + float64(j)*resolution,
				Y: g.maxY - float64(i)*resolution,
			}
			g.nodes[i*g.width+j] = Node{I: i, J: j, Source: src, Interp: src}
		}
	}

	for _, p := range g.points {
		corners, ok := g.corners(p)
		if !ok {
			// Unreachable given the padding; kept as a hard failure rather
			// than silently dropping an anchor.
			return nil, fmt.Errorf("building grid: anchor (%v, %v) outside lattice: %w", p.X, p.Y, ErrOutOfDomain)
		}
		for _, n := range corners {
			n.Weight++
		}
	}

	return g, nil
}

// Width returns the number of node columns
func (g *Grid) Width() int { return g.width }

// Height returns the number of node rows
func (g *Grid) Height() int { return g.height }

// Resolution returns the cell size, identical on both axes
func (g *Grid) Resolution() float64 { return g.resolution }

// Bound returns the extent of the padded lattice in source space
func (g *Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.minX, g.maxY - g.rectHeight},
		Max: orb.Point{g.minX + g.rectWidth, g.maxY},
	}
}

// Points returns a copy of the anchor source positions
func (g *Grid) Points() []Point {
	return append([]Point(nil), g.points...)
}

// Node returns the node at row i, column j.
// The bool is false when (i, j) is outside the lattice.
func (g *Grid) Node(i, j int) (*Node, bool) {
	if i < 0 || j < 0 || i >= g.height || j >= g.width {
		return nil, false
	}
	return &g.nodes[i*g.width+j], true
}

// TotalWeight returns the sum of all node weights (4 per anchor)
func (g *Grid) TotalWeight() int {
	total := 0
	for i := range g.nodes {
		total += g.nodes[i].Weight
	}
	return total
}

// CellOf returns the row and column of the cell containing p
func (g *Grid) CellOf(p Point) (i, j int) {
	i = int(math.Floor((g.maxY - p.Y) / g.resolution))
	j = int(math.Floor((p.X - g.minX) / g.resolution))
	return i, j
}

// corners returns the nodes of p's cell ordered NW, NE, SW, SE.
func (g *Grid) corners(p Point) ([4]*Node, bool) {
	i, j := g.CellOf(p)
	return g.cornersAt(i, j)
}

func (g *Grid) cornersAt(i, j int) ([4]*Node, bool) {
	var out [4]*Node
	var ok bool
	if out[0], ok = g.Node(i, j); !ok {
		return out, false
	}
	if out[1], ok = g.Node(i, j+1); !ok {
		return out, false
	}
	if out[2], ok = g.Node(i+1, j); !ok {
		return out, false
	}
	if out[3], ok = g.Node(i+1, j+1); !ok {
		return out, false
	}
	return out, true
}
