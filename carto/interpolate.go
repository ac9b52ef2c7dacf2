package carto

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Interpolate maps a source-space point to deformed space using the current
// Interp field of the grid. Points outside the padded lattice return
// ErrOutOfDomain; the grid is never extrapolated.
func (g *Grid) Interpolate(p Point) (Point, error) {
	if !p.finite() {
		return Point{}, fmt.Errorf("interpolating (%v, %v): %w", p.X, p.Y, ErrOutOfDomain)
	}
	i, j := g.CellOf(p)

	// Points exactly on the east or south lattice edge belong to the last cell
	if i == g.height-1 && p.Y == g.maxY-g.rectHeight {
		i--
	}
	if j == g.width-1 && p.X == g.minX+g.rectWidth {
		j--
	}

	corners, ok := g.cornersAt(i, j)
	if !ok {
		return Point{}, fmt.Errorf("interpolating (%v, %v): %w", p.X, p.Y, ErrOutOfDomain)
	}
	return g.bilinear(p, corners), nil
}

// InterpolateOrb is Interpolate for orb points
func (g *Grid) InterpolateOrb(p orb.Point) (orb.Point, error) {
	q, err := g.Interpolate(PointFromOrb(p))
	if err != nil {
		return orb.Point{}, err
	}
	return q.Orb(), nil
}

// interpolate is the lookup used for anchors, whose cell is known to be
// inside the lattice.
func (g *Grid) interpolate(p Point) Point {
	corners, _ := g.corners(p)
	return g.bilinear(p, corners)
}

// bilinear blends the Interp positions of the NW, NE, SW, SE corners:
// first along the top and bottom edges, then between those two results.
func (g *Grid) bilinear(p Point, c [4]*Node) Point {
	u := (p.X - c[0].Source.X) / g.resolution
	v := (p.Y - c[2].Source.Y) / g.resolution

	hx1 := u*(c[1].Interp.X-c[0].Interp.X) + c[0].Interp.X
	hx2 := u*(c[3].Interp.X-c[2].Interp.X) + c[2].Interp.X
	hy1 := u*(c[1].Interp.Y-c[0].Interp.Y) + c[0].Interp.Y
	hy2 := u*(c[3].Interp.Y-c[2].Interp.Y) + c[2].Interp.Y

	return Point{
		X: v*(hx1-hx2) + hx2,
		Y: v*(hy1-hy2) + hy2,
	}
}
