package carto

import (
	"fmt"
	"math"
)

const (
	// convergenceThreshold stops the smoothing sweeps once the square root
	// of the largest area-normalised node move drops below it.
	convergenceThreshold = 1e-4

	// minSmoothingSweeps is the sweep index that must be passed before the
	// convergence test applies.
	minSmoothingSweeps = 5

	// minWeightDenominator guards the constraint weighting, relative to
	// resolution^2.
	minWeightDenominator = 1e-12
)

// RelaxStats summarises the last Relax call
type RelaxStats struct {
	Iterations      int     `json:"iterations"`
	SmoothingSweeps int     `json:"smoothingSweeps"`
	LastDelta       float64 `json:"lastDelta"`
	MaxResidual     float64 `json:"maxResidual"`
	Fallbacks       int     `json:"fallbacks"`
}

// Stats returns the statistics of the last Relax call
func (g *Grid) Stats() RelaxStats { return g.stats }

// AnchorPositions returns where each anchor landed after the last Relax call
func (g *Grid) AnchorPositions() []Point {
	return append([]Point(nil), g.interpPoints...)
}

// Relax runs the elastic relaxation for the given number of iterations and
// returns the deformed position of every anchor.
//
// targets[k] is the required position of the k-th anchor passed to NewGrid.
// Each iteration runs one constraint sweep over the anchors, in order, and
// then smooths the free nodes until they settle. Anchors are processed
// sequentially and each correction is applied on top of the previous ones,
// so the anchor order is part of the result.
func (g *Grid) Relax(targets []Point, iterations int) ([]Point, error) {
	if len(targets) != len(g.points) {
		return nil, fmt.Errorf("relaxing grid: %d targets for %d anchors: %w",
			len(targets), len(g.points), ErrLengthMismatch)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("relaxing grid: negative iteration count %d", iterations)
	}
	for i, t := range targets {
		if !t.finite() {
			return nil, fmt.Errorf("relaxing grid: target %d has non-finite coordinates: %w", i, ErrDegenerateInput)
		}
	}

	for i := range g.nodes {
		g.nodes[i].Interp = g.nodes[i].Source
	}
	g.stats = RelaxStats{}
	g.scaleX, g.scaleY = extentRatio(g.points, targets)

	for k := 0; k < iterations; k++ {
		for idx, p := range g.points {
			g.constrain(p, targets[idx])
		}
		g.smoothFree()
		g.stats.Iterations++
	}

	g.interpPoints = make([]Point, len(g.points))
	for idx, p := range g.points {
		g.interpPoints[idx] = g.interpolate(p)
		if d := g.interpPoints[idx].Distance(targets[idx]); d > g.stats.MaxResidual {
			g.stats.MaxResidual = d
		}
	}

	return g.AnchorPositions(), nil
}

// extentRatio returns the per-axis ratio of the target extent to the source
// extent. An axis along which the anchors do not spread keeps a ratio of 1.
func extentRatio(src, dst []Point) (float64, float64) {
	var rs, rd Rect
	for i := range src {
		rs.Add(src[i])
		rd.Add(dst[i])
	}
	sx, sy := 1.0, 1.0
	if rs.Width() > 0 {
		sx = rd.Width() / rs.Width()
	}
	if rs.Height() > 0 {
		sy = rd.Height() / rs.Height()
	}
	return sx, sy
}

// constrain moves the four corners of the anchor's cell so the interpolated
// anchor gets closer to its target.
//
// The correction is the closed-form least-squares split of (target -
// predicted) over the corners, with bilinear basis weights and a smoothness
// term pulling each corner toward its smoothed value. Each share is divided
// by the corner's weight because a shared corner is visited once per anchor
// in the same sweep.
func (g *Grid) constrain(src, dst Point) {
	c, _ := g.corners(src)
	res := g.resolution

	var smooth [4]Point
	for k, n := range c {
		smooth[k] = g.smoothed(n.I, n.J)
	}

	ux1 := src.X - c[0].Source.X
	ux2 := res - ux1
	vy1 := src.Y - c[2].Source.Y
	vy2 := res - vy1

	predicted := g.bilinear(src, c)

	denU := ux1*ux1 + ux2*ux2
	denV := vy1*vy1 + vy2*vy2
	w := [4]float64{vy1 * ux2, vy1 * ux1, vy2 * ux2, vy2 * ux1}

	limit := minWeightDenominator * res * res
	if !(denU > limit) || !(denV > limit) {
		g.assignNearest(c, w, dst, predicted)
		return
	}
	u := 1 / denU
	v := 1 / denV

	var dzx, dzy, qx, qy [4]float64
	var sQx, sQy, sW float64
	for k, n := range c {
		sW += w[k] * w[k]
		dzx[k] = n.Interp.X - smooth[k].X
		dzy[k] = n.Interp.Y - smooth[k].Y
		qx[k] = w[k] * dzx[k]
		qy[k] = w[k] * dzy[k]
		sQx += qx[k]
		sQy += qy[k]
	}

	dx := (dst.X - predicted.X) * res * res
	dy := (dst.Y - predicted.Y) * res * res

	var adjX, adjY [4]float64
	for k, n := range c {
		weight := float64(n.Weight)
		adjX[k] = u * v * ((dx-qx[k]+sQx)*w[k] + dzx[k]*(w[k]*w[k]-sW)) / weight
		adjY[k] = u * v * ((dy-qy[k]+sQy)*w[k] + dzy[k]*(w[k]*w[k]-sW)) / weight
		if math.IsNaN(adjX[k]) || math.IsInf(adjX[k], 0) || math.IsNaN(adjY[k]) || math.IsInf(adjY[k], 0) {
			g.assignNearest(c, w, dst, predicted)
			return
		}
	}

	for k, n := range c {
		n.Interp.X += adjX[k]
		n.Interp.Y += adjY[k]
	}
}

// assignNearest is the fallback when the weighted split is not computable:
// the whole correction goes to the corner with the largest basis weight,
// scaled so that corner alone reproduces the target.
func (g *Grid) assignNearest(c [4]*Node, w [4]float64, dst, predicted Point) {
	g.stats.Fallbacks++

	best := 0
	for k := 1; k < 4; k++ {
		if w[k] > w[best] {
			best = k
		}
	}
	basis := w[best] / (g.resolution * g.resolution)
	if !(basis > 0) || math.IsInf(basis, 0) {
		return
	}
	n := c[best]
	n.Interp.X += (dst.X - predicted.X) / basis / float64(n.Weight)
	n.Interp.Y += (dst.Y - predicted.Y) / basis / float64(n.Weight)
}

// smoothFree repeatedly replaces every free node by its smoothed value, in
// place and in row-major order, until the largest move settles or every
// node has had as many sweeps as there are nodes.
func (g *Grid) smoothFree() {
	area := g.rectWidth * g.rectHeight
	sweeps := g.width * g.height

	for l := 0; l < sweeps; l++ {
		delta := 0.0
		for i := 0; i < g.height; i++ {
			for j := 0; j < g.width; j++ {
				n := &g.nodes[i*g.width+j]
				if n.Weight != 0 {
					continue
				}
				prev := n.Interp
				n.Interp = g.smoothed(i, j)
				if d := prev.Distance(n.Interp) / area; d > delta {
					delta = d
				}
			}
		}
		g.stats.SmoothingSweeps++
		g.stats.LastDelta = delta
		if l > minSmoothingSweeps && math.Sqrt(delta) < convergenceThreshold {
			break
		}
	}
}
