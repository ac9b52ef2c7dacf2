package carto

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the planar Euclidean distance between two points
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// meanEarthRadiusKm is the sphere GeoDistance measures on
const meanEarthRadiusKm = 6371.0

// GeoDistance returns the great-circle distance in kilometres, reading both
// points as (longitude, latitude) in degrees.
func (p Point) GeoDistance(o Point) float64 {
	return geo.DistanceHaversine(p.Orb(), o.Orb()) / orb.EarthRadius * meanEarthRadiusKm
}

// Orb converts the point to an orb.Point
func (p Point) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

// PointFromOrb converts an orb.Point to a Point
func PointFromOrb(p orb.Point) Point {
	return Point{X: p[0], Y: p[1]}
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Rect accumulates the bounding rectangle of every point added to it.
// The zero value is an empty rectangle.
type Rect struct {
	bound orb.Bound
	n     int
}

// Add grows the rectangle to enclose p
func (r *Rect) Add(p Point) {
	if r.n == 0 {
		r.bound = orb.Bound{Min: p.Orb(), Max: p.Orb()}
	} else {
		r.bound = r.bound.Extend(p.Orb())
	}
	r.n++
}

// Empty reports whether no point has been added yet
func (r *Rect) Empty() bool { return r.n == 0 }

// X returns the minimum x coordinate
func (r *Rect) X() float64 { return r.bound.Min[0] }

// Y returns the minimum y coordinate
func (r *Rect) Y() float64 { return r.bound.Min[1] }

// Width returns the horizontal extent
func (r *Rect) Width() float64 { return r.bound.Max[0] - r.bound.Min[0] }

// Height returns the vertical extent
func (r *Rect) Height() float64 { return r.bound.Max[1] - r.bound.Min[1] }

// Area returns Width*Height
func (r *Rect) Area() float64 { return r.Width() * r.Height() }

// Bound returns the accumulated rectangle as an orb.Bound
func (r *Rect) Bound() orb.Bound { return r.bound }

// BoundOf returns the bounding rectangle of a point set.
// The bool is false when points is empty.
func BoundOf(points []Point) (orb.Bound, bool) {
	var r Rect
	for _, p := range points {
		r.Add(p)
	}
	return r.Bound(), !r.Empty()
}
