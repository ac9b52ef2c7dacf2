package carto

import (
	"fmt"

	"github.com/paulmach/orb"
)

// pointFunc maps one coordinate
type pointFunc func(orb.Point) (orb.Point, error)

// mapGeometry returns a copy of g with every coordinate passed through f.
// A Bound is not closed under a non-affine deformation, so it comes back as
// the deformed polygon of its outline.
func mapGeometry(g orb.Geometry, f pointFunc) (orb.Geometry, error) {
	switch g := g.(type) {
	case nil:
		return nil, nil
	case orb.Point:
		return f(g)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(g))
		for i, p := range g {
			q, err := f(p)
			if err != nil {
				return nil, err
			}
			out[i] = q
		}
		return out, nil
	case orb.LineString:
		return mapLineString(g, f)
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			m, err := mapLineString(ls, f)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case orb.Ring:
		return mapRing(g, f)
	case orb.Polygon:
		return mapPolygon(g, f)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, poly := range g {
			m, err := mapPolygon(poly, f)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, sub := range g {
			m, err := mapGeometry(sub, f)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case orb.Bound:
		return mapPolygon(g.ToPolygon(), f)
	}
	return nil, fmt.Errorf("unsupported geometry type %T", g)
}

func mapLineString(ls orb.LineString, f pointFunc) (orb.LineString, error) {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		q, err := f(p)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func mapRing(r orb.Ring, f pointFunc) (orb.Ring, error) {
	ls, err := mapLineString(orb.LineString(r), f)
	return orb.Ring(ls), err
}

func mapPolygon(poly orb.Polygon, f pointFunc) (orb.Polygon, error) {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		m, err := mapRing(r, f)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
