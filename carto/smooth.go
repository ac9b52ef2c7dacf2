package carto

// nodeClass selects the smoothing stencil for a node
type nodeClass int

const (
	// classInterior nodes are at least two cells from every lattice edge
	classInterior nodeClass = iota
	// classBorder nodes are within one cell of an edge, or the lattice is
	// too small for the wide stencil
	classBorder
)

func (g *Grid) classify(i, j int) nodeClass {
	if i > 1 && j > 1 && i < g.height-2 && j < g.width-2 {
		return classInterior
	}
	return classBorder
}

// smoothed returns the value the smoother would assign to node (i, j)
func (g *Grid) smoothed(i, j int) Point {
	if g.classify(i, j) == classInterior {
		return g.thinPlate(i, j)
	}
	return g.borderMean(i, j)
}

// thinPlate is the 13-point stencil: orthogonal neighbours weighted 8,
// diagonal neighbours -2, neighbours two cells away -1, over 20.
func (g *Grid) thinPlate(i, j int) Point {
	at := func(di, dj int) Point {
		return g.nodes[(i+di)*g.width+j+dj].Interp
	}
	a, b, c, d := at(-1, 0), at(1, 0), at(0, -1), at(0, 1)
	e, f, h, k := at(-1, -1), at(1, -1), at(1, 1), at(-1, 1)
	m, n, o, q := at(-2, 0), at(2, 0), at(0, -2), at(0, 2)

	return Point{
		X: (8*(a.X+b.X+c.X+d.X) - 2*(e.X+f.X+h.X+k.X) - (m.X+n.X+o.X+q.X)) / 20,
		Y: (8*(a.Y+b.Y+c.Y+d.Y) - 2*(e.Y+f.Y+h.Y+k.Y) - (m.Y+n.Y+o.Y+q.Y)) / 20,
	}
}

// borderMean averages the four orthogonal neighbours. A neighbour that falls
// off the lattice is synthesised from the opposite one, shifted by the
// global scale so the edge keeps stretching uniformly: it sits two cells
// from the opposite neighbour, hence the 2*scale*resolution offset.
func (g *Grid) borderMean(i, j int) Point {
	self := g.nodes[i*g.width+j].Interp
	offX := 2 * g.scaleX * g.resolution
	offY := 2 * g.scaleY * g.resolution

	north, hasN := g.Node(i-1, j)
	south, hasS := g.Node(i+1, j)
	west, hasW := g.Node(i, j-1)
	east, hasE := g.Node(i, j+1)

	var n, s, w, e Point
	switch {
	case hasN && hasS:
		n, s = north.Interp, south.Interp
	case hasS:
		s = south.Interp
		n = Point{X: s.X, Y: s.Y + offY}
	case hasN:
		n = north.Interp
		s = Point{X: n.X, Y: n.Y - offY}
	default:
		n, s = self, self
	}

	switch {
	case hasW && hasE:
		w, e = west.Interp, east.Interp
	case hasE:
		e = east.Interp
		w = Point{X: e.X - offX, Y: e.Y}
	case hasW:
		w = west.Interp
		e = Point{X: w.X + offX, Y: w.Y}
	default:
		w, e = self, self
	}

	return Point{
		X: (n.X + s.X + w.X + e.X) / 4,
		Y: (n.Y + s.Y + w.Y + e.Y) / 4,
	}
}
