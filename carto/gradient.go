package carto

// Gradient holds the partial derivatives of the deformation at a node,
// estimated by finite differences of the Interp field.
type Gradient struct {
	DxDx float64 `json:"dxdx"`
	DyDx float64 `json:"dydx"`
	DxDy float64 `json:"dxdy"`
	DyDy float64 `json:"dydy"`
}

// Det returns the Jacobian determinant, the local areal dilatation.
// 1 means the deformation preserves area around the node.
func (gr Gradient) Det() float64 {
	return gr.DxDx*gr.DyDy - gr.DyDx*gr.DxDy
}

// Gradient estimates the derivatives of the deformation at node (i, j):
// central differences in the interior, one-sided at the lattice edges.
// Rows grow southward, so the y derivative is taken north minus south.
func (g *Grid) Gradient(i, j int) (Gradient, bool) {
	n, ok := g.Node(i, j)
	if !ok {
		return Gradient{}, false
	}
	res := g.resolution
	var gr Gradient

	west, hasW := g.Node(i, j-1)
	east, hasE := g.Node(i, j+1)
	switch {
	case hasW && hasE:
		gr.DxDx = (east.Interp.X - west.Interp.X) / (2 * res)
		gr.DyDx = (east.Interp.Y - west.Interp.Y) / (2 * res)
	case hasE:
		gr.DxDx = (east.Interp.X - n.Interp.X) / res
		gr.DyDx = (east.Interp.Y - n.Interp.Y) / res
	case hasW:
		gr.DxDx = (n.Interp.X - west.Interp.X) / res
		gr.DyDx = (n.Interp.Y - west.Interp.Y) / res
	}

	north, hasN := g.Node(i-1, j)
	south, hasS := g.Node(i+1, j)
	switch {
	case hasN && hasS:
		gr.DxDy = (north.Interp.X - south.Interp.X) / (2 * res)
		gr.DyDy = (north.Interp.Y - south.Interp.Y) / (2 * res)
	case hasS:
		gr.DxDy = (n.Interp.X - south.Interp.X) / res
		gr.DyDy = (n.Interp.Y - south.Interp.Y) / res
	case hasN:
		gr.DxDy = (north.Interp.X - n.Interp.X) / res
		gr.DyDy = (north.Interp.Y - n.Interp.Y) / res
	}

	return gr, true
}
