package carto

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA premultiplies alpha, which canvas expects
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// Palette holds the colours of a cartogram preview
type Palette struct {
	SourceMesh color.NRGBA
	InterpMesh color.NRGBA
	Fill       color.NRGBA
	Outline    color.NRGBA
	Arrow      color.NRGBA
	Target     color.NRGBA
}

// DefaultPalette returns the preview colours
func DefaultPalette() Palette {
	return Palette{
		SourceMesh: color.NRGBA{190, 190, 190, 255},
		InterpMesh: color.NRGBA{70, 110, 200, 200},
		Fill:       color.NRGBA{144, 238, 144, 120},
		Outline:    color.NRGBA{0, 100, 0, 255},
		Arrow:      color.NRGBA{200, 30, 30, 255},
		Target:     color.NRGBA{0, 0, 0, 255},
	}
}

// VectorRenderer draws a cartogram as vector graphics: the undeformed
// lattice, the deformed lattice, the transformed background and an arrow
// from every anchor's source position to where it landed.
type VectorRenderer struct {
	Cartogram  *Cartogram
	Palette    Palette
	Size       float64           // longer side of the drawing, in canvas units (mm)
	Padding    float64           // in canvas units
	Resolution canvas.Resolution // PNG output only
	ShowSource bool
	ShowInterp bool
	ShowArrows bool
}

// NewVectorRenderer creates a renderer with default settings
func NewVectorRenderer(c *Cartogram) *VectorRenderer {
	return &VectorRenderer{
		Cartogram:  c,
		Palette:    DefaultPalette(),
		Size:       300,
		Padding:    10,
		Resolution: canvas.DPI(150),
		ShowSource: true,
		ShowInterp: true,
		ShowArrows: true,
	}
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// frame maps world coordinates onto the drawing
type frame struct {
	bound   orb.Bound
	scale   float64
	padding float64
	width   float64
	height  float64
}

func (f frame) point(p orb.Point) (float64, float64) {
	return (p[0]-f.bound.Min[0])*f.scale + f.padding, (p[1]-f.bound.Min[1])*f.scale + f.padding
}

// RenderToSVG writes the preview as SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	layers, fr, err := r.prepare()
	if err != nil {
		return err
	}
	out := svg.New(w, fr.width, fr.height, nil)
	r.renderToCanvas(out, layers, fr)
	return out.Close()
}

// RenderToPNG writes the preview as PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	layers, fr, err := r.prepare()
	if err != nil {
		return err
	}
	rast := rasterizer.New(fr.width, fr.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, layers, fr)
	return png.Encode(w, rast)
}

type previewLayers struct {
	source     *geojson.FeatureCollection
	interp     *geojson.FeatureCollection
	background *geojson.FeatureCollection
	anchors    []AnchorResult
}

func (r *VectorRenderer) prepare() (previewLayers, frame, error) {
	if r.Cartogram == nil {
		return previewLayers{}, frame{}, fmt.Errorf("rendering preview: no cartogram")
	}
	background, err := r.Cartogram.TransformBackground()
	if err != nil {
		return previewLayers{}, frame{}, fmt.Errorf("rendering preview: %w", err)
	}
	layers := previewLayers{
		source:     r.Cartogram.SourceMesh(),
		interp:     r.Cartogram.InterpMesh(),
		background: background,
		anchors:    r.Cartogram.Anchors(),
	}

	bound := r.Cartogram.Grid().Bound()
	if b, ok := CollectionBound(layers.interp); ok {
		bound = bound.Union(b)
	}
	if b, ok := CollectionBound(background); ok {
		bound = bound.Union(b)
	}

	extent := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	size := r.Size
	if size <= 0 {
		size = 300
	}
	fr := frame{bound: bound, scale: size / extent, padding: r.Padding}
	fr.width = (bound.Max[0]-bound.Min[0])*fr.scale + 2*r.Padding
	fr.height = (bound.Max[1]-bound.Min[1])*fr.scale + 2*r.Padding
	return layers, fr, nil
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, layers previewLayers, fr frame) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(fr.width, fr.height), bgStyle, canvas.Identity)

	meshStyle := canvas.DefaultStyle
	meshStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	meshStyle.StrokeWidth = 0.2

	if r.ShowSource {
		meshStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.SourceMesh)}
		meshStyle.Dashes = []float64{1, 1}
		r.drawCollection(renderer, layers.source, meshStyle, fr)
	}

	fillStyle := canvas.DefaultStyle
	fillStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Fill)}
	fillStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Outline)}
	fillStyle.StrokeWidth = 0.4
	r.drawCollection(renderer, layers.background, fillStyle, fr)

	if r.ShowInterp {
		meshStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.InterpMesh)}
		meshStyle.Dashes = nil
		r.drawCollection(renderer, layers.interp, meshStyle, fr)
	}

	if r.ShowArrows {
		arrowStyle := canvas.DefaultStyle
		arrowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		arrowStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Arrow)}
		arrowStyle.StrokeWidth = 0.5

		targetStyle := canvas.DefaultStyle
		targetStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Target)}
		targetStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

		for _, a := range layers.anchors {
			x1, y1 := fr.point(a.Source.Orb())
			x2, y2 := fr.point(a.Result.Orb())
			renderer.RenderPath(arrowPath(x1, y1, x2, y2, 2), arrowStyle, canvas.Identity)

			tx, ty := fr.point(a.Target.Orb())
			renderer.RenderPath(canvas.Circle(0.8).Translate(tx, ty), targetStyle, canvas.Identity)
		}
	}
}

// arrowPath is a line from (x1, y1) to (x2, y2) with an open head of the
// given length at the end
func arrowPath(x1, y1, x2, y2, head float64) *canvas.Path {
	p := &canvas.Path{}
	p.MoveTo(x1, y1)
	p.LineTo(x2, y2)

	length := math.Hypot(x2-x1, y2-y1)
	if length == 0 {
		return p
	}
	if head > length/2 {
		head = length / 2
	}
	angle := math.Atan2(y2-y1, x2-x1)
	for _, side := range []float64{-1, 1} {
		a := angle + math.Pi - side*math.Pi/7
		p.MoveTo(x2, y2)
		p.LineTo(x2+head*math.Cos(a), y2+head*math.Sin(a))
	}
	return p
}

func (r *VectorRenderer) drawCollection(renderer canvasRenderer, fc *geojson.FeatureCollection, style canvas.Style, fr frame) {
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		r.drawGeometry(renderer, f.Geometry, style, fr)
	}
}

func (r *VectorRenderer) drawGeometry(renderer canvasRenderer, g orb.Geometry, style canvas.Style, fr frame) {
	lineStyle := style
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}

	switch g := g.(type) {
	case orb.Point:
		x, y := fr.point(g)
		dot := style
		dot.Fill = style.Stroke
		renderer.RenderPath(canvas.Circle(0.6).Translate(x, y), dot, canvas.Identity)
	case orb.MultiPoint:
		for _, p := range g {
			r.drawGeometry(renderer, p, style, fr)
		}
	case orb.LineString:
		renderer.RenderPath(polyline(g, fr, false), lineStyle, canvas.Identity)
	case orb.MultiLineString:
		for _, ls := range g {
			renderer.RenderPath(polyline(ls, fr, false), lineStyle, canvas.Identity)
		}
	case orb.Ring:
		renderer.RenderPath(polyline(orb.LineString(g), fr, true), style, canvas.Identity)
	case orb.Polygon:
		renderer.RenderPath(polygonPath(g, fr), style, canvas.Identity)
	case orb.MultiPolygon:
		for _, poly := range g {
			renderer.RenderPath(polygonPath(poly, fr), style, canvas.Identity)
		}
	case orb.Collection:
		for _, sub := range g {
			r.drawGeometry(renderer, sub, style, fr)
		}
	case orb.Bound:
		renderer.RenderPath(polygonPath(g.ToPolygon(), fr), style, canvas.Identity)
	}
}

func polyline(ls orb.LineString, fr frame, closed bool) *canvas.Path {
	p := &canvas.Path{}
	for i, pt := range ls {
		x, y := fr.point(pt)
		if i == 0 {
			p.MoveTo(x, y)
		} else {
			p.LineTo(x, y)
		}
	}
	if closed && len(ls) > 0 {
		p.Close()
	}
	return p
}

// polygonPath joins the rings into one path so holes are cut out by the
// non-zero fill rule
func polygonPath(poly orb.Polygon, fr frame) *canvas.Path {
	p := &canvas.Path{}
	for i, ring := range poly {
		rp := polyline(orb.LineString(ring), fr, true)
		if i > 0 && ring.Orientation() == poly[0].Orientation() {
			rp = rp.Reverse()
		}
		p = p.Append(rp)
	}
	return p
}
