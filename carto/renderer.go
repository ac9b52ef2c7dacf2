package carto

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// maxRasterSize caps either side of a raster preview
const maxRasterSize = 4000

// RasterRenderer draws a quick pixel preview of the deformed lattice with the
// anchor moves and a text legend
type RasterRenderer struct {
	Cartogram *Cartogram
	Palette   Palette
	Width     int // pixels, longer side
	Padding   int
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(c *Cartogram) *RasterRenderer {
	return &RasterRenderer{
		Cartogram: c,
		Palette:   DefaultPalette(),
		Width:     800,
		Padding:   40,
	}
}

// Render draws the preview
func (r *RasterRenderer) Render() (*image.RGBA, error) {
	if r.Cartogram == nil {
		return nil, fmt.Errorf("rendering raster preview: no cartogram")
	}
	g := r.Cartogram.Grid()
	interp := r.Cartogram.InterpMesh()

	bound := g.Bound()
	if b, ok := CollectionBound(interp); ok {
		bound = bound.Union(b)
	}
	bw := bound.Max[0] - bound.Min[0]
	bh := bound.Max[1] - bound.Min[1]

	size := r.Width
	if size <= 0 || size > maxRasterSize {
		size = maxRasterSize
	}
	scale := float64(size) / math.Max(bw, bh)
	width := int(bw*scale) + 2*r.Padding
	height := int(bh*scale) + 2*r.Padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{240, 240, 240, 255}}, image.Point{}, draw.Src)

	// image rows grow downward, world y upward
	toImage := func(p orb.Point) (int, int) {
		x := int((p[0]-bound.Min[0])*scale) + r.Padding
		y := height - r.Padding - int((p[1]-bound.Min[1])*scale)
		return x, y
	}

	meshColor := color.RGBA{r.Palette.InterpMesh.R, r.Palette.InterpMesh.G, r.Palette.InterpMesh.B, 255}
	for _, f := range interp.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			continue
		}
		ring := poly[0]
		for k := 1; k < len(ring); k++ {
			x1, y1 := toImage(ring[k-1])
			x2, y2 := toImage(ring[k])
			drawLine(img, x1, y1, x2, y2, meshColor)
		}
	}

	arrowColor := color.RGBA{r.Palette.Arrow.R, r.Palette.Arrow.G, r.Palette.Arrow.B, 255}
	targetColor := color.RGBA{r.Palette.Target.R, r.Palette.Target.G, r.Palette.Target.B, 255}
	for _, a := range r.Cartogram.Anchors() {
		x1, y1 := toImage(a.Source.Orb())
		x2, y2 := toImage(a.Result.Orb())
		drawLine(img, x1, y1, x2, y2, arrowColor)
		tx, ty := toImage(a.Target.Orb())
		drawCircle(img, tx, ty, 3, targetColor)
	}

	r.drawLegend(img)
	return img, nil
}

// RenderToPNG encodes the preview as PNG
func (r *RasterRenderer) RenderToPNG(w io.Writer) error {
	img, err := r.Render()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// SavePNG writes the preview to a file
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return r.RenderToPNG(f)
}

func (r *RasterRenderer) drawLegend(img *image.RGBA) {
	s := r.Cartogram.Summary()
	lines := []string{
		fmt.Sprintf("%d anchors, grid %dx%d, resolution %.4g", s.Anchors, s.Width, s.Height, s.Resolution),
		fmt.Sprintf("%d iterations, max residual %.4g", s.Iterations, s.Stats.MaxResidual),
	}
	black := color.RGBA{0, 0, 0, 255}
	y := 15
	for _, line := range lines {
		drawText(img, 10, y, line, black)
		y += 15
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// drawLine draws a 1px line with Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy
	b := img.Bounds()
	for {
		if image.Pt(x1, y1).In(b) {
			img.SetRGBA(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	b := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius && image.Pt(cx+dx, cy+dy).In(b) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
