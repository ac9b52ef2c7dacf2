package carto

import (
	"bytes"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// previewCartogram has a background with every geometry kind the renderers
// draw
func previewCartogram(t *testing.T) *Cartogram {
	t.Helper()
	source := pointCollection([]string{"a", "b", "c"}, []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10}})
	target := pointCollection([]string{"a", "b", "c"}, []Point{{X: 0, Y: 0}, {X: 14, Y: 0}, {X: 5, Y: 8}})

	background := geojson.NewFeatureCollection()
	background.Append(geojson.NewFeature(orb.Polygon{
		{{1, 1}, {9, 1}, {9, 9}, {1, 9}, {1, 1}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	}))
	background.Append(geojson.NewFeature(orb.MultiLineString{{{0, 5}, {10, 5}}}))
	background.Append(geojson.NewFeature(orb.Point{2, 8}))
	background.Append(geojson.NewFeature(nil))

	c, err := NewCartogram(source, target, background, Options{SourceID: "name", TargetID: "name", Precision: 1})
	require.NoError(t, err)
	return c
}

func TestVectorRenderer_SVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewVectorRenderer(previewCartogram(t)).RenderToSVG(&buf))

	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "</svg>"), "SVG document should be closed")
	assert.Contains(t, out, "<path")
}

func TestVectorRenderer_PNG(t *testing.T) {
	r := NewVectorRenderer(previewCartogram(t))
	r.ShowSource = false

	var buf bytes.Buffer
	require.NoError(t, r.RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), 0)
}

func TestVectorRenderer_NoCartogram(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewVectorRenderer(nil).RenderToSVG(&buf))
	assert.Error(t, NewVectorRenderer(nil).RenderToPNG(&buf))
}

func TestRasterRenderer_Render(t *testing.T) {
	r := NewRasterRenderer(previewCartogram(t))
	img, err := r.Render()
	require.NoError(t, err)

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longest := w
	if h > longest {
		longest = h
	}
	// longer side is Width plus the padding on both ends
	assert.InDelta(t, r.Width+2*r.Padding, longest, 2)

	// the corner is background grey
	assert.Equal(t, uint8(240), img.RGBAAt(w-1, h-1).R)
}

func TestRasterRenderer_SavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, NewRasterRenderer(endToEnd(t)).SavePNG(path))

	_, err := NewRasterRenderer(nil).Render()
	assert.Error(t, err)
}

func TestNRGBAToRGBA(t *testing.T) {
	tests := []struct {
		in   [4]uint8
		want [4]uint8
	}{
		{[4]uint8{10, 20, 30, 0}, [4]uint8{0, 0, 0, 0}},
		{[4]uint8{10, 20, 30, 255}, [4]uint8{10, 20, 30, 255}},
		{[4]uint8{255, 0, 100, 51}, [4]uint8{51, 0, 20, 51}},
	}
	for _, tt := range tests {
		c := DefaultPalette().Fill
		c.R, c.G, c.B, c.A = tt.in[0], tt.in[1], tt.in[2], tt.in[3]
		got := nrgbaToRGBA(c)
		assert.Equal(t, tt.want, [4]uint8{got.R, got.G, got.B, got.A})
	}
}
