package carto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeMatrixCSV = `"",o,a,b,c
o,0,5,40,5
a,5,0,1,1
b,40,1,0,1
c,5,1,1,0
`

func imageLayerSource() []Point {
	return []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 20}, {X: 3, Y: 4}}
}

func TestParseTimeMatrix(t *testing.T) {
	m, err := ParseTimeMatrix(strings.NewReader(timeMatrixCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"o", "a", "b", "c"}, m.IDs())

	times, err := m.Times("o")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"o": 0, "a": 5, "b": 40, "c": 5}, times)

	_, err = m.Times("zz")
	assert.Error(t, err)
}

func TestParseTimeMatrix_Errors(t *testing.T) {
	_, err := ParseTimeMatrix(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseTimeMatrix(strings.NewReader("a,b\n"))
	assert.Error(t, err)
}

func TestTimeMatrix_UnparsableCell(t *testing.T) {
	m, err := ParseTimeMatrix(strings.NewReader(",o,a\no,0,-\na,n/a,0\n"))
	require.NoError(t, err)
	times, err := m.Times("o")
	require.NoError(t, err)
	assert.Equal(t, 0.0, times["o"])
	assert.True(t, times["a"] != times["a"], "expected NaN for unparsable cell")
}

func TestImageLayer(t *testing.T) {
	m, err := ParseTimeMatrix(strings.NewReader(timeMatrixCSV))
	require.NoError(t, err)
	source := pointCollection([]string{"o", "a", "b", "c"}, imageLayerSource())

	tests := []struct {
		name   string
		factor float64
		want   []Point
	}{
		{
			name:   "full move",
			factor: 1,
			// speeds 2, 0.5, 1: reference 1
			want: []Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 40}, {X: 3, Y: 4}},
		},
		{
			name:   "half move",
			factor: 0.5,
			want:   []Point{{X: 0, Y: 0}, {X: 7.5, Y: 0}, {X: 0, Y: 30}, {X: 3, Y: 4}},
		},
		{
			name:   "no move",
			factor: 0,
			want:   imageLayerSource(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ImageLayer(source, "name", "o", m, tt.factor)
			require.NoError(t, err)
			require.Len(t, out.Features, len(tt.want))
			for i, f := range out.Features {
				p, err := anchorPoint(f)
				require.NoError(t, err)
				assert.InDelta(t, tt.want[i].X, p.X, 1e-9, "feature %d x", i)
				assert.InDelta(t, tt.want[i].Y, p.Y, 1e-9, "feature %d y", i)
			}
		})
	}
}

func TestImageLayer_Properties(t *testing.T) {
	m, err := ParseTimeMatrix(strings.NewReader(timeMatrixCSV))
	require.NoError(t, err)
	source := pointCollection([]string{"o", "a", "b", "c"}, imageLayerSource())

	out, err := ImageLayer(source, "name", "o", m, 1)
	require.NoError(t, err)

	origin := out.Features[0].Properties
	assert.Equal(t, "o", origin["name"])
	assert.Nil(t, origin["speed"])
	assert.Equal(t, 1.0, origin["displacement"])

	a := out.Features[1].Properties
	assert.Equal(t, 5.0, a["time"])
	assert.Equal(t, 10.0, a["distance"])
	assert.Equal(t, 2.0, a["speed"])
	assert.Equal(t, 0.5, a["displacement"])

	// the source collection is left alone
	assert.Nil(t, source.Features[1].Properties["speed"])
}

func TestImageLayer_Errors(t *testing.T) {
	m, err := ParseTimeMatrix(strings.NewReader(timeMatrixCSV))
	require.NoError(t, err)
	source := pointCollection([]string{"o", "a", "b", "c"}, imageLayerSource())

	_, err = ImageLayer(nil, "name", "o", m, 1)
	assert.Error(t, err)

	_, err = ImageLayer(source, "name", "zz", m, 1)
	assert.ErrorContains(t, err, "no column")

	noOrigin := pointCollection([]string{"a", "b"}, []Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	_, err = ImageLayer(noOrigin, "name", "o", m, 1)
	assert.ErrorContains(t, err, "not in source collection")

	_, err = ImageLayer(source, "code", "o", m, 1)
	assert.Error(t, err)
}

func TestImageLayer_EvenSpeedCount(t *testing.T) {
	const matrix = `"",o,a,b,c,d
o,0,10,5,2.5,2
a,10,0,1,1,1
b,5,1,0,1,1
c,2.5,1,1,0,1
d,2,1,1,1,0
`
	m, err := ParseTimeMatrix(strings.NewReader(matrix))
	require.NoError(t, err)
	source := pointCollection([]string{"o", "a", "b", "c", "d"},
		[]Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: -10, Y: 0}, {X: 0, Y: -10}})

	out, err := ImageLayer(source, "name", "o", m, 1)
	require.NoError(t, err)

	// speeds 1, 2, 4, 5: reference is the mean of the middle pair, 3
	want := []Point{{X: 0, Y: 0}, {X: 30, Y: 0}, {X: 0, Y: 15}, {X: -7.5, Y: 0}, {X: 0, Y: -6}}
	require.Len(t, out.Features, len(want))
	for i, f := range out.Features {
		p, err := anchorPoint(f)
		require.NoError(t, err)
		assert.InDelta(t, want[i].X, p.X, 1e-9, "feature %d x", i)
		assert.InDelta(t, want[i].Y, p.Y, 1e-9, "feature %d y", i)
	}
	assert.InDelta(t, 3.0, out.Features[1].Properties["displacement"], 1e-9)
}

func TestMedianOf(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{7}, 7},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{5, 1}, 3},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, medianOf(tt.in), 1e-12, "median of %v", tt.in)
	}
}
