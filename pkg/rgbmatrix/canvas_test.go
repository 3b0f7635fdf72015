package rgbmatrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryDimensions(t *testing.T) {
	tests := []struct {
		name          string
		g             Geometry
		width, height int
		chainWidth    int
	}{
		{"single panel", Geometry{32, 16, 1, 1}, 32, 16, 32},
		{"two wide", Geometry{32, 32, 1, 2}, 64, 32, 64},
		{"two high", Geometry{32, 32, 2, 1}, 32, 64, 64},
		{"two by two", Geometry{32, 32, 2, 2}, 64, 64, 128},
		{"three by two", Geometry{64, 32, 3, 2}, 128, 96, 384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.g.Validate())
			assert.Equal(t, tt.width, tt.g.Width())
			assert.Equal(t, tt.height, tt.g.Height())
			assert.Equal(t, tt.chainWidth, tt.g.ChainWidth())
		})
	}
}

func TestGeometryValidate(t *testing.T) {
	for _, g := range []Geometry{
		{0, 16, 1, 1},
		{32, 0, 1, 1},
		{32, 15, 1, 1},
		{32, 16, 0, 1},
		{32, 16, 1, -1},
	} {
		err := g.Validate()
		assert.ErrorIs(t, err, ErrInvalidGeometry, "%+v", g)
	}
}

func TestFold(t *testing.T) {
	g := Geometry{PanelWidth: 32, PanelHeight: 32, Rows: 2, Cols: 2}

	tests := []struct {
		x, y int
		want PanelPoint
		cx   int
		cy   int
	}{
		{0, 0, PanelPoint{0, 0, 0}, 0, 0},
		{63, 31, PanelPoint{0, 63, 31}, 63, 31},
		{0, 32, PanelPoint{1, 0, 0}, 64, 0},
		{10, 40, PanelPoint{1, 10, 8}, 74, 8},
		{63, 63, PanelPoint{1, 63, 31}, 127, 31},
	}

	for _, tt := range tests {
		p, ok := g.Fold(tt.x, tt.y)
		require.True(t, ok, "(%d,%d)", tt.x, tt.y)
		assert.Equal(t, tt.want, p, "(%d,%d)", tt.x, tt.y)

		cx, cy, ok := g.Chain(tt.x, tt.y)
		require.True(t, ok)
		assert.Equal(t, [2]int{tt.cx, tt.cy}, [2]int{cx, cy}, "chain of (%d,%d)", tt.x, tt.y)

		back, x, y := g.Unfold(cx, cy)
		assert.Equal(t, p, back)
		assert.Equal(t, [2]int{tt.x, tt.y}, [2]int{x, y}, "unfold of (%d,%d)", cx, cy)
	}
}

func TestFoldStackedBoundary(t *testing.T) {
	g := Geometry{PanelWidth: 32, PanelHeight: 32, Rows: 2, Cols: 1}
	tests := []struct {
		x, y int
		want PanelPoint
	}{
		{0, 31, PanelPoint{0, 0, 31}},
		{0, 32, PanelPoint{1, 0, 0}},
		{31, 31, PanelPoint{0, 31, 31}},
		{31, 32, PanelPoint{1, 31, 0}},
		{31, 63, PanelPoint{1, 31, 31}},
	}
	for _, tt := range tests {
		p, ok := g.Fold(tt.x, tt.y)
		require.True(t, ok)
		assert.Equal(t, tt.want, p, "(%d,%d)", tt.x, tt.y)
	}

	// Vertically adjacent pixels across the fold end up a panel row apart.
	top, _, _ := g.Chain(5, 31)
	bottom, _, _ := g.Chain(5, 32)
	assert.Equal(t, 5, top)
	assert.Equal(t, 37, bottom)
}

func TestFoldOutOfRange(t *testing.T) {
	g := Geometry{PanelWidth: 32, PanelHeight: 16, Rows: 2, Cols: 1}
	for _, pt := range [][2]int{{-1, 0}, {0, -1}, {32, 0}, {0, 32}, {1000, 1000}} {
		_, ok := g.Fold(pt[0], pt[1])
		assert.False(t, ok, "%v", pt)
		_, _, ok = g.Chain(pt[0], pt[1])
		assert.False(t, ok, "%v", pt)
	}
}

// Every canvas pixel lands on a distinct chain pixel.
func TestChainIsBijective(t *testing.T) {
	g := Geometry{PanelWidth: 8, PanelHeight: 4, Rows: 3, Cols: 2}
	seen := make(map[[2]int]bool)
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			cx, cy, ok := g.Chain(x, y)
			require.True(t, ok)
			require.Less(t, cx, g.ChainWidth())
			require.Less(t, cy, g.PanelHeight)
			key := [2]int{cx, cy}
			require.False(t, seen[key], "(%d,%d) collides at %v", x, y, key)
			seen[key] = true
		}
	}
	assert.Len(t, seen, g.ChainWidth()*g.PanelHeight)
}

func TestFrameCanvas(t *testing.T) {
	g := Geometry{PanelWidth: 4, PanelHeight: 4, Rows: 2, Cols: 1}
	fb, err := NewFramebuffer(g, mappingForTest(), 0)
	require.NoError(t, err)
	c := &FrameCanvas{geometry: g, frame: fb.NewFrame()}

	assert.Equal(t, 4, c.Width())
	assert.Equal(t, 8, c.Height())

	c.SetPixel(1, 6, 10, 20, 30)
	r, gr, b := c.Pixel(1, 6)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, gr, b})
	r, gr, b = c.frame.Pixel(5, 2)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, gr, b}, "stored at chain coordinate")

	c.SetPixel(4, 0, 1, 1, 1)
	c.SetPixel(0, -1, 1, 1, 1)
	r, gr, b = c.Pixel(4, 0)
	assert.Equal(t, [3]uint8{}, [3]uint8{r, gr, b})

	c.Fill(7, 7, 7)
	r, gr, b = c.Pixel(3, 7)
	assert.Equal(t, [3]uint8{7, 7, 7}, [3]uint8{r, gr, b})
	c.Clear()
	r, gr, b = c.Pixel(3, 7)
	assert.Equal(t, [3]uint8{}, [3]uint8{r, gr, b})
}
