package rgbmatrix

import (
	"fmt"
)

// Geometry describes how panels are chained and folded into a canvas.
//
// The chain is wired as one horizontal strip of Rows*Cols panels. The
// canvas folds it into Rows panel rows of Cols panels each: panel row n
// continues the chain after panel row n-1, left to right.
type Geometry struct {
	PanelWidth  int `yaml:"panel_width"`
	PanelHeight int `yaml:"panel_height"`
	Rows        int `yaml:"rows"`
	Cols        int `yaml:"cols"`
}

// PanelPoint is a canvas coordinate resolved to a panel row.
type PanelPoint struct {
	PanelRow int
	X        int // column within the panel row
	Y        int // row within the panel
}

// Validate checks the geometry dimensions.
func (g Geometry) Validate() error {
	switch {
	case g.PanelWidth <= 0:
		return fmt.Errorf("%w: panel width %d", ErrInvalidGeometry, g.PanelWidth)
	case g.PanelHeight < 2 || g.PanelHeight%2 != 0:
		return fmt.Errorf("%w: panel height %d must be even", ErrInvalidGeometry, g.PanelHeight)
	case g.Rows <= 0 || g.Cols <= 0:
		return fmt.Errorf("%w: %d rows x %d cols", ErrInvalidGeometry, g.Rows, g.Cols)
	}
	return nil
}

// Width returns the canvas width.
func (g Geometry) Width() int { return g.PanelWidth * g.Cols }

// Height returns the canvas height.
func (g Geometry) Height() int { return g.PanelHeight * g.Rows }

// RowWidth returns the width of one panel row of the chain.
func (g Geometry) RowWidth() int { return g.PanelWidth * g.Cols }

// ChainWidth returns the width of the whole chain.
func (g Geometry) ChainWidth() int { return g.RowWidth() * g.Rows }

// Fold resolves a canvas coordinate to its panel row. ok is false for
// coordinates outside the canvas.
func (g Geometry) Fold(x, y int) (p PanelPoint, ok bool) {
	if x < 0 || x >= g.Width() || y < 0 || y >= g.Height() {
		return PanelPoint{}, false
	}
	fold := y / g.PanelHeight
	return PanelPoint{PanelRow: fold, X: x, Y: y % g.PanelHeight}, true
}

// Chain returns the chain coordinate of a canvas coordinate.
func (g Geometry) Chain(x, y int) (cx, cy int, ok bool) {
	p, ok := g.Fold(x, y)
	if !ok {
		return 0, 0, false
	}
	return p.PanelRow*g.RowWidth() + p.X, p.Y, true
}

// Unfold maps a chain coordinate back onto the canvas.
func (g Geometry) Unfold(cx, cy int) (p PanelPoint, x, y int) {
	fold := cx / g.RowWidth()
	p = PanelPoint{PanelRow: fold, X: cx - fold*g.RowWidth(), Y: cy}
	return p, p.X, fold*g.PanelHeight + cy
}

// FrameCanvas is an offscreen canvas. Draw into it, then publish it with
// Matrix.SwapFrameCanvas.
type FrameCanvas struct {
	geometry Geometry
	frame    *Frame
}

func (c *FrameCanvas) Width() int  { return c.geometry.Width() }
func (c *FrameCanvas) Height() int { return c.geometry.Height() }

// SetPixel sets a canvas pixel. Out of range coordinates are ignored.
func (c *FrameCanvas) SetPixel(x, y int, r, g, b uint8) {
	if cx, cy, ok := c.geometry.Chain(x, y); ok {
		c.frame.SetPixel(cx, cy, r, g, b)
	}
}

// Pixel returns a canvas pixel, black when out of range.
func (c *FrameCanvas) Pixel(x, y int) (r, g, b uint8) {
	if cx, cy, ok := c.geometry.Chain(x, y); ok {
		return c.frame.Pixel(cx, cy)
	}
	return 0, 0, 0
}

func (c *FrameCanvas) Clear()              { c.frame.Clear() }
func (c *FrameCanvas) Fill(r, g, b uint8) { c.frame.Fill(r, g, b) }
