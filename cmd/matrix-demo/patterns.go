package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/rgbmatrix"
)

//go:embed testcard.svg
var testCardSVG []byte

// canvas is what patterns draw on.
type canvas interface {
	Width() int
	Height() int
	SetPixel(x, y int, r, g, b uint8)
	Fill(r, g, b uint8)
}

// pattern draws frame n of a test pattern.
type pattern struct {
	name string
	draw func(c canvas, n int)
}

func fill(r, g, b uint8) func(canvas, int) {
	return func(c canvas, _ int) { c.Fill(r, g, b) }
}

// checkerboard alternates between two phases every frame.
func checkerboard(c canvas, n int) {
	for y := 0; y < c.Height(); y++ {
		for x := 0; x < c.Width(); x++ {
			if (x+y+n)%2 == 0 {
				c.SetPixel(x, y, 255, 255, 255)
			} else {
				c.SetPixel(x, y, 0, 0, 0)
			}
		}
	}
}

// gradient ramps each channel across the width. It is the pattern that
// shows the effect of luminance correction.
func gradient(c canvas, _ int) {
	w, h := c.Width(), c.Height()
	band := h / 3
	if band == 0 {
		band = 1
	}
	for x := 0; x < w; x++ {
		v := uint8(x * 255 / max(w-1, 1))
		for y := 0; y < h; y++ {
			switch {
			case y < band:
				c.SetPixel(x, y, v, 0, 0)
			case y < 2*band:
				c.SetPixel(x, y, 0, v, 0)
			default:
				c.SetPixel(x, y, 0, 0, v)
			}
		}
	}
}

// renderSVG rasterizes an SVG document to fit w x h.
func renderSVG(doc []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}

func blit(img image.Image) func(canvas, int) {
	return func(c canvas, _ int) {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				p := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				c.SetPixel(x-b.Min.X, y-b.Min.Y, p.R, p.G, p.B)
			}
		}
	}
}

// scroll moves text from right to left, one pixel per frame.
func scroll(text string) func(canvas, int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	red := image.NewUniform(color.RGBA{255, 0, 0, 255})
	return func(c canvas, n int) {
		img := image.NewRGBA(image.Rect(0, 0, c.Width(), c.Height()))
		d := font.Drawer{
			Dst:  img,
			Src:  red,
			Face: face,
			Dot:  fixed.P(c.Width()-n%(c.Width()+width), (c.Height()+face.Ascent-face.Descent)/2),
		}
		d.DrawString(text)
		blit(img)(c, n)
	}
}

// patterns returns the demo sequence for a canvas of w x h pixels.
func patterns(w, h int, text string) ([]pattern, error) {
	card, err := renderSVG(testCardSVG, w, h)
	if err != nil {
		return nil, err
	}
	return []pattern{
		{"red", fill(255, 0, 0)},
		{"green", fill(0, 255, 0)},
		{"blue", fill(0, 0, 255)},
		{"checkerboard", checkerboard},
		{"gradient", gradient},
		{"testcard", blit(card)},
		{"scroll", scroll(text)},
	}, nil
}

func findPattern(ps []pattern, name string) (pattern, bool) {
	for _, p := range ps {
		if p.name == name {
			return p, true
		}
	}
	return pattern{}, false
}

var _ canvas = (*rgbmatrix.FrameCanvas)(nil)
