// Package rgbmatrix drives chains of HUB75 RGB LED panels.
//
// A Matrix owns a pixel buffer and, once a signal interface is attached,
// a refresh thread that continuously scans the buffer out to the panels
// using binary coded modulation. Drawing calls take effect on the next
// refresh; there is no separate show step.
package rgbmatrix

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
)

var (
	// ErrInvalidGeometry is returned for unusable panel layouts.
	ErrInvalidGeometry = errors.New("rgbmatrix: invalid geometry")
	// ErrBufferSize is returned by SetBuffer for a buffer of the wrong length.
	ErrBufferSize = errors.New("rgbmatrix: buffer size does not match canvas")
)

const (
	// DefaultPriority is the SCHED_FIFO priority requested for the refresh thread.
	DefaultPriority      = 99
	DefaultStatsInterval = 5 * time.Second
)

// RefreshConfig tunes the refresh thread.
type RefreshConfig struct {
	// BaseDwell is the display time of the least significant bit plane.
	BaseDwell time.Duration
	// Priority is the SCHED_FIFO priority; zero selects DefaultPriority
	// and a negative value keeps the default scheduler.
	Priority int
	// CPUs pins the refresh thread to these CPUs when not empty.
	CPUs []int
	// StatsInterval is how often the refresh rate is logged at debug level.
	StatsInterval time.Duration
}

// Config holds the configuration for the LED matrix
type Config struct {
	Geometry            Geometry
	Mapping             gpio.PinMapping
	BrightnessDepth     int
	LuminanceCorrection bool
	Refresh             RefreshConfig

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger

	// IO, when set, is attached by NewMatrix.
	IO gpio.IO
}

// Matrix is a canvas backed by a chain of panels.
type Matrix struct {
	geometry Geometry
	fb       *Framebuffer
	refresh  RefreshConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	io      gpio.IO
	updater *updater
	closed  bool

	fatalOnce sync.Once
	fatal     chan struct{}
	errMu     sync.Mutex
	err       error
}

// NewMatrix creates a matrix with a black buffer.
func NewMatrix(cfg *Config) (*Matrix, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidGeometry)
	}
	mapping := cfg.Mapping
	if len(mapping.Address) == 0 {
		mapping = gpio.MappingAdafruitHAT
	}

	fb, err := NewFramebuffer(cfg.Geometry, mapping, cfg.Refresh.BaseDwell)
	if err != nil {
		return nil, err
	}
	if cfg.BrightnessDepth != 0 && !fb.SetBrightnessDepth(cfg.BrightnessDepth) {
		return nil, fmt.Errorf("brightness depth must be between %d and %d, got %d",
			MinBrightnessDepth, MaxBrightnessDepth, cfg.BrightnessDepth)
	}
	fb.SetLuminanceCorrection(cfg.LuminanceCorrection)

	refresh := cfg.Refresh
	if refresh.Priority == 0 {
		refresh.Priority = DefaultPriority
	}
	if refresh.StatsInterval == 0 {
		refresh.StatsInterval = DefaultStatsInterval
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	m := &Matrix{
		geometry: cfg.Geometry,
		fb:       fb,
		refresh:  refresh,
		logger: logger.With().
			Str("component", "rgbmatrix").
			Int("width", cfg.Geometry.Width()).
			Int("height", cfg.Geometry.Height()).
			Logger(),
		fatal: make(chan struct{}),
	}

	if cfg.IO != nil {
		if err := m.AttachSignalInterface(cfg.IO); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AttachSignalInterface initializes the panel lines on io and starts the
// refresh thread. Attaching nil, or attaching when an interface is
// already attached, does nothing.
func (m *Matrix) AttachSignalInterface(io gpio.IO) error {
	if io == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.io != nil || m.closed {
		return nil
	}
	if err := m.fb.InitGPIO(io); err != nil {
		return err
	}

	m.io = io
	m.updater = newUpdater(func() error { return m.fb.EmitFrame(io) }, m.setFatal, m.refresh, m.logger)
	m.updater.start()
	m.logger.Info().
		Int("depth", m.fb.BrightnessDepth()).
		Bool("luminance", m.fb.LuminanceCorrection()).
		Msg("refresh started")
	return nil
}

func (m *Matrix) setFatal(err error) {
	m.errMu.Lock()
	m.err = err
	m.errMu.Unlock()
	m.fatalOnce.Do(func() { close(m.fatal) })
}

// Fatal is closed when the refresh thread stops because the signal
// interface failed.
func (m *Matrix) Fatal() <-chan struct{} {
	return m.fatal
}

// Err returns the signal interface error that stopped the refresh, if any.
func (m *Matrix) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Stats returns refresh statistics; zero before a signal interface is attached.
func (m *Matrix) Stats() RefreshStats {
	m.mu.Lock()
	u := m.updater
	m.mu.Unlock()
	if u == nil {
		return RefreshStats{}
	}
	return u.stats()
}

// Close stops the refresh thread, blanks the panel with one last frame
// and releases the matrix. It is safe to call more than once.
func (m *Matrix) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.updater != nil {
		m.updater.stop()
		m.updater.waitStopped()
		m.updater = nil
	}

	m.fb.Clear()
	if m.io == nil {
		return nil
	}
	err := m.fb.EmitFrame(m.io)
	m.io = nil
	if err != nil {
		return fmt.Errorf("failed to blank panel: %w", err)
	}
	m.logger.Info().Msg("refresh stopped, panel blanked")
	return nil
}

// Width returns the canvas width in pixels.
func (m *Matrix) Width() int { return m.geometry.Width() }

// Height returns the canvas height in pixels.
func (m *Matrix) Height() int { return m.geometry.Height() }

// Geometry returns the panel layout.
func (m *Matrix) Geometry() Geometry { return m.geometry }

// SetPixel sets a pixel. Coordinates outside the canvas are ignored.
func (m *Matrix) SetPixel(x, y int, r, g, b uint8) {
	if cx, cy, ok := m.geometry.Chain(x, y); ok {
		m.fb.SetPixel(cx, cy, r, g, b)
	}
}

// Pixel returns the color of a pixel, black outside the canvas.
func (m *Matrix) Pixel(x, y int) (r, g, b uint8) {
	if cx, cy, ok := m.geometry.Chain(x, y); ok {
		return m.fb.Pixel(cx, cy)
	}
	return 0, 0, 0
}

// Clear sets every pixel to black.
func (m *Matrix) Clear() { m.fb.Clear() }

// Fill sets every pixel to the same color.
func (m *Matrix) Fill(r, g, b uint8) { m.fb.Fill(r, g, b) }

// SetBuffer writes a whole canvas of packed RGB triplets in row-major order.
func (m *Matrix) SetBuffer(rgb []byte) error {
	w, h := m.Width(), m.Height()
	if len(rgb) != w*h*3 {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(rgb), w*h*3)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			m.SetPixel(x, y, rgb[i], rgb[i+1], rgb[i+2])
		}
	}
	return nil
}

// SetBrightnessDepth sets the bit planes per channel and reports whether
// n was accepted. Rejected values keep the previous setting.
func (m *Matrix) SetBrightnessDepth(n int) bool {
	ok := m.fb.SetBrightnessDepth(n)
	if !ok {
		m.logger.Debug().Int("depth", n).Msg("brightness depth rejected")
	}
	return ok
}

// BrightnessDepth returns the bit planes per channel.
func (m *Matrix) BrightnessDepth() int { return m.fb.BrightnessDepth() }

// SetLuminanceCorrection maps brightness of output linearly to input
// with the CIE1931 profile.
func (m *Matrix) SetLuminanceCorrection(on bool) { m.fb.SetLuminanceCorrection(on) }

// LuminanceCorrection reports whether CIE1931 correction is enabled.
func (m *Matrix) LuminanceCorrection() bool { return m.fb.LuminanceCorrection() }

// NewFrameCanvas returns a black offscreen canvas.
func (m *Matrix) NewFrameCanvas() *FrameCanvas {
	return &FrameCanvas{geometry: m.geometry, frame: m.fb.NewFrame()}
}

// SwapFrameCanvas displays c from the next frame on and returns the
// previously displayed canvas, which is safe to draw into again.
// Canvases from another matrix are rejected and nil is returned.
func (m *Matrix) SwapFrameCanvas(c *FrameCanvas) *FrameCanvas {
	if c == nil || c.geometry != m.geometry {
		return nil
	}
	prev := m.fb.Swap(c.frame)
	if prev == nil {
		return nil
	}
	return &FrameCanvas{geometry: m.geometry, frame: prev}
}

// ColorModel implements image.Image.
func (m *Matrix) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (m *Matrix) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width(), m.Height()) }

// At implements image.Image.
func (m *Matrix) At(x, y int) color.Color {
	r, g, b := m.Pixel(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Set implements draw.Image. Alpha is dropped; writes never blend.
func (m *Matrix) Set(x, y int, c color.Color) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	m.SetPixel(x, y, n.R, n.G, n.B)
}
