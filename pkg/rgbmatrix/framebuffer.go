package rgbmatrix

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
)

const (
	// MinBrightnessDepth and MaxBrightnessDepth bound the bit planes
	// emitted per channel.
	MinBrightnessDepth = 1
	MaxBrightnessDepth = bitPlanes

	// DefaultBaseDwell is the output enable time of the least significant plane.
	DefaultBaseDwell = 200 * time.Nanosecond
)

// Frame is a pixel buffer in chain coordinates. Each pixel is stored
// packed as 0x00RRGGBB so it is always read and written whole.
type Frame struct {
	width  int
	height int
	pixels []atomic.Uint32
}

func newFrame(width, height int) *Frame {
	return &Frame{width: width, height: height, pixels: make([]atomic.Uint32, width*height)}
}

func pack(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func unpack(v uint32) (r, g, b uint8) {
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// SetPixel sets a chain pixel. Out of range coordinates are ignored.
func (f *Frame) SetPixel(x, y int, r, g, b uint8) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	f.pixels[y*f.width+x].Store(pack(r, g, b))
}

// Pixel returns a chain pixel, black when out of range.
func (f *Frame) Pixel(x, y int) (r, g, b uint8) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return 0, 0, 0
	}
	return unpack(f.pixels[y*f.width+x].Load())
}

// Fill sets every pixel to the same color.
func (f *Frame) Fill(r, g, b uint8) {
	v := pack(r, g, b)
	for i := range f.pixels {
		f.pixels[i].Store(v)
	}
}

// Clear sets every pixel to black.
func (f *Frame) Clear() {
	f.Fill(0, 0, 0)
}

// rgb11 holds channel values at modulation resolution.
type rgb11 [3]uint16

func (f *Frame) decodeRow(y int, table *channelTable, dst []rgb11) {
	row := f.pixels[y*f.width : (y+1)*f.width]
	for x := range row {
		r, g, b := unpack(row[x].Load())
		dst[x] = rgb11{table[r], table[g], table[b]}
	}
}

// Framebuffer is the refresh engine: it owns the pixel buffer and encodes
// it into bit plane scans on a signal interface.
type Framebuffer struct {
	width     int // chain width
	height    int // panel height
	baseDwell time.Duration

	active    atomic.Pointer[Frame]
	depth     atomic.Int32
	luminance atomic.Bool

	// scanMu is held for a whole EmitFrame. Swap takes it to wait out a
	// scan that may still be reading the previous frame.
	scanMu sync.Mutex
	top    []rgb11
	bottom []rgb11

	mapping   gpio.PinMapping
	outputs   gpio.Lines
	colorMask gpio.Lines
	addrMask  gpio.Lines
	clock     gpio.Lines
	strobe    gpio.Lines
	oe        gpio.Lines
	data      [6]gpio.Lines // r1 g1 b1 r2 g2 b2
}

// NewFramebuffer allocates a black buffer for the chain described by g.
func NewFramebuffer(g Geometry, m gpio.PinMapping, baseDwell time.Duration) (*Framebuffer, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if groups := g.PanelHeight / 2; groups > m.MaxRowGroups() {
		return nil, fmt.Errorf("%w: %d row groups need more than %d address lines",
			ErrInvalidGeometry, groups, len(m.Address))
	}
	if baseDwell <= 0 {
		baseDwell = DefaultBaseDwell
	}

	fb := &Framebuffer{
		width:     g.ChainWidth(),
		height:    g.PanelHeight,
		baseDwell: baseDwell,
		top:       make([]rgb11, g.ChainWidth()),
		bottom:    make([]rgb11, g.ChainWidth()),
		mapping:   m,
		outputs:   m.Outputs(),
		colorMask: m.ColorMask(),
		addrMask:  m.AddressMask(),
		clock:     gpio.Line(m.Clock),
		strobe:    gpio.Line(m.Strobe),
		oe:        gpio.Line(m.OutputEnable),
		data: [6]gpio.Lines{
			gpio.Line(m.R1), gpio.Line(m.G1), gpio.Line(m.B1),
			gpio.Line(m.R2), gpio.Line(m.G2), gpio.Line(m.B2),
		},
	}
	fb.active.Store(newFrame(fb.width, fb.height))
	fb.depth.Store(MaxBrightnessDepth)
	return fb, nil
}

// NewFrame allocates a black frame with the buffer's dimensions.
func (fb *Framebuffer) NewFrame() *Frame {
	return newFrame(fb.width, fb.height)
}

// Swap publishes f as the frame to scan and returns the previous one.
// The next EmitFrame picks up f; Swap returns once no scan can still be
// reading the previous frame. Frames of another size are rejected and
// nil is returned.
func (fb *Framebuffer) Swap(f *Frame) *Frame {
	if f == nil || f.width != fb.width || f.height != fb.height {
		return nil
	}
	prev := fb.active.Swap(f)
	fb.scanMu.Lock()
	fb.scanMu.Unlock()
	return prev
}

func (fb *Framebuffer) frame() *Frame { return fb.active.Load() }

// SetPixel sets a chain pixel of the active frame.
func (fb *Framebuffer) SetPixel(x, y int, r, g, b uint8) { fb.frame().SetPixel(x, y, r, g, b) }

// Pixel returns a chain pixel of the active frame.
func (fb *Framebuffer) Pixel(x, y int) (r, g, b uint8) { return fb.frame().Pixel(x, y) }

func (fb *Framebuffer) Fill(r, g, b uint8) { fb.frame().Fill(r, g, b) }
func (fb *Framebuffer) Clear()             { fb.frame().Clear() }

// SetBrightnessDepth sets the number of bit planes per channel. Values
// outside [MinBrightnessDepth, MaxBrightnessDepth] are rejected.
func (fb *Framebuffer) SetBrightnessDepth(n int) bool {
	if n < MinBrightnessDepth || n > MaxBrightnessDepth {
		return false
	}
	fb.depth.Store(int32(n))
	return true
}

func (fb *Framebuffer) BrightnessDepth() int { return int(fb.depth.Load()) }

// SetLuminanceCorrection toggles the CIE1931 remap for subsequent frames.
func (fb *Framebuffer) SetLuminanceCorrection(on bool) { fb.luminance.Store(on) }

func (fb *Framebuffer) LuminanceCorrection() bool { return fb.luminance.Load() }

// InitGPIO claims the mapping's lines as outputs and disables the display.
func (fb *Framebuffer) InitGPIO(io gpio.IO) error {
	if err := io.InitializeForPanel(fb.outputs); err != nil {
		return fmt.Errorf("failed to initialize panel lines: %w", err)
	}
	if err := io.WriteFrameLines(fb.oe, fb.oe); err != nil {
		return fmt.Errorf("failed to disable output: %w", err)
	}
	return nil
}

// EmitFrame scans the active frame once. Each row group is sent once per
// bit plane, least significant first, and displayed for a time
// proportional to the plane's weight. Depth, luminance setting and frame
// are read once at the start, so a scan never mixes two frames.
func (fb *Framebuffer) EmitFrame(io gpio.IO) error {
	fb.scanMu.Lock()
	defer fb.scanMu.Unlock()

	f := fb.frame()
	lowBit := bitPlanes - int(fb.depth.Load())
	table := &linearTable
	if fb.luminance.Load() {
		table = &cie1931Table
	}

	groups := fb.height / 2
	for row := 0; row < groups; row++ {
		f.decodeRow(row, table, fb.top)
		f.decodeRow(row+groups, table, fb.bottom)
		for plane := lowBit; plane < bitPlanes; plane++ {
			if err := fb.emitPlane(io, row, plane); err != nil {
				return fmt.Errorf("row %d plane %d: %w", row, plane, err)
			}
		}
	}
	return nil
}

func (fb *Framebuffer) emitPlane(io gpio.IO, row, plane int) error {
	for x := 0; x < fb.width; x++ {
		if err := io.WriteFrameLines(fb.planeBits(x, plane), fb.colorMask|fb.clock); err != nil {
			return err
		}
		if err := io.WriteFrameLines(fb.clock, fb.clock); err != nil {
			return err
		}
	}

	steps := [...]struct{ value, mask gpio.Lines }{
		{fb.oe | fb.mapping.AddressLines(row), fb.oe | fb.addrMask},
		{fb.strobe, fb.strobe},
		{0, fb.strobe},
		{0, fb.oe},
	}
	for _, s := range steps {
		if err := io.WriteFrameLines(s.value, s.mask); err != nil {
			return err
		}
	}
	dwell(fb.baseDwell << uint(plane))
	return io.WriteFrameLines(fb.oe, fb.oe)
}

func (fb *Framebuffer) planeBits(x, plane int) gpio.Lines {
	var l gpio.Lines
	top, bottom := fb.top[x], fb.bottom[x]
	for c := 0; c < 3; c++ {
		if top[c]>>uint(plane)&1 != 0 {
			l |= fb.data[c]
		}
		if bottom[c]>>uint(plane)&1 != 0 {
			l |= fb.data[3+c]
		}
	}
	return l
}

// dwell spins for d. Sleeping has far too coarse a granularity for
// sub-microsecond planes.
func dwell(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
