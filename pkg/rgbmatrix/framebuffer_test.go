package rgbmatrix

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio/gpiotest"
)

// decodeFrame rebuilds channel values from the pulses of one EmitFrame.
// The result is indexed [y][x] in chain coordinates.
func decodeFrame(t *testing.T, pulses []gpiotest.Pulse, width, height, depth int) [][]rgb11 {
	t.Helper()
	groups := height / 2
	require.Len(t, pulses, groups*depth, "one pulse per row group and plane")

	out := make([][]rgb11, height)
	for y := range out {
		out[y] = make([]rgb11, width)
	}
	lowBit := bitPlanes - depth
	for i, p := range pulses {
		row := i / depth
		plane := uint(lowBit + i%depth)
		require.Equal(t, row, p.Row, "pulse %d address", i)
		require.Len(t, p.Data, width, "pulse %d columns", i)
		for x, d := range p.Data {
			top, bottom := &out[row][x], &out[row+groups][x]
			for c, bit := range []uint8{gpiotest.R1, gpiotest.G1, gpiotest.B1} {
				if d&bit != 0 {
					top[c] |= 1 << plane
				}
			}
			for c, bit := range []uint8{gpiotest.R2, gpiotest.G2, gpiotest.B2} {
				if d&bit != 0 {
					bottom[c] |= 1 << plane
				}
			}
		}
	}
	return out
}

func newTestFramebuffer(t *testing.T, g Geometry) (*Framebuffer, *gpiotest.Panel) {
	t.Helper()
	fb, err := NewFramebuffer(g, gpio.MappingAdafruitHAT, 1)
	require.NoError(t, err)
	panel := gpiotest.NewPanel(gpio.MappingAdafruitHAT)
	require.NoError(t, fb.InitGPIO(panel))
	return fb, panel
}

func emit(t *testing.T, fb *Framebuffer, panel *gpiotest.Panel) [][]rgb11 {
	t.Helper()
	panel.Reset()
	require.NoError(t, fb.EmitFrame(panel))
	return decodeFrame(t, panel.Pulses(), fb.width, fb.height, fb.BrightnessDepth())
}

func TestNewFramebufferValidation(t *testing.T) {
	tests := []struct {
		name    string
		g       Geometry
		m       gpio.PinMapping
		wantErr bool
	}{
		{"32x32 on hat", Geometry{32, 32, 1, 1}, gpio.MappingAdafruitHAT, false},
		{"64 rows on hat", Geometry{64, 64, 1, 1}, gpio.MappingAdafruitHAT, false},
		{"64 rows on classic", Geometry{32, 64, 1, 1}, gpio.MappingClassic, true},
		{"odd height", Geometry{32, 15, 1, 1}, gpio.MappingAdafruitHAT, true},
		{"zero width", Geometry{0, 16, 1, 1}, gpio.MappingAdafruitHAT, true},
		{"zero rows", Geometry{32, 16, 0, 1}, gpio.MappingAdafruitHAT, true},
		{"no address lines", Geometry{32, 16, 1, 1}, gpio.PinMapping{Name: "empty"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFramebuffer(tt.g, tt.m, 0)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitGPIODisablesOutput(t *testing.T) {
	fb, panel := newTestFramebuffer(t, Geometry{4, 4, 1, 1})
	assert.Equal(t, gpio.MappingAdafruitHAT.Outputs(), panel.Claimed())
	assert.True(t, panel.Levels().Has(fb.oe))
	assert.Empty(t, panel.Pulses())
}

func TestEmitFrameModulation(t *testing.T) {
	pixels := []struct {
		x, y    int
		r, g, b uint8
	}{
		{0, 0, 255, 0, 0},
		{3, 0, 0, 128, 1},
		{1, 2, 17, 200, 99},
		{2, 3, 255, 255, 255},
	}

	for _, depth := range []int{MaxBrightnessDepth, 7, 4, MinBrightnessDepth} {
		for _, luminance := range []bool{false, true} {
			fb, panel := newTestFramebuffer(t, Geometry{4, 4, 1, 1})
			require.True(t, fb.SetBrightnessDepth(depth))
			fb.SetLuminanceCorrection(luminance)
			for _, p := range pixels {
				fb.SetPixel(p.x, p.y, p.r, p.g, p.b)
			}

			table := &linearTable
			if luminance {
				table = &cie1931Table
			}
			dropped := uint16(1)<<uint(bitPlanes-depth) - 1

			got := emit(t, fb, panel)
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					r, g, b := fb.Pixel(x, y)
					want := rgb11{table[r] &^ dropped, table[g] &^ dropped, table[b] &^ dropped}
					assert.Equal(t, want, got[y][x], "depth %d luminance %v pixel (%d,%d)", depth, luminance, x, y)
				}
			}
		}
	}
}

func TestEmitFrameLeavesOutputDisabled(t *testing.T) {
	fb, panel := newTestFramebuffer(t, Geometry{8, 8, 1, 1})
	fb.Fill(10, 20, 30)
	require.NoError(t, fb.EmitFrame(panel))
	assert.True(t, panel.Levels().Has(fb.oe))
	assert.False(t, panel.Levels().Has(fb.strobe))
}

func TestEmitFrameSignalFailure(t *testing.T) {
	fb, panel := newTestFramebuffer(t, Geometry{4, 4, 1, 1})
	panel.FailAfter(panel.Writes() + 5)
	err := fb.EmitFrame(panel)
	require.Error(t, err)
	assert.ErrorIs(t, err, gpiotest.ErrInjected)
}

func TestBrightnessDepthRejection(t *testing.T) {
	fb, _ := newTestFramebuffer(t, Geometry{4, 4, 1, 1})
	assert.Equal(t, MaxBrightnessDepth, fb.BrightnessDepth())

	assert.True(t, fb.SetBrightnessDepth(5))
	assert.Equal(t, 5, fb.BrightnessDepth())

	for _, n := range []int{MaxBrightnessDepth + 1, 0, -3, 100} {
		assert.False(t, fb.SetBrightnessDepth(n), "depth %d", n)
		assert.Equal(t, 5, fb.BrightnessDepth())
	}
}

func TestFillClear(t *testing.T) {
	fb, _ := newTestFramebuffer(t, Geometry{4, 4, 2, 1})

	fb.Fill(1, 2, 3)
	once := snapshot(fb)
	fb.Fill(1, 2, 3)
	assert.Equal(t, once, snapshot(fb))

	fb.Clear()
	for _, v := range snapshot(fb) {
		assert.Equal(t, [3]uint8{}, v)
	}
}

func snapshot(fb *Framebuffer) [][3]uint8 {
	var out [][3]uint8
	for y := 0; y < fb.height; y++ {
		for x := 0; x < fb.width; x++ {
			r, g, b := fb.Pixel(x, y)
			out = append(out, [3]uint8{r, g, b})
		}
	}
	return out
}

func TestSwapRejectsForeignFrames(t *testing.T) {
	fb, _ := newTestFramebuffer(t, Geometry{4, 4, 1, 1})
	assert.Nil(t, fb.Swap(nil))
	assert.Nil(t, fb.Swap(newFrame(8, 4)))

	next := fb.NewFrame()
	next.Fill(9, 9, 9)
	prev := fb.Swap(next)
	require.NotNil(t, prev)
	r, g, b := fb.Pixel(0, 0)
	assert.Equal(t, [3]uint8{9, 9, 9}, [3]uint8{r, g, b})
}

// A scan must see exactly one frame even while frames are being swapped.
func TestEmitFrameNeverMixesSwappedFrames(t *testing.T) {
	fb, panel := newTestFramebuffer(t, Geometry{8, 8, 1, 2})
	red, blue := fb.NewFrame(), fb.NewFrame()
	red.Fill(255, 0, 0)
	blue.Fill(0, 0, 255)
	fb.Swap(red)

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		frames := [2]*Frame{blue, red}
		for i := 0; !stop.Load(); i++ {
			fb.Swap(frames[i%2])
		}
	}()

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		panel.Reset()
		require.NoError(t, fb.EmitFrame(panel))
		var redBits, blueBits bool
		for _, p := range panel.Pulses() {
			for _, d := range p.Data {
				redBits = redBits || d&(gpiotest.R1|gpiotest.R2) != 0
				blueBits = blueBits || d&(gpiotest.B1|gpiotest.B2) != 0
			}
		}
		require.False(t, redBits && blueBits, "frame %d mixes red and blue", i)
		if redBits {
			seen["red"]++
		} else {
			seen["blue"]++
		}
	}
	stop.Store(true)
	wg.Wait()
	assert.Equal(t, 200, seen["red"]+seen["blue"])
}

func TestLuminanceTables(t *testing.T) {
	assert.Equal(t, uint16(0), linearTable[0])
	assert.Equal(t, uint16(maxChannel), linearTable[255])
	assert.Equal(t, uint16(0), cie1931Table[0])
	assert.Equal(t, uint16(maxChannel), cie1931Table[255])

	for i := 1; i < 256; i++ {
		assert.GreaterOrEqual(t, cie1931Table[i], cie1931Table[i-1], "cie1931 not monotonic at %d", i)
		assert.Greater(t, linearTable[i], linearTable[i-1], "linear not increasing at %d", i)
	}
	// Perceptual correction darkens the midtones.
	assert.Less(t, cie1931Table[128], linearTable[128])
}
