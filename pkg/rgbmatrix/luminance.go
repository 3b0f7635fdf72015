package rgbmatrix

import "math"

// bitPlanes is the resolution of a channel once mapped for modulation.
const bitPlanes = 11

const maxChannel = 1<<bitPlanes - 1

// channelTable maps an 8-bit channel onto the modulation resolution.
type channelTable [256]uint16

var (
	linearTable  channelTable
	cie1931Table channelTable
)

func init() {
	for i := range linearTable {
		linearTable[i] = uint16(math.Round(float64(i) * maxChannel / 255))
		cie1931Table[i] = cie1931(uint8(i))
	}
}

// cie1931 returns the channel value that makes an 8-bit input appear
// perceptually linear (CIE 1931 lightness).
func cie1931(c uint8) uint16 {
	l := float64(c) * 100 / 255
	var y float64
	if l <= 8 {
		y = l / 902.3
	} else {
		y = math.Pow((l+16)/116, 3)
	}
	return uint16(math.Round(y * maxChannel))
}
