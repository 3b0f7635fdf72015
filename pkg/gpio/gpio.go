// Package gpio drives the output lines of a HUB75 RGB matrix connector.
//
// The refresh engine only needs "write these lines now" semantics, so every
// backend implements IO on top of a shadow copy of the line levels and only
// touches the lines selected by the write mask.
package gpio

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	// ErrUnknownMapping is returned by MappingByName for unknown names.
	ErrUnknownMapping = errors.New("gpio: unknown pin mapping")
	// ErrNotInitialized is returned when lines are written before InitializeForPanel.
	ErrNotInitialized = errors.New("gpio: lines not initialized")
)

// Lines is a bitmask of GPIO line offsets; bit n is line n.
type Lines uint64

// Line returns the mask for a single line offset.
func Line(offset int) Lines {
	return Lines(1) << uint(offset)
}

// Has reports whether every line in m is set in l.
func (l Lines) Has(m Lines) bool {
	return l&m == m
}

// Offsets returns the line offsets in ascending order.
func (l Lines) Offsets() []int {
	offsets := make([]int, 0, bits.OnesCount64(uint64(l)))
	for v := uint64(l); v != 0; v &= v - 1 {
		offsets = append(offsets, bits.TrailingZeros64(v))
	}
	return offsets
}

// IO is the signal interface consumed by the refresh engine.
type IO interface {
	// InitializeForPanel claims every line in outputs as an output driven low.
	// Calling it again with lines already claimed is a no-op.
	InitializeForPanel(outputs Lines) error
	// WriteFrameLines drives the lines selected by mask to the levels in value.
	WriteFrameLines(value, mask Lines) error
}

// PinMapping assigns HUB75 signals to GPIO line offsets.
type PinMapping struct {
	Name string `yaml:"name"`

	OutputEnable int `yaml:"oe"`
	Clock        int `yaml:"clock"`
	Strobe       int `yaml:"strobe"`

	// Address holds the row select lines A, B, C, D, E in that order.
	Address []int `yaml:"address"`

	R1 int `yaml:"r1"`
	G1 int `yaml:"g1"`
	B1 int `yaml:"b1"`
	R2 int `yaml:"r2"`
	G2 int `yaml:"g2"`
	B2 int `yaml:"b2"`
}

// MappingAdafruitHAT is the pinout of the Adafruit RGB Matrix Bonnet/HAT.
var MappingAdafruitHAT = PinMapping{
	Name:         "adafruit-hat",
	OutputEnable: 4,
	Clock:        17,
	Strobe:       21,
	Address:      []int{22, 26, 27, 20, 24},
	R1:           5,
	G1:           13,
	B1:           6,
	R2:           12,
	G2:           16,
	B2:           23,
}

// MappingClassic is the direct wiring used by the early
// rpi-rgb-led-matrix boards.
var MappingClassic = PinMapping{
	Name:         "classic",
	OutputEnable: 2,
	Clock:        3,
	Strobe:       4,
	Address:      []int{7, 8, 9, 10},
	R1:           17,
	G1:           18,
	B1:           22,
	R2:           23,
	G2:           24,
	B2:           25,
}

// MappingByName returns a copy of a built-in mapping.
func MappingByName(name string) (PinMapping, error) {
	switch strings.ToLower(name) {
	case "", MappingAdafruitHAT.Name:
		return MappingAdafruitHAT.clone(), nil
	case MappingClassic.Name:
		return MappingClassic.clone(), nil
	}
	return PinMapping{}, fmt.Errorf("%w: %q", ErrUnknownMapping, name)
}

func (m PinMapping) clone() PinMapping {
	m.Address = append([]int(nil), m.Address...)
	return m
}

// Validate checks that every signal has a distinct line below 64.
func (m PinMapping) Validate() error {
	if len(m.Address) == 0 {
		return fmt.Errorf("gpio: mapping %q has no address lines", m.Name)
	}
	seen := Lines(0)
	for _, offset := range m.offsets() {
		if offset < 0 || offset >= 64 {
			return fmt.Errorf("gpio: mapping %q: line %d out of range", m.Name, offset)
		}
		if seen.Has(Line(offset)) {
			return fmt.Errorf("gpio: mapping %q: line %d used twice", m.Name, offset)
		}
		seen |= Line(offset)
	}
	return nil
}

func (m PinMapping) offsets() []int {
	o := []int{m.OutputEnable, m.Clock, m.Strobe, m.R1, m.G1, m.B1, m.R2, m.G2, m.B2}
	return append(o, m.Address...)
}

// Outputs returns every line used by the mapping.
func (m PinMapping) Outputs() Lines {
	var l Lines
	for _, offset := range m.offsets() {
		l |= Line(offset)
	}
	return l
}

// AddressMask returns the row select lines.
func (m PinMapping) AddressMask() Lines {
	var l Lines
	for _, offset := range m.Address {
		l |= Line(offset)
	}
	return l
}

// AddressLines encodes a row group index onto the address lines.
func (m PinMapping) AddressLines(row int) Lines {
	var l Lines
	for i, offset := range m.Address {
		if row&(1<<i) != 0 {
			l |= Line(offset)
		}
	}
	return l
}

// DecodeAddress decodes the row group index from line levels.
func (m PinMapping) DecodeAddress(levels Lines) int {
	row := 0
	for i, offset := range m.Address {
		if levels.Has(Line(offset)) {
			row |= 1 << i
		}
	}
	return row
}

// ColorMask returns the six data lines.
func (m PinMapping) ColorMask() Lines {
	return Line(m.R1) | Line(m.G1) | Line(m.B1) | Line(m.R2) | Line(m.G2) | Line(m.B2)
}

// MaxRowGroups is the number of row groups the address lines can select.
func (m PinMapping) MaxRowGroups() int {
	return 1 << len(m.Address)
}

// shadow tracks the levels last written to a set of claimed lines.
type shadow struct {
	claimed Lines
	levels  Lines
}

// claim records outputs as claimed and returns the lines not yet claimed.
func (s *shadow) claim(outputs Lines) Lines {
	fresh := outputs &^ s.claimed
	s.claimed |= fresh
	s.levels &^= fresh
	return fresh
}

// apply updates the shadow and returns the lines whose level changed.
func (s *shadow) apply(value, mask Lines) (Lines, error) {
	if s.claimed == 0 {
		return 0, ErrNotInitialized
	}
	mask &= s.claimed
	changed := (s.levels ^ value) & mask
	s.levels = s.levels&^mask | value&mask
	return changed, nil
}

// values returns the shadowed level of each offset as 0 or 1.
func (s *shadow) values(offsets []int) []int {
	out := make([]int, len(offsets))
	for i, offset := range offsets {
		if s.levels.Has(Line(offset)) {
			out[i] = 1
		}
	}
	return out
}
