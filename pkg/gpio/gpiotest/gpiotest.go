// Package gpiotest provides signal interfaces for tests: a HUB75 panel
// emulator that decodes the line transitions it receives.
package gpiotest

import (
	"errors"
	"sync"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
)

// ErrInjected is returned by writes after the configured failure point.
var ErrInjected = errors.New("gpiotest: injected failure")

// Data bits of one clocked column.
const (
	R1 uint8 = 1 << iota
	G1
	B1
	R2
	G2
	B2
)

// Pulse is one output-enable period: the row group selected by the
// address lines and the column data latched into the drivers.
type Pulse struct {
	Row  int
	Data []uint8
}

// Panel emulates the shift registers and row drivers of a HUB75 panel.
// Data is sampled on the rising clock edge, latched on the rising strobe
// edge and displayed while output enable is low.
type Panel struct {
	mapping gpio.PinMapping

	mu        sync.Mutex
	claimed   gpio.Lines
	levels    gpio.Lines
	inits     int
	writes    int
	failAfter int
	shift     []uint8
	latched   []uint8
	pulses    []Pulse
}

// NewPanel returns a panel wired with the given mapping.
func NewPanel(m gpio.PinMapping) *Panel {
	return &Panel{mapping: m}
}

// FailAfter makes every write after the first n fail with ErrInjected.
// Zero disables injection.
func (p *Panel) FailAfter(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAfter = n
}

func (p *Panel) InitializeForPanel(outputs gpio.Lines) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	fresh := outputs &^ p.claimed
	p.claimed |= fresh
	p.levels &^= fresh
	return nil
}

func (p *Panel) WriteFrameLines(value, mask gpio.Lines) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claimed == 0 {
		return gpio.ErrNotInitialized
	}
	p.writes++
	if p.failAfter > 0 && p.writes > p.failAfter {
		return ErrInjected
	}

	m := p.mapping
	mask &= p.claimed
	prev := p.levels
	next := prev&^mask | value&mask
	p.levels = next

	if rising(prev, next, m.Clock) {
		p.shift = append(p.shift, p.sample(next))
	}
	if rising(prev, next, m.Strobe) {
		p.latched = p.shift
		p.shift = nil
	}
	if falling(prev, next, m.OutputEnable) {
		p.pulses = append(p.pulses, Pulse{
			Row:  m.DecodeAddress(next),
			Data: append([]uint8(nil), p.latched...),
		})
	}
	return nil
}

func (p *Panel) sample(levels gpio.Lines) uint8 {
	m := p.mapping
	var d uint8
	for bit, offset := range []int{m.R1, m.G1, m.B1, m.R2, m.G2, m.B2} {
		if levels.Has(gpio.Line(offset)) {
			d |= 1 << bit
		}
	}
	return d
}

func rising(prev, next gpio.Lines, offset int) bool {
	l := gpio.Line(offset)
	return !prev.Has(l) && next.Has(l)
}

func falling(prev, next gpio.Lines, offset int) bool {
	l := gpio.Line(offset)
	return prev.Has(l) && !next.Has(l)
}

// Pulses returns the pulses seen since the last Reset.
func (p *Panel) Pulses() []Pulse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Pulse(nil), p.pulses...)
}

// Reset forgets recorded pulses. Line levels and claims are kept.
func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulses = nil
}

// Inits returns the number of InitializeForPanel calls.
func (p *Panel) Inits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits
}

// Writes returns the number of WriteFrameLines calls.
func (p *Panel) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Levels returns the current line levels.
func (p *Panel) Levels() gpio.Lines {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels
}

// Claimed returns the lines initialized as outputs.
func (p *Panel) Claimed() gpio.Lines {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimed
}
