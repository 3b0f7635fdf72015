package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphIO drives the matrix through the periph.io host drivers.
type PeriphIO struct {
	mu     sync.Mutex
	pins   map[int]pinOut
	shadow shadow

	hostInit func() error
	byName   func(name string) pinOut
}

// pinOut is the part of pgpio.PinOut the backend uses.
type pinOut interface {
	Out(l pgpio.Level) error
}

// NewPeriphIO creates a periph.io backend. Host drivers are loaded on
// the first InitializeForPanel call.
func NewPeriphIO() *PeriphIO {
	return &PeriphIO{
		pins: make(map[int]pinOut),
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		byName: func(name string) pinOut {
			if pin := gpioreg.ByName(name); pin != nil {
				return pin
			}
			return nil
		},
	}
}

// InitializeForPanel looks up every line in outputs and drives it low.
// Lines configured before a failure stay claimed.
func (p *PeriphIO) InitializeForPanel(outputs Lines) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := outputs &^ p.shadow.claimed
	if fresh == 0 {
		return nil
	}
	if err := p.hostInit(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	for _, offset := range fresh.Offsets() {
		name := fmt.Sprintf("GPIO%d", offset)
		pin := p.byName(name)
		if pin == nil {
			return fmt.Errorf("failed to find pin %s", name)
		}
		if err := pin.Out(pgpio.Low); err != nil {
			return fmt.Errorf("failed to set %s as output: %w", name, err)
		}
		p.pins[offset] = pin
		p.shadow.claim(Line(offset))
	}
	log.Debug().Ints("offsets", fresh.Offsets()).Msg("periph pins configured")
	return nil
}

// WriteFrameLines drives the lines selected by mask to the levels in value.
func (p *PeriphIO) WriteFrameLines(value, mask Lines) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed, err := p.shadow.apply(value, mask)
	if err != nil {
		return err
	}
	for _, offset := range changed.Offsets() {
		level := pgpio.Low
		if value.Has(Line(offset)) {
			level = pgpio.High
		}
		if err := p.pins[offset].Out(level); err != nil {
			return fmt.Errorf("failed to write GPIO%d: %w", offset, err)
		}
	}
	return nil
}

// Close drives every claimed line low and forgets them.
func (p *PeriphIO) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for offset, pin := range p.pins {
		if err := pin.Out(pgpio.Low); err != nil && first == nil {
			first = fmt.Errorf("failed to release GPIO%d: %w", offset, err)
		}
	}
	p.pins = make(map[int]pinOut)
	p.shadow = shadow{}
	return first
}
