//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stianeikeland/go-rpio/v4"
)

const maxBCMLine = 53

// RPIO drives the matrix by writing the BCM283x GPIO registers through
// /dev/gpiomem. It is the lowest latency backend on Pi 1-4 boards.
type RPIO struct {
	mu     sync.Mutex
	opened bool
	shadow shadow
}

// NewRPIO creates a register backend. The memory map is opened on the
// first InitializeForPanel call.
func NewRPIO() *RPIO {
	return &RPIO{}
}

func (r *RPIO) InitializeForPanel(outputs Lines) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := outputs &^ r.shadow.claimed
	if fresh == 0 {
		return nil
	}
	if err := checkBCM(fresh); err != nil {
		return err
	}
	if !r.opened {
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("failed to open rpio: %w", err)
		}
		r.opened = true
	}
	for _, offset := range fresh.Offsets() {
		pin := rpio.Pin(offset)
		pin.Output()
		pin.Low()
		r.shadow.claim(Line(offset))
	}
	log.Debug().Ints("offsets", fresh.Offsets()).Msg("rpio pins configured")
	return nil
}

// checkBCM rejects lines outside the BCM283x GPIO bank.
func checkBCM(lines Lines) error {
	if bad := lines &^ (Line(maxBCMLine+1) - 1); bad != 0 {
		return fmt.Errorf("rpio: lines %v are not BCM GPIOs", bad.Offsets())
	}
	return nil
}

func (r *RPIO) WriteFrameLines(value, mask Lines) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed, err := r.shadow.apply(value, mask)
	if err != nil {
		return err
	}
	for _, offset := range changed.Offsets() {
		if value.Has(Line(offset)) {
			rpio.Pin(offset).High()
		} else {
			rpio.Pin(offset).Low()
		}
	}
	return nil
}

// Close drives every claimed line low and unmaps the registers.
func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opened {
		return nil
	}
	for _, offset := range r.shadow.claimed.Offsets() {
		rpio.Pin(offset).Low()
	}
	r.shadow = shadow{}
	r.opened = false
	return rpio.Close()
}
