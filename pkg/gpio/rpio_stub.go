//go:build !linux

package gpio

import "fmt"

type RPIO struct{}

func NewRPIO() *RPIO { return &RPIO{} }

func (r *RPIO) InitializeForPanel(outputs Lines) error {
	return fmt.Errorf("rpio not supported on this platform")
}

func (r *RPIO) WriteFrameLines(value, mask Lines) error {
	return ErrNotInitialized
}

func (r *RPIO) Close() error { return nil }
