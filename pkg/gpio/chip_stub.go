//go:build !linux

package gpio

import "fmt"

// ChipIO is unavailable outside Linux.
type ChipIO struct{}

func NewChipIO(chip string) *ChipIO { return &ChipIO{} }

func (c *ChipIO) InitializeForPanel(outputs Lines) error {
	return fmt.Errorf("gpio character device not supported on this platform")
}

func (c *ChipIO) WriteFrameLines(value, mask Lines) error {
	return ErrNotInitialized
}

func (c *ChipIO) Close() error { return nil }
