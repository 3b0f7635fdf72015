//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "rgbmatrix"

// ChipIO drives the matrix through the GPIO character device.
type ChipIO struct {
	chip string

	mu     sync.Mutex
	lines  *gpiocdev.Lines
	index  map[int]int // line offset -> position in values
	values []int
	shadow shadow
}

// NewChipIO creates a character device backend for the given chip, e.g. "gpiochip0".
func NewChipIO(chip string) *ChipIO {
	if chip == "" {
		chip = "gpiochip0"
	}
	return &ChipIO{chip: chip}
}

// InitializeForPanel requests every line in outputs as an output driven low.
// Lines claimed by an earlier call keep their current level.
func (c *ChipIO) InitializeForPanel(outputs Lines) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shadow.claim(outputs) == 0 {
		return nil
	}

	// The whole set is re-requested so that one SetValues call covers every line.
	if c.lines != nil {
		if err := c.lines.Close(); err != nil {
			log.Warn().Err(err).Str("chip", c.chip).Msg("closing previous line request")
		}
		c.lines = nil
	}

	// Lines already driven keep their level across the re-request.
	offsets := c.shadow.claimed.Offsets()
	initial := c.shadow.values(offsets)
	lines, err := gpiocdev.RequestLines(c.chip, offsets,
		gpiocdev.AsOutput(initial...),
		gpiocdev.WithConsumer(consumer))
	if err != nil {
		c.shadow = shadow{}
		return fmt.Errorf("failed to request lines %v on %s: %w", offsets, c.chip, err)
	}

	c.lines = lines
	c.values = initial
	c.index = make(map[int]int, len(offsets))
	for i, offset := range offsets {
		c.index[offset] = i
	}
	log.Debug().Str("chip", c.chip).Ints("offsets", offsets).Msg("requested GPIO lines")
	return nil
}

// WriteFrameLines drives the lines selected by mask to the levels in value.
func (c *ChipIO) WriteFrameLines(value, mask Lines) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed, err := c.shadow.apply(value, mask)
	if err != nil {
		return err
	}
	if changed == 0 {
		return nil
	}
	for _, offset := range changed.Offsets() {
		level := 0
		if value.Has(Line(offset)) {
			level = 1
		}
		c.values[c.index[offset]] = level
	}
	if err := c.lines.SetValues(c.values); err != nil {
		return fmt.Errorf("failed to set line values on %s: %w", c.chip, err)
	}
	return nil
}

// Close releases all requested lines.
func (c *ChipIO) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shadow = shadow{}
	if c.lines == nil {
		return nil
	}
	err := c.lines.Close()
	c.lines = nil
	return err
}
