package gpio

import (
	"fmt"
	"io"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendChip   = "gpiocdev"
	BackendPeriph = "periph"
	BackendRPIO   = "rpio"
)

// Closer is an IO that holds hardware resources.
type Closer interface {
	IO
	io.Closer
}

// Open returns the backend with the given name. chip is only used by the
// character device backend.
func Open(backend, chip string) (Closer, error) {
	switch strings.ToLower(backend) {
	case "", BackendChip:
		return NewChipIO(chip), nil
	case BackendPeriph:
		return NewPeriphIO(), nil
	case BackendRPIO:
		return NewRPIO(), nil
	}
	return nil, fmt.Errorf("gpio: unknown backend %q", backend)
}
