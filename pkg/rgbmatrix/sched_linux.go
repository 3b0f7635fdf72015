//go:build linux

package rgbmatrix

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// setRealtime moves the calling thread to SCHED_FIFO at priority and
// pins it to cpus. A priority of zero or less keeps the default policy.
func setRealtime(priority int, cpus []int) error {
	var errs []error
	if len(cpus) > 0 {
		var set unix.CPUSet
		set.Zero()
		for _, cpu := range cpus {
			set.Set(cpu)
		}
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			errs = append(errs, fmt.Errorf("cpu affinity %v: %w", cpus, err))
		}
	}
	if priority > 0 {
		if priority > 99 {
			priority = 99
		}
		attr := unix.SchedAttr{
			Size:     unix.SizeofSchedAttr,
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(priority),
		}
		if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
			errs = append(errs, fmt.Errorf("SCHED_FIFO priority %d: %w", priority, err))
		}
	}
	return errors.Join(errs...)
}
