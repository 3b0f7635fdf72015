//go:build !linux

package rgbmatrix

import "errors"

func setRealtime(priority int, cpus []int) error {
	if priority <= 0 && len(cpus) == 0 {
		return nil
	}
	return errors.New("real-time scheduling not supported on this platform")
}
