//go:build linux

package rgbmatrix

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetRealtimeDisabled(t *testing.T) {
	assert.NoError(t, setRealtime(0, nil))
	assert.NoError(t, setRealtime(-1, nil))
}

func TestSetRealtimeOnLockedThread(t *testing.T) {
	errc := make(chan error, 1)
	go func() {
		// The thread is never unlocked, so it exits with the goroutine
		// and the FIFO policy does not leak into the test process.
		runtime.LockOSThread()
		errc <- setRealtime(1, nil)
	}()
	if err := <-errc; err != nil {
		// Unprivileged runs are denied; the request itself must be well formed.
		assert.Contains(t, err.Error(), "SCHED_FIFO priority 1")
	}
}
