package rgbmatrix

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type updaterState int

const (
	stateCreated updaterState = iota
	stateRunning
	stateStopRequested
	stateStopped
)

func (s updaterState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateRunning:
		return "running"
	case stateStopRequested:
		return "stop-requested"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// RefreshStats reports the progress of the refresh thread.
type RefreshStats struct {
	Frames    uint64
	LastFrame time.Duration
}

// Rate returns the refresh rate implied by the last frame.
func (s RefreshStats) Rate() float64 {
	if s.LastFrame <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.LastFrame)
}

// updater pumps frames to the panel from a dedicated OS thread until
// stopped. It needs real-time priority because jitter shows as flicker.
type updater struct {
	emit          func() error
	onFatal       func(error)
	priority      int
	cpus          []int
	statsInterval time.Duration
	logger        zerolog.Logger

	mu    sync.Mutex
	state updaterState
	done  chan struct{}

	frames    atomic.Uint64
	lastFrame atomic.Int64
}

func newUpdater(emit func() error, onFatal func(error), rc RefreshConfig, logger zerolog.Logger) *updater {
	return &updater{
		emit:          emit,
		onFatal:       onFatal,
		priority:      rc.Priority,
		cpus:          rc.CPUs,
		statsInterval: rc.StatsInterval,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

func (u *updater) start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != stateCreated {
		return
	}
	u.state = stateRunning
	go u.run()
}

// stop asks the loop to exit after the frame in flight.
func (u *updater) stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == stateRunning {
		u.state = stateStopRequested
	}
}

// waitStopped blocks until the loop has exited. It returns at once for
// an updater that was never started.
func (u *updater) waitStopped() {
	u.mu.Lock()
	created := u.state == stateCreated
	u.mu.Unlock()
	if created {
		return
	}
	<-u.done
}

func (u *updater) running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == stateRunning
}

func (u *updater) currentState() updaterState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *updater) stats() RefreshStats {
	return RefreshStats{
		Frames:    u.frames.Load(),
		LastFrame: time.Duration(u.lastFrame.Load()),
	}
}

func (u *updater) run() {
	defer close(u.done)

	// The thread is never unlocked: it exits with the goroutine, so its
	// scheduling class does not leak back into the runtime's pool.
	runtime.LockOSThread()
	if err := setRealtime(u.priority, u.cpus); err != nil {
		u.logger.Warn().Err(err).Int("priority", u.priority).Msg("running refresh at default priority")
	}

	u.logger.Debug().Msg("refresh thread started")
	lastReport := time.Now()
	for u.running() {
		start := time.Now()
		if err := u.emit(); err != nil {
			u.logger.Error().Err(err).Uint64("frames", u.frames.Load()).Msg("refresh stopped: signal interface failed")
			u.finish()
			if u.onFatal != nil {
				u.onFatal(err)
			}
			return
		}
		u.lastFrame.Store(int64(time.Since(start)))
		u.frames.Add(1)

		if u.statsInterval > 0 && time.Since(lastReport) >= u.statsInterval {
			lastReport = time.Now()
			s := u.stats()
			u.logger.Debug().Float64("hz", s.Rate()).Uint64("frames", s.Frames).Msg("refresh rate")
		}
	}
	u.finish()
	u.logger.Debug().Uint64("frames", u.frames.Load()).Msg("refresh thread stopped")
}

func (u *updater) finish() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == stateRunning {
		u.state = stateStopRequested
	}
	u.state = stateStopped
}
