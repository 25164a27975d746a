package mediaview

import (
	"sync"
	"time"
)

// DefaultSampleInterval is the time-update cadence while playing.
const DefaultSampleInterval = 100 * time.Millisecond

// Sampler is a restartable periodic timer. Each Start supersedes the previous
// run; ticks carry the run number so receivers can drop ticks that were
// already in flight when the run was replaced or stopped.
type Sampler struct {
	interval time.Duration
	tick     func(run uint64)

	mu   sync.Mutex
	run  uint64
	stop chan struct{}
	done chan struct{}
}

// NewSampler creates a stopped sampler calling tick every interval.
func NewSampler(interval time.Duration, tick func(run uint64)) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{interval: interval, tick: tick}
}

// Start cancels any running timer and starts a new one. It returns the new run number.
func (s *Sampler) Start() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.run++
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.run, s.stop, s.done)
	return s.run
}

// Stop cancels the running timer, if any, and waits for it to exit.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Running reports whether a timer is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Current returns the active run number, or 0 when stopped.
func (s *Sampler) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return 0
	}
	return s.run
}

func (s *Sampler) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func (s *Sampler) loop(run uint64, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(run)
		}
	}
}
