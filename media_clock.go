package mediaview

import (
	"math"
	"sync"
	"time"
)

// MediaInfo is the metadata of a playable file.
type MediaInfo struct {
	Duration time.Duration
	Size     Size
}

// ClockMedia is a playable file whose timeline advances with the wall clock
// scaled by the playback rate. It follows HTML media element ordering:
// metadata then data-ready once loaded, playing on start, and pause followed
// by ended when a non-looping timeline runs out. A looping timeline restarts
// and reports playing again without pausing.
type ClockMedia struct {
	ref    string
	notify Notifier
	now    func() time.Time

	mu        sync.Mutex
	ready     bool
	info      MediaInfo
	playing   bool
	wantPlay  bool
	base      time.Duration
	startedAt time.Time
	rate      float64
	loop      bool
	muted     bool
	closed    bool
	endTimer  *time.Timer
	timerGen  uint64
}

// NewClockMedia creates an unloaded media timeline for ref. Call SetMetadata
// or Fail once the reference has been probed.
func NewClockMedia(ref string, notify Notifier) *ClockMedia {
	if notify == nil {
		notify = func(Notification, error) {}
	}
	return &ClockMedia{
		ref:    ref,
		notify: notify,
		now:    time.Now,
		rate:   1,
	}
}

func (m *ClockMedia) Kind() ResourceKind { return ResourceFile }
func (m *ClockMedia) Ref() string        { return m.ref }

// SetMetadata completes loading. A Play requested while loading starts now.
func (m *ClockMedia) SetMetadata(info MediaInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.ready {
		return
	}
	m.info = info
	m.ready = true
	m.notify(NotifyMetadata, nil)
	m.notify(NotifyDataReady, nil)
	if m.wantPlay {
		m.startLocked()
	}
}

// Fail reports a load error.
func (m *ClockMedia) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.notify(NotifyError, err)
}

func (m *ClockMedia) NaturalSize() Size {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info.Size
}

func (m *ClockMedia) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info.Duration
}

// Play starts playback, or defers it until metadata arrives.
func (m *ClockMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.playing {
		return nil
	}
	if !m.ready {
		m.wantPlay = true
		return nil
	}
	m.startLocked()
	return nil
}

func (m *ClockMedia) startLocked() {
	m.wantPlay = false
	if m.info.Duration > 0 && m.base >= m.info.Duration {
		m.base = 0
	}
	m.playing = true
	m.startedAt = m.now()
	m.scheduleLocked()
	m.notify(NotifyPlaying, nil)
}

func (m *ClockMedia) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.wantPlay = false
	if !m.playing {
		return nil
	}
	m.base = m.positionLocked()
	m.playing = false
	m.cancelTimerLocked()
	m.notify(NotifyPaused, nil)
	return nil
}

func (m *ClockMedia) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if pos < 0 {
		pos = 0
	}
	if m.info.Duration > 0 && pos > m.info.Duration {
		pos = m.info.Duration
	}
	m.base = pos
	if m.playing {
		m.startedAt = m.now()
		m.scheduleLocked()
	}
	return nil
}

func (m *ClockMedia) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *ClockMedia) positionLocked() time.Duration {
	if !m.playing {
		return m.base
	}
	elapsed := float64(m.now().Sub(m.startedAt)) * m.rate
	pos := m.base + time.Duration(elapsed)
	if m.info.Duration > 0 && pos > m.info.Duration {
		pos = m.info.Duration
	}
	return pos
}

// SetPlaybackRate ignores rates that are not finite and positive.
func (m *ClockMedia) SetPlaybackRate(rate float64) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.base = m.positionLocked()
		m.startedAt = m.now()
	}
	m.rate = rate
	if m.playing {
		m.scheduleLocked()
	}
}

// PlaybackRate returns the effective rate.
func (m *ClockMedia) PlaybackRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *ClockMedia) SetLooping(loop bool) {
	m.mu.Lock()
	m.loop = loop
	m.mu.Unlock()
}

func (m *ClockMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether audible output is muted.
func (m *ClockMedia) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *ClockMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.playing = false
	m.wantPlay = false
	m.cancelTimerLocked()
	return nil
}

func (m *ClockMedia) scheduleLocked() {
	m.cancelTimerLocked()
	if m.info.Duration <= 0 {
		return
	}
	remaining := time.Duration(float64(m.info.Duration-m.positionLocked()) / m.rate)
	if remaining < 0 {
		remaining = 0
	}
	gen := m.timerGen
	m.endTimer = time.AfterFunc(remaining, func() { m.onEnd(gen) })
}

func (m *ClockMedia) cancelTimerLocked() {
	m.timerGen++
	if m.endTimer != nil {
		m.endTimer.Stop()
		m.endTimer = nil
	}
}

func (m *ClockMedia) onEnd(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.timerGen || !m.playing {
		return
	}
	if m.loop {
		m.base = 0
		m.startedAt = m.now()
		m.scheduleLocked()
		m.notify(NotifyPlaying, nil)
		return
	}
	m.base = m.info.Duration
	m.playing = false
	m.endTimer = nil
	m.notify(NotifyPaused, nil)
	m.notify(NotifyEnded, nil)
}
