package mediaview

import (
	"sync"
	"time"
)

// StreamMedia plays a live capture stream. It has no seekable timeline;
// Position reports time spent playing. Closing it stops every track.
type StreamMedia struct {
	stream MediaStream
	notify Notifier
	now    func() time.Time

	mu        sync.Mutex
	playing   bool
	startedAt time.Time
	played    time.Duration
	rate      float64
	muted     bool
	closed    bool
}

// NewStreamMedia binds stream. Call Announce once the caller is ready to
// receive notifications.
func NewStreamMedia(stream MediaStream, notify Notifier) *StreamMedia {
	if notify == nil {
		notify = func(Notification, error) {}
	}
	return &StreamMedia{
		stream: stream,
		notify: notify,
		now:    time.Now,
		rate:   1,
	}
}

// Announce reports metadata and data-ready; a live stream has both as soon
// as it is bound.
func (m *StreamMedia) Announce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.notify(NotifyMetadata, nil)
	m.notify(NotifyDataReady, nil)
}

// Stream returns the bound capture stream.
func (m *StreamMedia) Stream() MediaStream { return m.stream }

func (m *StreamMedia) Kind() ResourceKind { return ResourceStream }
func (m *StreamMedia) Ref() string        { return "" }

// NaturalSize returns the first video track's capture size.
func (m *StreamMedia) NaturalSize() Size {
	tracks := m.stream.GetVideoTracks()
	if len(tracks) == 0 {
		return Size{}
	}
	s := tracks[0].Settings()
	return Size{Width: float64(s.Width), Height: float64(s.Height)}
}

func (m *StreamMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.playing {
		return nil
	}
	m.playing = true
	m.startedAt = m.now()
	m.notify(NotifyPlaying, nil)
	return nil
}

func (m *StreamMedia) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.playing {
		return nil
	}
	m.played += m.now().Sub(m.startedAt)
	m.playing = false
	m.notify(NotifyPaused, nil)
	return nil
}

// Seek always fails: live streams are not seekable.
func (m *StreamMedia) Seek(time.Duration) error { return ErrNotSeekable }

func (m *StreamMedia) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return m.played
	}
	return m.played + m.now().Sub(m.startedAt)
}

// Duration is 0 for live streams.
func (m *StreamMedia) Duration() time.Duration { return 0 }

// SetPlaybackRate is recorded but has no effect on live capture.
func (m *StreamMedia) SetPlaybackRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
}

func (m *StreamMedia) SetLooping(bool) {}

func (m *StreamMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether audible output is muted.
func (m *StreamMedia) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *StreamMedia) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.playing = false
	m.mu.Unlock()
	return m.stream.Close()
}
