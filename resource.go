package mediaview

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotSeekable is returned by resources without a seekable timeline.
	ErrNotSeekable = errors.New("resource is not seekable")

	// ErrClosed is returned by operations on a closed resource or element.
	ErrClosed = errors.New("closed")

	// ErrEmptyReference is returned when loading a file or image without a reference.
	ErrEmptyReference = errors.New("empty source reference")
)

// ResourceKind identifies the type of the active resource.
type ResourceKind int

const (
	ResourceNone   ResourceKind = iota // Nothing bound
	ResourceFile                       // Playable media file
	ResourceImage                      // Still image
	ResourceStream                     // Live capture stream
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceNone:
		return "none"
	case ResourceFile:
		return "file"
	case ResourceImage:
		return "image"
	case ResourceStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Notification is a lifecycle signal raised by a resource.
type Notification int

const (
	NotifyMetadata  Notification = iota // Duration and natural size are known
	NotifyDataReady                     // Enough decoded data to start playback
	NotifyPlaying                       // Playback started or restarted (loop)
	NotifyPaused                        // Playback paused
	NotifyEnded                         // Playback reached the end
	NotifyError                         // Loading or decoding failed
)

func (n Notification) String() string {
	switch n {
	case NotifyMetadata:
		return "metadata"
	case NotifyDataReady:
		return "data-ready"
	case NotifyPlaying:
		return "playing"
	case NotifyPaused:
		return "paused"
	case NotifyEnded:
		return "ended"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier receives resource notifications. err is set only for NotifyError.
// Implementations must not block; resources may call it from any goroutine,
// including from inside Play/Pause/Seek.
type Notifier func(n Notification, err error)

// Resource is the capability set shared by every active source.
type Resource interface {
	// Kind returns the resource kind.
	Kind() ResourceKind

	// Ref returns the source reference the resource was loaded from (empty for streams).
	Ref() string

	// NaturalSize returns the decoded pixel size, or zero before metadata is known.
	NaturalSize() Size

	// Close releases the resource. Streams stop their capture tracks.
	Close() error
}

// Playable is a Resource with a playback timeline.
type Playable interface {
	Resource

	// Play starts or resumes playback. Progress is reported via NotifyPlaying.
	Play() error

	// Pause pauses playback. Progress is reported via NotifyPaused.
	Pause() error

	// Seek moves the playback position.
	Seek(pos time.Duration) error

	// Position returns the resource's own playback position.
	Position() time.Duration

	// Duration returns the media duration, or 0 when unknown or live.
	Duration() time.Duration

	// SetPlaybackRate changes the playback rate. Invalid rates are handled by the resource.
	SetPlaybackRate(rate float64)

	// SetLooping sets whether playback restarts at the end.
	SetLooping(loop bool)

	// SetMuted mutes or unmutes audible output.
	SetMuted(muted bool)
}

// Loader binds source references and capture streams to resources.
type Loader interface {
	// LoadFile binds a playable media reference.
	LoadFile(ctx context.Context, ref string, notify Notifier) (Playable, error)

	// LoadImage binds a still image reference.
	LoadImage(ctx context.Context, ref string, notify Notifier) (Resource, error)

	// AttachStream binds an acquired capture stream.
	AttachStream(ctx context.Context, stream MediaStream, notify Notifier) (Playable, error)
}
