package mediaview

import (
	"context"
	"fmt"
	"time"
)

// DefaultLoader binds files to ClockMedia, images to ImageResource and
// capture streams to StreamMedia. Metadata is read in the background and
// reported through the resource's Notifier.
type DefaultLoader struct {
	Prober Prober
	Images *ImageDecoder
}

// NewDefaultLoader returns a loader probing files with ffprobe and caching
// image sizes for five minutes.
func NewDefaultLoader() *DefaultLoader {
	return &DefaultLoader{
		Prober: FFProbe{},
		Images: NewImageDecoder(5 * time.Minute),
	}
}

// LoadFile implements Loader.
func (l *DefaultLoader) LoadFile(ctx context.Context, ref string, notify Notifier) (Playable, error) {
	if ref == "" {
		return nil, ErrEmptyReference
	}
	m := NewClockMedia(ref, notify)
	prober := l.Prober
	if prober == nil {
		prober = FFProbe{}
	}
	go func() {
		info, err := prober.Probe(ctx, ref)
		if err != nil {
			m.Fail(fmt.Errorf("probe: %w", err))
			return
		}
		m.SetMetadata(info)
	}()
	return m, nil
}

// LoadImage implements Loader.
func (l *DefaultLoader) LoadImage(ctx context.Context, ref string, notify Notifier) (Resource, error) {
	if ref == "" {
		return nil, ErrEmptyReference
	}
	if notify == nil {
		notify = func(Notification, error) {}
	}
	images := l.Images
	if images == nil {
		images = NewImageDecoder(0)
	}
	r := NewImageResource(ref)
	go func() {
		size, err := images.DecodeSize(ref)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			notify(NotifyError, err)
			return
		}
		if r.setSize(size) {
			notify(NotifyMetadata, nil)
		}
	}()
	return r, nil
}

// AttachStream implements Loader.
func (l *DefaultLoader) AttachStream(ctx context.Context, stream MediaStream, notify Notifier) (Playable, error) {
	if stream == nil {
		return nil, fmt.Errorf("attach stream: %w", ErrClosed)
	}
	m := NewStreamMedia(stream, notify)
	m.Announce()
	return m, nil
}
