package mediaview

import (
	"strconv"
	"strings"
)

// SetAttribute applies a string attribute as a host markup layer would.
// Boolean attributes are true when present unless the value is "false".
// Unknown names are stored but otherwise ignored.
func (e *Element) SetAttribute(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setAttributeLocked(name, value)
}

// RemoveAttribute resets an attribute to its default.
func (e *Element) RemoveAttribute(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name = CanonicalAttribute(name)
	delete(e.attrs, name)
	switch name {
	case AttrSourceReference:
		e.setSourceRefLocked("")
	case AttrUseCamera:
		e.setUseCameraLocked(false)
	case AttrIsImage:
		e.setIsImageLocked(false)
	case AttrIsLooping:
		e.setIsLoopingLocked(false)
	case AttrPlaybackRate:
		e.setPlaybackRateLocked(1)
	case AttrAutoplay:
		e.config.Autoplay = false
	case AttrMuted:
		e.setMutedLocked(false)
	}
}

// Attribute returns the string form of an attribute. Known attributes
// always report their current value; playback-rate reflects the rate last
// applied rather than the string last written.
func (e *Element) Attribute(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name = CanonicalAttribute(name)
	c := e.config
	switch name {
	case AttrSourceReference:
		return c.SourceRef, c.SourceRef != ""
	case AttrUseCamera:
		return strconv.FormatBool(c.UseCamera), c.UseCamera
	case AttrIsImage:
		return strconv.FormatBool(c.IsImage), c.IsImage
	case AttrIsLooping:
		return strconv.FormatBool(c.IsLooping), c.IsLooping
	case AttrPlaybackRate:
		return formatRate(c.PlaybackRate), true
	case AttrAutoplay:
		return strconv.FormatBool(c.Autoplay), c.Autoplay
	case AttrMuted:
		return strconv.FormatBool(c.Muted), c.Muted
	}
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) setAttributeLocked(name, value string) {
	name = CanonicalAttribute(name)
	e.attrs[name] = value
	switch name {
	case AttrSourceReference:
		e.setSourceRefLocked(value)
	case AttrUseCamera:
		e.setUseCameraLocked(parseBoolAttr(value))
	case AttrIsImage:
		e.setIsImageLocked(parseBoolAttr(value))
	case AttrIsLooping:
		e.setIsLoopingLocked(parseBoolAttr(value))
	case AttrPlaybackRate:
		e.setPlaybackRateLocked(ParsePlaybackRate(value))
	case AttrAutoplay:
		e.config.Autoplay = parseBoolAttr(value)
	case AttrMuted:
		e.setMutedLocked(parseBoolAttr(value))
	}
}

func parseBoolAttr(value string) bool {
	return !strings.EqualFold(strings.TrimSpace(value), "false")
}

// SetSourceRef sets the file or image reference. A non-empty reference takes
// precedence over camera mode.
func (e *Element) SetSourceRef(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setSourceRefLocked(ref)
}

func (e *Element) setSourceRefLocked(ref string) {
	if e.config.SourceRef == ref {
		return
	}
	e.config.SourceRef = ref
	e.reconcileLocked()
}

// SourceRef returns the configured reference.
func (e *Element) SourceRef() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.SourceRef
}

// SetUseCamera toggles camera mode. Enabling it while no reference is set
// starts an acquisition; disabling it releases the stream.
func (e *Element) SetUseCamera(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setUseCameraLocked(on)
}

func (e *Element) setUseCameraLocked(on bool) {
	if e.config.UseCamera == on {
		return
	}
	e.config.UseCamera = on
	e.reconcileLocked()
}

// UseCamera reports whether camera mode is on.
func (e *Element) UseCamera() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.UseCamera
}

// SetIsImage selects between the image and file interpretation of the reference.
func (e *Element) SetIsImage(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setIsImageLocked(on)
}

func (e *Element) setIsImageLocked(on bool) {
	if e.config.IsImage == on {
		return
	}
	e.config.IsImage = on
	e.reconcileLocked()
}

// IsImage reports whether the reference is treated as a still image.
func (e *Element) IsImage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.IsImage
}

// SetIsLooping sets looping on the element and the active file.
func (e *Element) SetIsLooping(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setIsLoopingLocked(on)
}

func (e *Element) setIsLoopingLocked(on bool) {
	e.config.IsLooping = on
	if p := e.active.playable; p != nil {
		p.SetLooping(on)
	}
}

// IsLooping reports the looping flag.
func (e *Element) IsLooping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.IsLooping
}

// SetPlaybackRate stores rate and applies it to the active resource. The
// value is not validated; resources ignore rates they cannot honor.
func (e *Element) SetPlaybackRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPlaybackRateLocked(rate)
}

func (e *Element) setPlaybackRateLocked(rate float64) {
	e.config.PlaybackRate = rate
	if p := e.active.playable; p != nil {
		p.SetPlaybackRate(rate)
	}
}

// PlaybackRate returns the rate last set.
func (e *Element) PlaybackRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.PlaybackRate
}

// SetAutoplay makes files start playing once data is ready.
func (e *Element) SetAutoplay(on bool) {
	e.mu.Lock()
	e.config.Autoplay = on
	e.mu.Unlock()
}

// Autoplay reports the autoplay flag.
func (e *Element) Autoplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Autoplay
}

// SetMuted mutes file output. Camera streams stay muted regardless.
func (e *Element) SetMuted(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setMutedLocked(on)
}

func (e *Element) setMutedLocked(on bool) {
	e.config.Muted = on
	if p := e.active.playable; p != nil && e.active.kind != ResourceStream {
		p.SetMuted(on)
	}
}
