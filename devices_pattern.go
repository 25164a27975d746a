package mediaview

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// PatternConfig configures a PatternDeviceProvider.
type PatternConfig struct {
	Width      int           // Camera frame width (default: 1280)
	Height     int           // Camera frame height (default: 720)
	FPS        int           // Camera frames per second (default: 30)
	SampleRate int           // Microphone sample rate (default: 48000)
	Channels   int           // Microphone channels (default: 1)
	OpenDelay  time.Duration // Simulated permission prompt / device warm-up
	Deny       bool          // Refuse every open with ErrPermissionDenied
}

// DefaultPatternConfig returns a default pattern device configuration.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Width:      1280,
		Height:     720,
		FPS:        30,
		SampleRate: 48000,
		Channels:   1,
	}
}

// PatternDeviceProvider is a virtual DeviceProvider exposing one synthetic
// camera and one synthetic microphone. It counts opened and live tracks so
// callers can verify capture devices are released.
type PatternDeviceProvider struct {
	config PatternConfig
	deny   atomic.Bool

	opened   atomic.Int64
	live     atomic.Int64
	onChange atomic.Pointer[func()]
}

// NewPatternDeviceProvider creates a virtual device provider.
func NewPatternDeviceProvider(config PatternConfig) *PatternDeviceProvider {
	def := DefaultPatternConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	p := &PatternDeviceProvider{config: config}
	p.deny.Store(config.Deny)
	return p
}

// SetDeny toggles permission refusal for subsequent opens. A change is
// reported to the OnDeviceChange callback.
func (p *PatternDeviceProvider) SetDeny(deny bool) {
	if p.deny.Swap(deny) == deny {
		return
	}
	if cb := p.onChange.Load(); cb != nil {
		(*cb)()
	}
}

// OnDeviceChange implements DeviceChangeNotifier. It replaces any previous callback.
func (p *PatternDeviceProvider) OnDeviceChange(callback func()) {
	if callback == nil {
		p.onChange.Store(nil)
		return
	}
	p.onChange.Store(&callback)
}

// Opened returns the number of tracks opened so far.
func (p *PatternDeviceProvider) Opened() int {
	return int(p.opened.Load())
}

// Live returns the number of opened tracks that have not been stopped.
func (p *PatternDeviceProvider) Live() int {
	return int(p.live.Load())
}

// ListVideoDevices implements DeviceProvider.
func (p *PatternDeviceProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{
		DeviceID: "pattern-camera",
		GroupID:  "pattern",
		Kind:     DeviceKindVideoInput,
		Label:    fmt.Sprintf("Pattern Camera %dx%d@%d", p.config.Width, p.config.Height, p.config.FPS),
	}}, nil
}

// ListAudioInputDevices implements DeviceProvider.
func (p *PatternDeviceProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{
		DeviceID: "pattern-microphone",
		GroupID:  "pattern",
		Kind:     DeviceKindAudioInput,
		Label:    "Pattern Microphone",
	}}, nil
}

// OpenVideoDevice implements DeviceProvider.
func (p *PatternDeviceProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	if err := p.admit(ctx); err != nil {
		return nil, err
	}
	settings := VideoTrackSettings{
		Width:     p.config.Width,
		Height:    p.config.Height,
		FrameRate: p.config.FPS,
		DeviceID:  deviceID,
	}
	if constraints != nil {
		if constraints.Width > 0 && constraints.Height > 0 {
			settings.Width, settings.Height = constraints.Width, constraints.Height
		}
		if constraints.FrameRate > 0 {
			settings.FrameRate = constraints.FrameRate
		}
		settings.FacingMode = constraints.FacingMode
	}
	t := &patternVideoTrack{
		BaseTrack: NewBaseTrack("video-"+deviceID, deviceID, RTPCodecTypeVideo),
		settings:  settings,
	}
	p.track(t.BaseTrack)
	return t, nil
}

// OpenAudioDevice implements DeviceProvider.
func (p *PatternDeviceProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	if err := p.admit(ctx); err != nil {
		return nil, err
	}
	settings := AudioTrackSettings{
		SampleRate:   p.config.SampleRate,
		ChannelCount: p.config.Channels,
		DeviceID:     deviceID,
	}
	if constraints != nil {
		if constraints.SampleRate > 0 {
			settings.SampleRate = constraints.SampleRate
		}
		if constraints.ChannelCount > 0 {
			settings.ChannelCount = constraints.ChannelCount
		}
	}
	t := &patternAudioTrack{
		BaseTrack: NewBaseTrack("audio-"+deviceID, deviceID, RTPCodecTypeAudio),
		settings:  settings,
	}
	p.track(t.BaseTrack)
	return t, nil
}

func (p *PatternDeviceProvider) admit(ctx context.Context) error {
	if p.config.OpenDelay > 0 {
		timer := time.NewTimer(p.config.OpenDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.deny.Load() {
		return ErrPermissionDenied
	}
	return nil
}

func (p *PatternDeviceProvider) track(t *BaseTrack) {
	p.opened.Add(1)
	p.live.Add(1)
	// Stop is idempotent on BaseTrack, so the ended callback fires once.
	t.OnEnded(func() { p.live.Add(-1) })
}

type patternVideoTrack struct {
	*BaseTrack
	settings VideoTrackSettings
}

func (t *patternVideoTrack) Settings() VideoTrackSettings { return t.settings }

type patternAudioTrack struct {
	*BaseTrack
	settings AudioTrackSettings
}

func (t *patternAudioTrack) Settings() AudioTrackSettings { return t.settings }
