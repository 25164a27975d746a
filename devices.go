package mediaview

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoDeviceProvider is returned when no DeviceProvider has been registered.
	ErrNoDeviceProvider = errors.New("no device provider registered")

	// ErrNoDevices is returned when a provider lists no devices of the requested kind.
	ErrNoDevices = errors.New("no devices available")

	// ErrPermissionDenied is returned when the host refuses access to a capture device.
	ErrPermissionDenied = errors.New("permission denied")
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota // Camera
	DeviceKindAudioInput                   // Microphone
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a media device (like browser's MediaDeviceInfo).
type DeviceInfo struct {
	DeviceID string     // Unique identifier for the device
	GroupID  string     // Group identifier (devices with same groupID belong together)
	Kind     DeviceKind // Device type
	Label    string     // Human-readable device name
}

// UserMediaOptions configures getUserMedia.
type UserMediaOptions struct {
	Video *VideoConstraints // nil = no video
	Audio *AudioConstraints // nil = no audio
}

// VideoConstraints for getUserMedia video.
type VideoConstraints struct {
	DeviceID   string // Specific device ID
	Width      int    // Requested width
	Height     int    // Requested height
	FrameRate  int    // Requested framerate
	FacingMode string // "user" or "environment"
}

// AudioConstraints for getUserMedia audio.
type AudioConstraints struct {
	DeviceID     string // Specific device ID
	SampleRate   int    // Requested sample rate
	ChannelCount int    // Requested channels
}

// MediaDevices provides access to media input devices (like navigator.mediaDevices).
// Use GetMediaDevices() to get the singleton instance.
type MediaDevices interface {
	// EnumerateDevices returns a list of available media devices.
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetUserMedia returns a MediaStream with the requested audio and/or
	// video tracks (camera/microphone).
	GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error)

	// OnDeviceChange sets a callback for device connection/disconnection events.
	OnDeviceChange(callback func())
}

// DeviceProvider is implemented by platform-specific device implementations.
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// ListAudioInputDevices returns available audio input devices.
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenVideoDevice opens a video input device.
	OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error)

	// OpenAudioDevice opens an audio input device.
	OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error)
}

// DeviceChangeNotifier is implemented by providers that report when their
// device list or access permission changes.
type DeviceChangeNotifier interface {
	OnDeviceChange(callback func())
}

// deviceRegistry holds registered device providers.
type deviceRegistry struct {
	provider DeviceProvider
	mu       sync.RWMutex
}

var globalDeviceRegistry = &deviceRegistry{}

// RegisterDeviceProvider registers a platform-specific device provider.
func RegisterDeviceProvider(provider DeviceProvider) {
	globalDeviceRegistry.mu.Lock()
	defer globalDeviceRegistry.mu.Unlock()
	globalDeviceRegistry.provider = provider
	if n, ok := provider.(DeviceChangeNotifier); ok {
		n.OnDeviceChange(globalMediaDevices.NotifyDeviceChange)
	}
}

// GetDeviceProvider returns the registered device provider.
func GetDeviceProvider() DeviceProvider {
	globalDeviceRegistry.mu.RLock()
	defer globalDeviceRegistry.mu.RUnlock()
	return globalDeviceRegistry.provider
}

// DefaultMediaDevices is the default MediaDevices implementation.
// With a nil provider it resolves the registered provider on every call.
type DefaultMediaDevices struct {
	provider       DeviceProvider
	deviceChangeCb func()
	mu             sync.RWMutex
}

var globalMediaDevices = &DefaultMediaDevices{}

// GetMediaDevices returns the MediaDevices singleton (like navigator.mediaDevices).
func GetMediaDevices() MediaDevices {
	return globalMediaDevices
}

// NewMediaDevices returns a MediaDevices bound to a specific provider.
func NewMediaDevices(provider DeviceProvider) *DefaultMediaDevices {
	d := &DefaultMediaDevices{provider: provider}
	if n, ok := provider.(DeviceChangeNotifier); ok {
		n.OnDeviceChange(d.NotifyDeviceChange)
	}
	return d
}

func (d *DefaultMediaDevices) getProvider() (DeviceProvider, error) {
	if d.provider != nil {
		return d.provider, nil
	}
	if p := GetDeviceProvider(); p != nil {
		return p, nil
	}
	return nil, ErrNoDeviceProvider
}

// EnumerateDevices implements MediaDevices.
func (d *DefaultMediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	provider, err := d.getProvider()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo

	videoDevices, err := provider.ListVideoDevices(ctx)
	if err == nil {
		devices = append(devices, videoDevices...)
	}

	audioInputDevices, err := provider.ListAudioInputDevices(ctx)
	if err == nil {
		devices = append(devices, audioInputDevices...)
	}

	return devices, nil
}

// GetUserMedia implements MediaDevices.
func (d *DefaultMediaDevices) GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error) {
	provider, err := d.getProvider()
	if err != nil {
		return nil, err
	}

	stream := NewMediaStream("")

	if options.Video != nil {
		deviceID := options.Video.DeviceID
		if deviceID == "" {
			// Use default device
			devices, err := provider.ListVideoDevices(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list video devices: %w", err)
			}
			if len(devices) == 0 {
				return nil, fmt.Errorf("video input: %w", ErrNoDevices)
			}
			deviceID = devices[0].DeviceID
		}

		videoTrack, err := provider.OpenVideoDevice(ctx, deviceID, options.Video)
		if err != nil {
			return nil, fmt.Errorf("failed to open video device: %w", err)
		}
		stream.AddTrack(videoTrack)
	}

	if options.Audio != nil {
		deviceID := options.Audio.DeviceID
		if deviceID == "" {
			devices, err := provider.ListAudioInputDevices(ctx)
			if err != nil {
				stream.Close()
				return nil, fmt.Errorf("failed to list audio devices: %w", err)
			}
			if len(devices) == 0 {
				stream.Close()
				return nil, fmt.Errorf("audio input: %w", ErrNoDevices)
			}
			deviceID = devices[0].DeviceID
		}

		audioTrack, err := provider.OpenAudioDevice(ctx, deviceID, options.Audio)
		if err != nil {
			// Close video track if we already opened it
			stream.Close()
			return nil, fmt.Errorf("failed to open audio device: %w", err)
		}
		stream.AddTrack(audioTrack)
	}

	return stream, nil
}

// OnDeviceChange implements MediaDevices.
func (d *DefaultMediaDevices) OnDeviceChange(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceChangeCb = callback
}

// NotifyDeviceChange runs the device change callback on its own goroutine.
// Providers implementing DeviceChangeNotifier trigger it automatically.
func (d *DefaultMediaDevices) NotifyDeviceChange() {
	d.mu.RLock()
	cb := d.deviceChangeCb
	d.mu.RUnlock()

	if cb != nil {
		go cb()
	}
}

// AcquireFunc acquires a live capture stream. It may block until the host
// grants or refuses access.
type AcquireFunc func(ctx context.Context) (MediaStream, error)

// AcquireFrom returns an AcquireFunc requesting the default camera and
// microphone from devices.
func AcquireFrom(devices MediaDevices) AcquireFunc {
	return func(ctx context.Context) (MediaStream, error) {
		return devices.GetUserMedia(ctx, UserMediaOptions{
			Video: &VideoConstraints{},
			Audio: &AudioConstraints{},
		})
	}
}

// DefaultAcquire acquires camera and microphone from GetMediaDevices().
func DefaultAcquire(ctx context.Context) (MediaStream, error) {
	return AcquireFrom(GetMediaDevices())(ctx)
}
