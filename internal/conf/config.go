// Package conf loads mediaview settings from a YAML file, MEDIAVIEW_*
// environment variables and built-in defaults.
package conf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/mediaview"
)

// EnvPrefix prefixes environment overrides, e.g. MEDIAVIEW_ELEMENT_SOURCE.
const EnvPrefix = "MEDIAVIEW"

// Settings is the complete host configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Element ElementSettings `mapstructure:"element" yaml:"element"`
	Camera  CameraSettings  `mapstructure:"camera" yaml:"camera"`
	Probe   ProbeSettings   `mapstructure:"probe" yaml:"probe"`
	HTTP    HTTPSettings    `mapstructure:"http" yaml:"http"`
	MQTT    MQTTSettings    `mapstructure:"mqtt" yaml:"mqtt"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
}

// ElementSettings holds the initial element attributes and container.
type ElementSettings struct {
	Source         string        `mapstructure:"source" yaml:"source"`
	UseCamera      bool          `mapstructure:"usecamera" yaml:"usecamera"`
	IsImage        bool          `mapstructure:"isimage" yaml:"isimage"`
	IsLooping      bool          `mapstructure:"islooping" yaml:"islooping"`
	PlaybackRate   float64       `mapstructure:"playbackrate" yaml:"playbackrate"`
	Autoplay       bool          `mapstructure:"autoplay" yaml:"autoplay"`
	Muted          bool          `mapstructure:"muted" yaml:"muted"`
	ScaleMode      string        `mapstructure:"scalemode" yaml:"scalemode"`
	Width          float64       `mapstructure:"width" yaml:"width"`
	Height         float64       `mapstructure:"height" yaml:"height"`
	LoadDelay      time.Duration `mapstructure:"loaddelay" yaml:"loaddelay"`
	SampleInterval time.Duration `mapstructure:"sampleinterval" yaml:"sampleinterval"`
}

// CameraSettings configures the virtual capture devices.
type CameraSettings struct {
	Width     int           `mapstructure:"width" yaml:"width"`
	Height    int           `mapstructure:"height" yaml:"height"`
	FPS       int           `mapstructure:"fps" yaml:"fps"`
	OpenDelay time.Duration `mapstructure:"opendelay" yaml:"opendelay"`
	Deny      bool          `mapstructure:"deny" yaml:"deny"`
}

// ProbeSettings configures metadata probing.
type ProbeSettings struct {
	FFProbePath string        `mapstructure:"ffprobepath" yaml:"ffprobepath"`
	ImageTTL    time.Duration `mapstructure:"imagettl" yaml:"imagettl"`
}

// HTTPSettings configures the control API and /metrics.
type HTTPSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MQTTSettings configures event forwarding.
type MQTTSettings struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Broker     string  `mapstructure:"broker" yaml:"broker"`
	ClientID   string  `mapstructure:"clientid" yaml:"clientid"`
	Username   string  `mapstructure:"username" yaml:"username"`
	Password   string  `mapstructure:"password" yaml:"password"`
	Topic      string  `mapstructure:"topic" yaml:"topic"`
	TimeUpdate float64 `mapstructure:"timeupdate" yaml:"timeupdate"` // max time-update messages per second
}

// LogSettings configures logging output.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("element.source", "")
	v.SetDefault("element.usecamera", false)
	v.SetDefault("element.isimage", false)
	v.SetDefault("element.islooping", false)
	v.SetDefault("element.playbackrate", 1.0)
	v.SetDefault("element.autoplay", false)
	v.SetDefault("element.muted", false)
	v.SetDefault("element.scalemode", "fit")
	v.SetDefault("element.width", 1280.0)
	v.SetDefault("element.height", 720.0)
	v.SetDefault("element.loaddelay", time.Duration(0))
	v.SetDefault("element.sampleinterval", mediaview.DefaultSampleInterval)

	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.fps", 30)
	v.SetDefault("camera.opendelay", time.Duration(0))
	v.SetDefault("camera.deny", false)

	v.SetDefault("probe.ffprobepath", "ffprobe")
	v.SetDefault("probe.imagettl", 5*time.Minute)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8089")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "mediaview")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "mediaview")
	v.SetDefault("mqtt.timeupdate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment overrides
// bound. Command-line flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or config.yaml from the default search paths when path
// is empty, and returns validated settings. A missing default config file is
// not an error.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range defaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mediaview"))
	}
	return append(paths, "/etc/mediaview")
}

// Validate checks settings the element cannot correct itself. An invalid
// playback rate is left to the resource.
func (s *Settings) Validate() error {
	var errs []error
	if s.Element.Width <= 0 || s.Element.Height <= 0 {
		errs = append(errs, fmt.Errorf("element size must be positive, got %vx%v", s.Element.Width, s.Element.Height))
	}
	switch s.Element.ScaleMode {
	case "fit", "fill":
	default:
		errs = append(errs, fmt.Errorf("unknown scale mode %q", s.Element.ScaleMode))
	}
	if s.Element.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample interval must be positive, got %s", s.Element.SampleInterval))
	}
	if s.Element.LoadDelay < 0 {
		errs = append(errs, fmt.Errorf("load delay must not be negative, got %s", s.Element.LoadDelay))
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt broker is required when mqtt is enabled"))
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", s.Log.Format))
	}
	return errors.Join(errs...)
}

// Attributes returns the element attributes described by the settings.
func (e ElementSettings) Attributes() map[string]string {
	attrs := map[string]string{}
	if e.Source != "" {
		attrs[mediaview.AttrSourceReference] = e.Source
	}
	setBool := func(name string, on bool) {
		if on {
			attrs[name] = ""
		}
	}
	setBool(mediaview.AttrUseCamera, e.UseCamera)
	setBool(mediaview.AttrIsImage, e.IsImage)
	setBool(mediaview.AttrIsLooping, e.IsLooping)
	setBool(mediaview.AttrAutoplay, e.Autoplay)
	setBool(mediaview.AttrMuted, e.Muted)
	if e.PlaybackRate != 1 || math.IsNaN(e.PlaybackRate) {
		attrs[mediaview.AttrPlaybackRate] = strconv.FormatFloat(e.PlaybackRate, 'g', -1, 64)
	}
	return attrs
}

// Bounds returns the container size.
func (e ElementSettings) Bounds() mediaview.Size {
	return mediaview.Size{Width: e.Width, Height: e.Height}
}

// PatternConfig returns the virtual device configuration.
func (c CameraSettings) PatternConfig() mediaview.PatternConfig {
	cfg := mediaview.DefaultPatternConfig()
	cfg.Width, cfg.Height, cfg.FPS = c.Width, c.Height, c.FPS
	cfg.OpenDelay = c.OpenDelay
	cfg.Deny = c.Deny
	return cfg
}

// Dump renders the settings as YAML. The MQTT password is masked.
func (s *Settings) Dump() ([]byte, error) {
	masked := *s
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return out, nil
}
