package mediaview

import (
	"math"
	"strconv"
	"strings"
)

// Attribute names recognized by Element.SetAttribute.
const (
	AttrSourceReference = "source-reference"
	AttrUseCamera       = "use-camera"
	AttrIsImage         = "is-image"
	AttrIsLooping       = "is-looping"
	AttrPlaybackRate    = "playback-rate"
	AttrAutoplay        = "autoplay"
	AttrMuted           = "muted"
)

var attrAliases = map[string]string{
	"src":          AttrSourceReference,
	"usecamera":    AttrUseCamera,
	"isimage":      AttrIsImage,
	"islooping":    AttrIsLooping,
	"playbackrate": AttrPlaybackRate,
	"mute":         AttrMuted,
}

// CanonicalAttribute lower-cases name and resolves legacy aliases such as
// "src" and "usecamera".
func CanonicalAttribute(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := attrAliases[name]; ok {
		return canonical
	}
	return name
}

// ParsePlaybackRate parses a rate attribute. Unparseable input yields NaN,
// which is passed through to the resource unvalidated.
func ParsePlaybackRate(value string) float64 {
	rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return math.NaN()
	}
	return rate
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'g', -1, 64)
}

// Configuration is the declarative state of an Element.
type Configuration struct {
	SourceRef    string
	UseCamera    bool
	IsImage      bool
	IsLooping    bool
	PlaybackRate float64
	Autoplay     bool
	Muted        bool
}

// DefaultConfiguration returns the configuration of an element with no attributes.
func DefaultConfiguration() Configuration {
	return Configuration{PlaybackRate: 1}
}

// desiredSource is the single source a configuration asks for. A non-empty
// reference wins over camera mode, so both are never pursued at once.
type desiredSource struct {
	kind ResourceKind
	ref  string
}

func (c Configuration) desired() desiredSource {
	switch {
	case c.SourceRef != "" && c.IsImage:
		return desiredSource{kind: ResourceImage, ref: c.SourceRef}
	case c.SourceRef != "":
		return desiredSource{kind: ResourceFile, ref: c.SourceRef}
	case c.UseCamera:
		return desiredSource{kind: ResourceStream}
	default:
		return desiredSource{kind: ResourceNone}
	}
}
