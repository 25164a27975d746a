package mediaview

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
)

// ErrNoVideoStream is returned when probed media has no video stream.
var ErrNoVideoStream = errors.New("no video stream")

// Prober reads the metadata of a playable reference.
type Prober interface {
	Probe(ctx context.Context, ref string) (MediaInfo, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ref string) (MediaInfo, error)

func (f ProberFunc) Probe(ctx context.Context, ref string) (MediaInfo, error) { return f(ctx, ref) }

// FFProbe probes references with the ffprobe binary.
type FFProbe struct {
	Path string // ffprobe executable (default: "ffprobe" from PATH)
}

// Probe implements Prober.
func (p FFProbe) Probe(ctx context.Context, ref string) (MediaInfo, error) {
	path := p.Path
	if path == "" {
		path = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		localPath(ref),
	)
	out, err := cmd.Output()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe %s: %w", ref, err)
	}
	return ParseProbeOutput(out)
}

// ParseProbeOutput extracts duration and display size from ffprobe JSON.
// Rotated streams (90/270 degrees) report swapped dimensions.
func ParseProbeOutput(out []byte) (MediaInfo, error) {
	obj, err := jason.NewObjectFromBytes(out)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info MediaInfo
	if s, err := obj.GetString("format", "duration"); err == nil {
		if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}

	streams, err := obj.GetObjectArray("streams")
	if err != nil {
		return MediaInfo{}, fmt.Errorf("failed to read streams: %w", err)
	}
	for _, s := range streams {
		kind, _ := s.GetString("codec_type")
		if kind != "video" {
			continue
		}
		w, errW := s.GetInt64("width")
		h, errH := s.GetInt64("height")
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			continue
		}
		if rotated(s) {
			w, h = h, w
		}
		info.Size = Size{Width: float64(w), Height: float64(h)}
		if info.Duration == 0 {
			if d, err := s.GetString("duration"); err == nil {
				if secs, err := strconv.ParseFloat(d, 64); err == nil && secs > 0 {
					info.Duration = time.Duration(secs * float64(time.Second))
				}
			}
		}
		return info, nil
	}
	return MediaInfo{}, ErrNoVideoStream
}

func rotated(stream *jason.Object) bool {
	if r, err := stream.GetString("tags", "rotate"); err == nil {
		return r == "90" || r == "270" || r == "-90"
	}
	sideData, err := stream.GetObjectArray("side_data_list")
	if err != nil {
		return false
	}
	for _, sd := range sideData {
		if r, err := sd.GetInt64("rotation"); err == nil {
			return r == 90 || r == -90 || r == 270 || r == -270
		}
	}
	return false
}

// localPath strips a file:// scheme so references can be opened locally.
func localPath(ref string) string {
	return strings.TrimPrefix(ref, "file://")
}
