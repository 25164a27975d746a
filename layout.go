package mediaview

import "math"

// ScaleMode defines how content is fitted into its container.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within the container, preserving aspect ratio (letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to cover the container, preserving aspect ratio (overflow is centered).
	ScaleModeFill
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	default:
		return "unknown"
	}
}

// ParseScaleMode maps "fit"/"fill" to a ScaleMode. Unknown names yield ScaleModeFit.
func ParseScaleMode(s string) ScaleMode {
	if s == "fill" {
		return ScaleModeFill
	}
	return ScaleModeFit
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// AspectRatio returns Width/Height. It is NaN or Inf when Height is 0.
func (s Size) AspectRatio() float64 {
	return s.Width / s.Height
}

// Rect is a container-local rectangle in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Letterbox computes the rect that centers content of the given aspect ratio
// inside container. It returns false, leaving layout untouched, when the
// container has a zero dimension or the aspect ratio is unknown (NaN, Inf or
// not positive).
func Letterbox(container Size, aspect float64, mode ScaleMode) (Rect, bool) {
	if container.Empty() {
		return Rect{}, false
	}
	if math.IsNaN(aspect) || math.IsInf(aspect, 0) || aspect <= 0 {
		return Rect{}, false
	}

	w, h := container.Width, container.Height
	scaledW, scaledH := w, h
	containerAspect := w / h

	// Fit bounds the content by the tighter dimension, Fill by the looser one.
	fitWidth := containerAspect < aspect
	if mode == ScaleModeFill {
		fitWidth = containerAspect > aspect
	}

	switch {
	case containerAspect == aspect:
	case fitWidth:
		scaledH = w / aspect
	default:
		scaledW = h * aspect
	}

	return Rect{
		X:      (w - scaledW) / 2,
		Y:      (h - scaledH) / 2,
		Width:  scaledW,
		Height: scaledH,
	}, true
}
