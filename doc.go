// Package mediaview provides a letterboxing media element in Go: a single
// control surface that presents a media file, a live camera stream, or a
// still image inside a fixed-size container.
//
// Key pieces include:
//   - Element: declarative configuration (source, camera, image, loop, rate),
//     source reconciliation, playback control and an ordered event stream
//   - Resources: ClockMedia (file), ImageResource (still image) and
//     StreamMedia (live capture) behind the Resource/Playable capabilities
//   - MediaDevices/MediaStream/MediaStreamTrack (getUserMedia-style capture)
//   - Letterbox layout and the progress Sampler
//
// # Architecture
//
//	attribute change -> Element.reconcile -> Loader / AcquireFunc
//	resource notification -> task queue -> playback state machine -> Event
//	metadata or Resize -> Letterbox -> VisibleRect + Presenter
//
// All Element state changes are serialized. Resource notifications, sampler
// ticks and outward events flow through one internal queue drained by a
// single goroutine, so listeners observe events in emission order and may
// call back into the Element.
//
// # Sources
//
// An explicit source reference always wins over camera mode. Camera
// acquisition is asynchronous; results from superseded reconciliation passes
// are stopped as soon as they arrive.
package mediaview
