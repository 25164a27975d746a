package mediaview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NominalFrameDuration is the step size used by Element.Step. It assumes
// 24fps regardless of the source's real frame rate.
const NominalFrameDuration = time.Second / 24

// PlaybackState is the element's view of the active resource's playback.
type PlaybackState int

const (
	StatePaused  PlaybackState = iota // Not playing (initial state)
	StatePlaying                      // Between a playing and a paused/ended notification
	StateEnded                        // Reached the end of a non-looping file
)

func (s PlaybackState) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Presenter positions the visible content surface. It is called on the
// element's event goroutine after every layout change.
type Presenter interface {
	Present(kind ResourceKind, rect Rect)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(kind ResourceKind, rect Rect)

func (f PresenterFunc) Present(kind ResourceKind, rect Rect) { f(kind, rect) }

// ElementConfig configures an Element.
type ElementConfig struct {
	Loader         Loader            // Binds files, images and streams (default: NewDefaultLoader())
	Acquire        AcquireFunc       // Acquires camera streams (default: DefaultAcquire)
	Presenter      Presenter         // Optional layout sink
	Metrics        *Metrics          // Optional
	Logger         *slog.Logger      // Default: slog.Default() with component=mediaview
	SampleInterval time.Duration     // Time-update cadence (default: 100ms)
	LoadDelay      time.Duration     // Settle delay between Attach and the first reconciliation
	ScaleMode      ScaleMode         // Default: ScaleModeFit
	Attributes     map[string]string // Initial attributes
}

// DefaultElementConfig returns a default element configuration.
func DefaultElementConfig() ElementConfig {
	return ElementConfig{
		Loader:         NewDefaultLoader(),
		Acquire:        DefaultAcquire,
		SampleInterval: DefaultSampleInterval,
		ScaleMode:      ScaleModeFit,
	}
}

type activeResource struct {
	kind     ResourceKind
	ref      string
	res      Resource
	playable Playable // nil for images
	serial   uint64
}

// Element presents a file, a live camera stream or a still image inside a
// container, letterboxed to the content's aspect ratio.
//
// Configuration changes made while detached are recorded and reconciled on
// the next Attach. Events are delivered in emission order on a single
// internal goroutine.
type Element struct {
	id        string
	loader    Loader
	acquire   AcquireFunc
	presenter Presenter
	metrics   *Metrics
	log       *slog.Logger
	scaleMode ScaleMode
	loadDelay time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	queue     *taskQueue
	done      chan struct{}
	wg        sync.WaitGroup
	listeners listenerSet
	sampler   *Sampler

	mu           sync.Mutex
	config       Configuration
	attrs        map[string]string
	mounted      bool
	mountSerial  uint64
	pending      bool
	closed       bool
	loadTimer    *time.Timer
	gen          uint64
	acquiringGen uint64
	serial       uint64
	active       activeResource
	state        PlaybackState
	currentTime  time.Duration
	duration     time.Duration
	bounds       Size
	rect         Rect
}

// NewElement creates a detached element.
func NewElement(config ElementConfig) *Element {
	def := DefaultElementConfig()
	if config.Loader == nil {
		config.Loader = def.Loader
	}
	if config.Acquire == nil {
		config.Acquire = def.Acquire
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = def.SampleInterval
	}
	id := uuid.NewString()
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mediaview")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Element{
		id:        id,
		loader:    config.Loader,
		acquire:   config.Acquire,
		presenter: config.Presenter,
		metrics:   config.Metrics,
		log:       logger.With("element", id),
		scaleMode: config.ScaleMode,
		loadDelay: config.LoadDelay,
		ctx:       ctx,
		cancel:    cancel,
		queue:     newTaskQueue(),
		done:      make(chan struct{}),
		config:    DefaultConfiguration(),
		attrs:     make(map[string]string),
		pending:   true,
	}
	e.sampler = NewSampler(config.SampleInterval, func(run uint64) {
		e.queue.post(func() { e.onSample(run) })
	})
	for name, value := range config.Attributes {
		e.setAttributeLocked(name, value)
	}

	go func() {
		defer close(e.done)
		e.queue.run(ctx)
	}()
	return e
}

// ID returns the element's unique identifier, carried by every Event.
func (e *Element) ID() string { return e.id }

// On registers a listener for every event. The returned func unregisters it.
// Listeners run on the element's event goroutine and may call back into it.
func (e *Element) On(fn func(Event)) (cancel func()) {
	return e.listeners.add(fn)
}

// Close detaches the element, releases the active resource and stops every
// internal goroutine. Events still queued are dropped. Close may be called
// from a listener; it then returns without waiting for the event goroutine.
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.detachLocked()
	e.closed = true
	e.gen++
	e.releaseLocked()
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	if e.queue.inTask() {
		// Possibly called from a listener or Presenter. The event goroutine
		// exits once the current task returns.
		return nil
	}
	<-e.done
	return nil
}

// Attach marks the element mounted and reconciles pending configuration,
// after LoadDelay when one is configured.
func (e *Element) Attach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.mounted {
		return
	}
	e.mounted = true
	e.mountSerial++
	mount := e.mountSerial
	e.log.Debug("attached")
	if !e.pending {
		return
	}
	if e.loadDelay <= 0 {
		e.reconcileLocked()
		return
	}
	e.loadTimer = time.AfterFunc(e.loadDelay, func() {
		e.queue.post(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.mounted && e.mountSerial == mount && e.pending && !e.closed {
				e.reconcileLocked()
			}
		})
	})
}

// Detach marks the element unmounted. The progress sampler stops, a playing
// file is paused, and a camera stream is stopped and released.
func (e *Element) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detachLocked()
}

func (e *Element) detachLocked() {
	if !e.mounted {
		return
	}
	e.mounted = false
	e.pending = true
	if e.loadTimer != nil {
		e.loadTimer.Stop()
		e.loadTimer = nil
	}
	// Supersede in-flight acquisitions.
	e.gen++
	e.acquiringGen = 0
	e.sampler.Stop()

	switch e.active.kind {
	case ResourceStream:
		e.releaseLocked()
	case ResourceFile:
		if err := e.active.playable.Pause(); err != nil {
			e.log.Debug("pause on detach failed", "error", err)
		}
	}
	e.log.Debug("detached")
}

// Reacquire retries camera acquisition when the camera is the desired source
// but no stream is bound or pending, for example after access was refused
// and later granted. It is a no-op otherwise.
func (e *Element) Reacquire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.mounted || e.active.kind == ResourceStream {
		return
	}
	if e.config.desired().kind != ResourceStream {
		return
	}
	if e.acquiringGen != 0 && e.acquiringGen == e.gen {
		return
	}
	e.log.Debug("retrying camera acquisition")
	e.reconcileLocked()
}

// Mounted reports whether the element is attached.
func (e *Element) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

// reconcileLocked brings the active resource in line with the configuration.
// source-changed is emitted only when the active resource changed in this
// pass; a camera binding emits it when its acquisition completes.
func (e *Element) reconcileLocked() {
	if e.closed {
		return
	}
	if !e.mounted {
		e.pending = true
		e.metrics.recordReconcile("deferred")
		return
	}
	e.pending = false

	want := e.config.desired()
	changed := false
	outcome := "unchanged"

	switch want.kind {
	case ResourceFile, ResourceImage:
		if e.active.kind == want.kind && e.active.ref == want.ref {
			break
		}
		e.gen++
		changed = e.bindLocked(want)

	case ResourceStream:
		if e.active.kind == ResourceStream {
			break
		}
		if e.acquiringGen != 0 && e.acquiringGen == e.gen {
			outcome = "pending"
			break
		}
		e.gen++
		e.startAcquisitionLocked(e.gen)
		outcome = "pending"

	case ResourceNone:
		e.gen++
		e.acquiringGen = 0
		if e.active.kind != ResourceNone {
			e.releaseLocked()
			changed = true
		}
	}

	if changed {
		outcome = "changed"
		e.emitLocked(EventSourceChanged, nil)
	}
	e.metrics.recordReconcile(outcome)
	e.log.Debug("reconciled",
		"desired", want.kind.String(),
		"ref", want.ref,
		"active", e.active.kind.String(),
		"outcome", outcome,
	)
}

// bindLocked loads a file or image. On failure the previous resource stays active.
func (e *Element) bindLocked(want desiredSource) bool {
	e.serial++
	serial := e.serial
	notify := e.notifier(serial)

	var (
		res      Resource
		playable Playable
		err      error
	)
	if want.kind == ResourceImage {
		res, err = e.loader.LoadImage(e.ctx, want.ref, notify)
	} else {
		playable, err = e.loader.LoadFile(e.ctx, want.ref, notify)
		res = playable
	}
	if err != nil {
		loadErr := &LoadError{Kind: want.kind, Ref: want.ref, Err: err}
		e.log.Warn("failed to load source", "kind", want.kind.String(), "ref", want.ref, "error", err)
		e.emitLocked(EventError, loadErr)
		return false
	}

	e.releaseLocked()
	e.activateLocked(activeResource{
		kind:     want.kind,
		ref:      want.ref,
		res:      res,
		playable: playable,
		serial:   serial,
	})
	e.log.Info("source bound", "kind", want.kind.String(), "ref", want.ref)
	return true
}

func (e *Element) startAcquisitionLocked(gen uint64) {
	e.acquiringGen = gen
	acquire := e.acquire
	e.log.Debug("acquiring camera", "generation", gen)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		stream, err := acquire(e.ctx)
		e.completeAcquisition(gen, stream, err)
	}()
}

func (e *Element) completeAcquisition(gen uint64, stream MediaStream, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acquiringGen == gen {
		e.acquiringGen = 0
	}
	stale := gen != e.gen || e.closed || !e.mounted

	if err != nil {
		if stale {
			e.metrics.recordAcquisition("stale")
			e.log.Debug("stale camera acquisition failed", "generation", gen, "error", err)
			return
		}
		e.metrics.recordAcquisition("failure")
		e.log.Warn("camera acquisition failed", "error", err)
		e.emitLocked(EventError, &AcquisitionError{Err: err})
		return
	}

	if stale {
		// Never leave a capture running unreferenced.
		if cerr := stream.Close(); cerr != nil {
			e.log.Debug("failed to stop stale stream", "error", cerr)
		}
		e.metrics.recordAcquisition("stale")
		e.log.Debug("discarded stale camera stream", "generation", gen, "current", e.gen)
		return
	}

	e.serial++
	serial := e.serial
	playable, err := e.loader.AttachStream(e.ctx, stream, e.notifier(serial))
	if err != nil {
		stream.Close()
		e.metrics.recordAcquisition("failure")
		e.emitLocked(EventError, &AcquisitionError{Err: err})
		return
	}

	e.releaseLocked()
	e.activateLocked(activeResource{
		kind:     ResourceStream,
		res:      playable,
		playable: playable,
		serial:   serial,
	})
	e.metrics.recordAcquisition("success")
	e.log.Info("camera stream bound", "stream", stream.ID())
	e.emitLocked(EventSourceChanged, nil)
}

func (e *Element) activateLocked(a activeResource) {
	e.active = a
	e.state = StatePaused
	e.currentTime = 0
	e.duration = 0

	if p := a.playable; p != nil {
		p.SetLooping(e.config.IsLooping)
		p.SetPlaybackRate(e.config.PlaybackRate)
		// Live capture is always muted to avoid feedback.
		p.SetMuted(a.kind == ResourceStream || e.config.Muted)
	}
	e.metrics.recordActive(ResourceNone, a.kind)
}

// releaseLocked closes the active resource, stopping capture tracks.
func (e *Element) releaseLocked() {
	e.sampler.Stop()
	if e.active.res == nil {
		return
	}
	old := e.active
	e.active = activeResource{}
	e.state = StatePaused
	e.currentTime = 0
	e.duration = 0
	if err := old.res.Close(); err != nil {
		e.log.Warn("failed to release resource", "kind", old.kind.String(), "error", err)
	}
	e.metrics.recordActive(old.kind, ResourceNone)
}

func (e *Element) notifier(serial uint64) Notifier {
	return func(n Notification, err error) {
		e.queue.post(func() { e.handleNotification(serial, n, err) })
	}
}

// handleNotification runs the playback state machine for the active
// resource. Notifications from resources that are no longer active are dropped.
func (e *Element) handleNotification(serial uint64, n Notification, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || serial != e.active.serial || e.active.res == nil {
		return
	}
	p := e.active.playable

	switch n {
	case NotifyMetadata:
		if p != nil {
			e.duration = p.Duration()
		}
		e.relayoutLocked()
		e.emitLocked(EventMetadataReady, nil)

	case NotifyDataReady:
		if p == nil {
			return
		}
		if e.config.Autoplay || e.active.kind == ResourceStream {
			if e.config.Muted {
				p.SetMuted(true)
			}
			if err := p.Play(); err != nil {
				e.log.Warn("autoplay failed", "error", err)
			}
		}

	case NotifyPlaying:
		if e.state == StatePlaying {
			e.emitLocked(EventLoop, nil)
			return
		}
		e.state = StatePlaying
		if p != nil {
			p.SetPlaybackRate(e.config.PlaybackRate)
		}
		e.sampler.Start()
		e.emitLocked(EventPlay, nil)

	case NotifyPaused:
		if e.state == StatePlaying {
			e.state = StatePaused
		}
		e.sampler.Stop()
		e.emitLocked(EventPause, nil)

	case NotifyEnded:
		e.state = StateEnded
		e.sampler.Stop()
		if p != nil {
			e.currentTime = p.Position()
		}
		e.emitLocked(EventEnd, nil)

	case NotifyError:
		loadErr := &LoadError{Kind: e.active.kind, Ref: e.active.ref, Err: err}
		e.log.Warn("resource error", "kind", e.active.kind.String(), "ref", e.active.ref, "error", err)
		e.emitLocked(EventError, loadErr)
	}
}

func (e *Element) onSample(run uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StatePlaying || e.active.playable == nil {
		return
	}
	if run != e.sampler.Current() {
		return
	}
	e.currentTime = e.active.playable.Position()
	e.emitLocked(EventTimeUpdate, nil)
}

func (e *Element) emitLocked(t EventType, err error) {
	e.metrics.recordEvent(t)
	ev := Event{Type: t, ElementID: e.id, Err: err}
	e.queue.post(func() { e.listeners.deliver(ev) })
}

// Resize records new container bounds and recomputes the layout. Bounds with
// a zero dimension are ignored and the previous layout is kept.
func (e *Element) Resize(bounds Size) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bounds.Empty() {
		return
	}
	e.bounds = bounds
	e.relayoutLocked()
}

func (e *Element) relayoutLocked() {
	rect, ok := Letterbox(e.bounds, e.naturalSizeLocked().AspectRatio(), e.scaleMode)
	if !ok {
		return
	}
	e.rect = rect
	if e.presenter != nil {
		kind, presenter := e.active.kind, e.presenter
		e.queue.post(func() { presenter.Present(kind, rect) })
	}
}

// Play starts playback of the active resource. It is a no-op without a
// playable resource.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active.playable == nil {
		return nil
	}
	return e.active.playable.Play()
}

// Pause pauses the active resource. It is a no-op without a playable resource.
func (e *Element) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active.playable == nil {
		return nil
	}
	return e.active.playable.Pause()
}

// TogglePlayback pauses when playing and plays otherwise.
func (e *Element) TogglePlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.active.playable
	if p == nil {
		return nil
	}
	if e.state == StatePlaying {
		return p.Pause()
	}
	return p.Play()
}

// SeekTo moves the active resource to pos. Images, live streams and an
// empty slot ignore it.
func (e *Element) SeekTo(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekLocked(pos)
}

func (e *Element) seekLocked(pos time.Duration) error {
	p := e.active.playable
	if p == nil {
		return nil
	}
	if err := p.Seek(pos); err != nil && !errors.Is(err, ErrNotSeekable) {
		return err
	}
	return nil
}

// Step pauses and advances by frames * NominalFrameDuration. Negative
// frames step backwards.
func (e *Element) Step(frames int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.active.playable
	if p == nil {
		return nil
	}
	if err := p.Pause(); err != nil {
		return err
	}
	return e.seekLocked(p.Position() + time.Duration(frames)*NominalFrameDuration)
}

// ChangePlaybackRate applies rate to the active resource and keeps it for
// resources bound later.
func (e *Element) ChangePlaybackRate(rate float64) {
	e.SetPlaybackRate(rate)
}

// State returns the playback state.
func (e *Element) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsPlaying reports whether the active resource last reported playing.
func (e *Element) IsPlaying() bool {
	return e.State() == StatePlaying
}

// CurrentTime returns the position sampled at the last time-update.
func (e *Element) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

// Duration returns the active file's duration; 0 for images, streams and
// before metadata.
func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// NaturalSize returns the active content's decoded size, or zero before metadata.
func (e *Element) NaturalSize() Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.naturalSizeLocked()
}

func (e *Element) naturalSizeLocked() Size {
	if e.active.res == nil {
		return Size{}
	}
	return e.active.res.NaturalSize()
}

// AspectRatio returns NaturalSize width/height. It is NaN or Inf while the
// size is unknown; layout skips those values.
func (e *Element) AspectRatio() float64 {
	return e.NaturalSize().AspectRatio()
}

// VisibleRect returns the last computed content rect.
func (e *Element) VisibleRect() Rect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rect
}

// ActiveKind returns the kind of the active resource.
func (e *Element) ActiveKind() ResourceKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active.kind
}

// Muted reports whether the active resource's output is muted. With no
// resource it reports the muted attribute.
func (e *Element) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.active.playable.(interface{ Muted() bool }); ok {
		return m.Muted()
	}
	return e.config.Muted
}

// Configuration returns a snapshot of the declarative configuration.
func (e *Element) Configuration() Configuration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}
