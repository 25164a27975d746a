package mediaview

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// recorder collects events in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(e *Element) *recorder {
	r := &recorder{}
	e.On(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// sequence returns event types in order, skipping time-updates.
func (r *recorder) sequence() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, ev := range r.events {
		if ev.Type != EventTimeUpdate {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (r *recorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// flush waits until every task queued so far has run.
func flush(t *testing.T, e *Element) {
	t.Helper()
	done := make(chan struct{})
	e.queue.post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("event queue did not drain")
	}
}

// fakePlayable is a Playable driven by the test.
type fakePlayable struct {
	kind   ResourceKind
	ref    string
	notify Notifier

	mu       sync.Mutex
	playing  bool
	position time.Duration
	duration time.Duration
	size     Size
	rate     float64
	loop     bool
	muted    bool
	closed   bool
	seeks    []time.Duration
}

func (p *fakePlayable) Kind() ResourceKind { return p.kind }
func (p *fakePlayable) Ref() string        { return p.ref }

func (p *fakePlayable) NaturalSize() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *fakePlayable) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		p.playing = true
		p.notify(NotifyPlaying, nil)
	}
	return nil
}

func (p *fakePlayable) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.playing = false
		p.notify(NotifyPaused, nil)
	}
	return nil
}

func (p *fakePlayable) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
	p.seeks = append(p.seeks, pos)
	return nil
}

func (p *fakePlayable) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayable) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *fakePlayable) SetPlaybackRate(rate float64) {
	p.mu.Lock()
	p.rate = rate
	p.mu.Unlock()
}

func (p *fakePlayable) SetLooping(loop bool) {
	p.mu.Lock()
	p.loop = loop
	p.mu.Unlock()
}

func (p *fakePlayable) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *fakePlayable) Close() error {
	p.mu.Lock()
	p.closed = true
	p.playing = false
	p.mu.Unlock()
	return nil
}

func (p *fakePlayable) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePlayable) playbackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// ready reports metadata and data-ready the way a real file does.
func (p *fakePlayable) ready(duration time.Duration, size Size) {
	p.mu.Lock()
	p.duration = duration
	p.size = size
	p.mu.Unlock()
	p.notify(NotifyMetadata, nil)
	p.notify(NotifyDataReady, nil)
}

// fakeLoader hands out fakePlayables for files and uses the default
// stream binding.
type fakeLoader struct {
	DefaultLoader

	mu      sync.Mutex
	files   []*fakePlayable
	fileErr error
}

func (l *fakeLoader) LoadFile(ctx context.Context, ref string, notify Notifier) (Playable, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileErr != nil {
		return nil, l.fileErr
	}
	p := &fakePlayable{kind: ResourceFile, ref: ref, notify: notify, rate: 1}
	l.files = append(l.files, p)
	return p, nil
}

func (l *fakeLoader) file(i int) *fakePlayable {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.files) {
		return nil
	}
	return l.files[i]
}

func (l *fakeLoader) loaded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.files)
}

func staticProber(info MediaInfo) Prober {
	return ProberFunc(func(context.Context, string) (MediaInfo, error) { return info, nil })
}

func newTestElement(t *testing.T, config ElementConfig) *Element {
	t.Helper()
	e := NewElement(config)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func patternAcquire(config PatternConfig) (*PatternDeviceProvider, AcquireFunc) {
	p := NewPatternDeviceProvider(config)
	return p, AcquireFrom(NewMediaDevices(p))
}

func TestElement_FileScenario(t *testing.T) {
	loader := &DefaultLoader{
		Prober: staticProber(MediaInfo{Duration: 10 * time.Second, Size: Size{1920, 1080}}),
		Images: NewImageDecoder(time.Minute),
	}
	e := newTestElement(t, ElementConfig{
		Loader:     loader,
		Attributes: map[string]string{"src": "clip.mp4"},
	})
	rec := record(e)
	e.Resize(Size{640, 480})

	// Nothing binds while detached.
	flush(t, e)
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.Zero(t, rec.count(EventSourceChanged))

	e.Attach()
	require.Eventually(t, func() bool { return rec.count(EventMetadataReady) == 1 }, waitTimeout, 5*time.Millisecond)
	flush(t, e)

	assert.Equal(t, 1, rec.count(EventSourceChanged))
	assert.Equal(t, 1, rec.count(EventMetadataReady))
	assert.False(t, e.IsPlaying())
	assert.Zero(t, rec.count(EventPlay))
	assert.Equal(t, ResourceFile, e.ActiveKind())
	assert.Equal(t, 10*time.Second, e.Duration())
	assert.Equal(t, Size{1920, 1080}, e.NaturalSize())

	rect := e.VisibleRect()
	assert.InDelta(t, 640, rect.Width, 1e-9)
	assert.InDelta(t, 360, rect.Height, 1e-9)
	assert.InDelta(t, 60, rect.Y, 1e-9)
}

func TestElement_CameraScenario(t *testing.T) {
	provider, acquire := patternAcquire(PatternConfig{Width: 640, Height: 480})
	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire})
	rec := record(e)

	e.Attach()
	e.SetUseCamera(true)

	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)
	flush(t, e)

	assert.Equal(t, 1, rec.count(EventSourceChanged))
	assert.Equal(t, 1, rec.count(EventPlay))
	assert.Equal(t, ResourceStream, e.ActiveKind())
	assert.True(t, e.Muted(), "camera playback must be muted")
	assert.Equal(t, Size{640, 480}, e.NaturalSize())
	assert.Equal(t, 2, provider.Live())
}

func TestElement_CameraFailureKeepsResource(t *testing.T) {
	provider, acquire := patternAcquire(PatternConfig{Deny: true})
	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire})
	rec := record(e)

	e.Attach()
	e.SetUseCamera(true)

	require.Eventually(t, func() bool { return rec.count(EventError) == 1 }, waitTimeout, 5*time.Millisecond)
	flush(t, e)

	ev, _ := rec.last(EventError)
	var acqErr *AcquisitionError
	require.ErrorAs(t, ev.Err, &acqErr)
	assert.ErrorIs(t, ev.Err, ErrPermissionDenied)
	assert.Zero(t, rec.count(EventSourceChanged))
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.Zero(t, provider.Live())

	// Recovery is caller driven: re-toggling retries.
	provider.SetDeny(false)
	e.SetUseCamera(false)
	e.SetUseCamera(true)
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceStream }, waitTimeout, 5*time.Millisecond)
}

func TestElement_ReferenceWinsOverCamera(t *testing.T) {
	provider, acquire := patternAcquire(DefaultPatternConfig())
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader, Acquire: acquire})
	rec := record(e)

	e.SetSourceRef("clip.mp4")
	e.Attach()
	require.Equal(t, 1, loader.loaded())
	file := loader.file(0)

	e.SetUseCamera(true)
	time.Sleep(50 * time.Millisecond)
	flush(t, e)

	assert.Zero(t, provider.Opened(), "no acquisition while a reference is set")
	assert.Equal(t, ResourceFile, e.ActiveKind())
	assert.False(t, file.isClosed())
	assert.Equal(t, 1, rec.count(EventSourceChanged))

	// Clearing the reference falls back to the camera.
	e.SetSourceRef("")
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceStream }, waitTimeout, 5*time.Millisecond)
	assert.True(t, file.isClosed())
}

func TestElement_CameraToggleOffOn(t *testing.T) {
	provider, acquire := patternAcquire(DefaultPatternConfig())
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire, Metrics: metrics})
	e.Attach()
	e.SetUseCamera(true)
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceStream }, waitTimeout, 5*time.Millisecond)
	require.Equal(t, 2, provider.Opened())

	e.SetUseCamera(false)
	e.SetUseCamera(true)
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceStream }, waitTimeout, 5*time.Millisecond)

	// One teardown and one new acquisition of camera plus microphone.
	assert.Equal(t, 4, provider.Opened())
	require.Eventually(t, func() bool { return provider.Live() == 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.acquisitionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.activeResources.WithLabelValues("stream")))
}

func TestElement_StaleAcquisitionIsStopped(t *testing.T) {
	provider, acquire := patternAcquire(PatternConfig{OpenDelay: 30 * time.Millisecond})
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire, Metrics: metrics})
	rec := record(e)
	e.Attach()

	// Both acquisitions are in flight at once; only the newer may bind.
	e.SetUseCamera(true)
	e.SetUseCamera(false)
	e.SetUseCamera(true)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.acquisitionsTotal.WithLabelValues("stale")) == 1 &&
			testutil.ToFloat64(metrics.acquisitionsTotal.WithLabelValues("success")) == 1
	}, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool { return provider.Live() == 2 }, waitTimeout, 5*time.Millisecond)
	flush(t, e)

	assert.Equal(t, ResourceStream, e.ActiveKind())
	assert.Equal(t, 1, rec.count(EventSourceChanged))
}

func TestElement_DetachStopsCamera(t *testing.T) {
	provider, acquire := patternAcquire(DefaultPatternConfig())
	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire})
	e.SetUseCamera(true)
	e.Attach()
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	e.Detach()
	assert.False(t, e.Mounted())
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.False(t, e.sampler.Running())
	require.Eventually(t, func() bool { return provider.Live() == 0 }, waitTimeout, 5*time.Millisecond)

	e.Attach()
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 4, provider.Opened())
}

func TestElement_DetachPausesFile(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)
	file.ready(time.Minute, Size{640, 360})
	require.NoError(t, e.Play())
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	e.Detach()
	require.Eventually(t, func() bool { return rec.count(EventPause) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.False(t, e.sampler.Running())

	// Reattaching with an unchanged reference keeps the same resource.
	e.Attach()
	flush(t, e)
	assert.Equal(t, 1, loader.loaded())
	assert.False(t, file.isClosed())
	assert.Equal(t, 1, rec.count(EventSourceChanged))
}

func TestElement_PlayThenLoop(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)

	file.notify(NotifyPlaying, nil)
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)
	run := e.sampler.Current()
	require.NotZero(t, run)

	file.notify(NotifyPlaying, nil)
	require.Eventually(t, func() bool { return rec.count(EventLoop) == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 1, rec.count(EventPlay))
	assert.Equal(t, run, e.sampler.Current(), "loop must not restart the sampler")

	file.notify(NotifyPaused, nil)
	require.Eventually(t, func() bool { return rec.count(EventPause) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.False(t, e.sampler.Running())
	assert.Equal(t, StatePaused, e.State())
}

func TestElement_TimeUpdateCadence(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)
	file.ready(time.Minute, Size{640, 360})

	require.NoError(t, e.Play())
	time.Sleep(1050 * time.Millisecond)
	require.NoError(t, e.Pause())
	flush(t, e)

	n := rec.count(EventTimeUpdate)
	assert.GreaterOrEqual(t, n, 7)
	assert.LessOrEqual(t, n, 11)

	time.Sleep(300 * time.Millisecond)
	flush(t, e)
	assert.Equal(t, n, rec.count(EventTimeUpdate), "time-update while paused")
}

func TestElement_TimeUpdateReadsPosition(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader, SampleInterval: 10 * time.Millisecond})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)
	require.NoError(t, file.Seek(1500*time.Millisecond))
	require.NoError(t, e.Play())

	require.Eventually(t, func() bool { return rec.count(EventTimeUpdate) > 0 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, e.CurrentTime())
}

func TestElement_FileEndsAndLoops(t *testing.T) {
	t.Run("ends", func(t *testing.T) {
		loader := &DefaultLoader{Prober: staticProber(MediaInfo{Duration: 60 * time.Millisecond, Size: Size{320, 240}})}
		e := newTestElement(t, ElementConfig{
			Loader:     loader,
			Attributes: map[string]string{AttrSourceReference: "short.mp4", AttrAutoplay: ""},
		})
		rec := record(e)
		e.Attach()

		require.Eventually(t, func() bool { return rec.count(EventEnd) == 1 }, waitTimeout, 5*time.Millisecond)
		assert.Equal(t, []EventType{EventSourceChanged, EventMetadataReady, EventPlay, EventPause, EventEnd}, rec.sequence())
		assert.Equal(t, StateEnded, e.State())
		assert.False(t, e.IsPlaying())
		assert.False(t, e.sampler.Running())
		assert.Equal(t, 60*time.Millisecond, e.CurrentTime())
	})

	t.Run("loops", func(t *testing.T) {
		loader := &DefaultLoader{Prober: staticProber(MediaInfo{Duration: 40 * time.Millisecond, Size: Size{320, 240}})}
		e := newTestElement(t, ElementConfig{
			Loader:     loader,
			Attributes: map[string]string{"src": "short.mp4", "autoplay": "true", "islooping": ""},
		})
		rec := record(e)
		e.Attach()

		require.Eventually(t, func() bool { return rec.count(EventLoop) >= 2 }, waitTimeout, 5*time.Millisecond)
		assert.Equal(t, 1, rec.count(EventPlay))
		assert.Zero(t, rec.count(EventEnd))
		assert.True(t, e.IsPlaying())
	})
}

func TestElement_PlaybackRateRoundTrip(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})

	e.SetAttribute(AttrPlaybackRate, "2")
	v, ok := e.Attribute(AttrPlaybackRate)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 2.0, e.PlaybackRate())

	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)
	assert.Equal(t, 2.0, file.playbackRate())

	v, _ = e.Attribute("playbackrate")
	assert.Equal(t, "2", v)
	assert.Equal(t, 2.0, e.PlaybackRate())

	e.ChangePlaybackRate(0.5)
	assert.Equal(t, 0.5, file.playbackRate())

	// Unparseable rates pass through as NaN.
	e.SetAttribute("playbackrate", "fast")
	assert.True(t, math.IsNaN(e.PlaybackRate()))
	assert.True(t, math.IsNaN(file.playbackRate()))
}

func TestElement_RateAppliedToClockMedia(t *testing.T) {
	loader := &DefaultLoader{Prober: staticProber(MediaInfo{Duration: time.Minute, Size: Size{320, 240}})}
	e := newTestElement(t, ElementConfig{Loader: loader})
	e.SetPlaybackRate(2)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	require.NoError(t, e.Play())
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	e.mu.Lock()
	media := e.active.playable.(*ClockMedia)
	e.mu.Unlock()
	assert.Equal(t, 2.0, media.PlaybackRate())

	// The clock ignores invalid rates and keeps the last valid one.
	e.SetPlaybackRate(math.NaN())
	assert.Equal(t, 2.0, media.PlaybackRate())
}

func TestElement_OperationsWithoutResource(t *testing.T) {
	e := newTestElement(t, ElementConfig{Loader: &fakeLoader{}})
	e.Attach()

	assert.NoError(t, e.Play())
	assert.NoError(t, e.Pause())
	assert.NoError(t, e.TogglePlayback())
	assert.NoError(t, e.SeekTo(time.Second))
	assert.NoError(t, e.Step(3))
	assert.Equal(t, Size{}, e.NaturalSize())
	assert.True(t, math.IsNaN(e.AspectRatio()))
	assert.Equal(t, StatePaused, e.State())
}

func TestElement_StepAndToggle(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)
	file.ready(time.Minute, Size{640, 360})

	require.NoError(t, e.TogglePlayback())
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)
	require.NoError(t, e.SeekTo(time.Second))

	require.NoError(t, e.Step(24))
	assert.Equal(t, 2*time.Second, file.Position())
	require.Eventually(t, func() bool { return rec.count(EventPause) == 1 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, e.Step(-12))
	assert.Equal(t, 1500*time.Millisecond, file.Position())

	require.NoError(t, e.TogglePlayback())
	require.Eventually(t, func() bool { return rec.count(EventPlay) == 2 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, e.TogglePlayback())
	require.Eventually(t, func() bool { return rec.count(EventPause) == 2 }, waitTimeout, 5*time.Millisecond)
}

func TestElement_SeekStreamIgnored(t *testing.T) {
	_, acquire := patternAcquire(DefaultPatternConfig())
	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire})
	e.SetUseCamera(true)
	e.Attach()
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	assert.NoError(t, e.SeekTo(5*time.Second))
	assert.NoError(t, e.Step(1))
	assert.Zero(t, e.Duration())
}

func TestElement_Image(t *testing.T) {
	path := writePNG(t, 200, 100)
	loader := &DefaultLoader{
		Prober: ProberFunc(func(context.Context, string) (MediaInfo, error) { return MediaInfo{}, ErrNoVideoStream }),
		Images: NewImageDecoder(time.Minute),
	}
	var (
		mu    sync.Mutex
		rects []Rect
	)
	e := newTestElement(t, ElementConfig{
		Loader: loader,
		Presenter: PresenterFunc(func(kind ResourceKind, rect Rect) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, ResourceImage, kind)
			rects = append(rects, rect)
		}),
	})
	rec := record(e)
	e.Resize(Size{400, 400})
	e.SetIsImage(true)
	e.SetSourceRef(path)
	e.Attach()

	require.Eventually(t, func() bool { return rec.count(EventMetadataReady) == 1 }, waitTimeout, 5*time.Millisecond)
	flush(t, e)

	assert.Equal(t, ResourceImage, e.ActiveKind())
	assert.Equal(t, Size{200, 100}, e.NaturalSize())
	assert.Equal(t, 2.0, e.AspectRatio())
	assert.Zero(t, e.Duration())
	assert.Equal(t, Rect{X: 0, Y: 100, Width: 400, Height: 200}, e.VisibleRect())
	assert.NoError(t, e.Play())
	assert.NoError(t, e.SeekTo(time.Second))

	mu.Lock()
	assert.Equal(t, []Rect{{X: 0, Y: 100, Width: 400, Height: 200}}, rects)
	mu.Unlock()

	// Zero bounds keep the previous layout.
	e.Resize(Size{0, 300})
	assert.Equal(t, Rect{X: 0, Y: 100, Width: 400, Height: 200}, e.VisibleRect())

	// Switching to file mode rebinds the same reference.
	e.SetIsImage(false)
	flush(t, e)
	assert.Equal(t, ResourceFile, e.ActiveKind())
	assert.Equal(t, 2, rec.count(EventSourceChanged))
}

func TestElement_LoadErrorKeepsResource(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("a.mp4")
	e.Attach()
	first := loader.file(0)

	boom := errors.New("unsupported container")
	loader.mu.Lock()
	loader.fileErr = boom
	loader.mu.Unlock()

	e.SetSourceRef("b.mp4")
	flush(t, e)

	ev, ok := rec.last(EventError)
	require.True(t, ok)
	var loadErr *LoadError
	require.ErrorAs(t, ev.Err, &loadErr)
	assert.Equal(t, "b.mp4", loadErr.Ref)
	assert.ErrorIs(t, ev.Err, boom)
	assert.False(t, first.isClosed())
	assert.Equal(t, ResourceFile, e.ActiveKind())
	assert.Equal(t, 1, rec.count(EventSourceChanged))
}

func TestElement_ResourceErrorNotification(t *testing.T) {
	loader := &DefaultLoader{Prober: ProberFunc(func(context.Context, string) (MediaInfo, error) {
		return MediaInfo{}, ErrNoVideoStream
	})}
	e := newTestElement(t, ElementConfig{Loader: loader, Attributes: map[string]string{"src": "audio.mp3"}})
	rec := record(e)
	e.Attach()

	require.Eventually(t, func() bool { return rec.count(EventError) == 1 }, waitTimeout, 5*time.Millisecond)
	ev, _ := rec.last(EventError)
	assert.ErrorIs(t, ev.Err, ErrNoVideoStream)
	assert.Equal(t, e.ID(), ev.ElementID)
}

func TestElement_ClearReferenceReleases(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("clip.mp4")
	e.Attach()
	file := loader.file(0)

	e.RemoveAttribute("src")
	flush(t, e)
	assert.True(t, file.isClosed())
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.Equal(t, 2, rec.count(EventSourceChanged))

	// A pass that changes nothing emits nothing.
	e.SetIsLooping(true)
	e.SetSourceRef("")
	flush(t, e)
	assert.Equal(t, 2, rec.count(EventSourceChanged))
}

func TestElement_StaleNotificationsDropped(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	rec := record(e)
	e.SetSourceRef("a.mp4")
	e.Attach()
	old := loader.file(0)
	e.SetSourceRef("b.mp4")

	old.notify(NotifyPlaying, nil)
	old.notify(NotifyMetadata, nil)
	flush(t, e)

	assert.Zero(t, rec.count(EventPlay))
	assert.Zero(t, rec.count(EventMetadataReady))
	assert.True(t, old.isClosed())
}

func TestElement_LoadDelay(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader, LoadDelay: 50 * time.Millisecond})
	e.SetSourceRef("clip.mp4")
	e.Attach()

	assert.Equal(t, ResourceNone, e.ActiveKind())
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceFile }, waitTimeout, 5*time.Millisecond)

	// Detaching before the delay elapses cancels the pending load.
	e2 := newTestElement(t, ElementConfig{Loader: loader, LoadDelay: 50 * time.Millisecond})
	e2.SetSourceRef("other.mp4")
	e2.Attach()
	e2.Detach()
	time.Sleep(100 * time.Millisecond)
	flush(t, e2)
	assert.Equal(t, ResourceNone, e2.ActiveKind())
}

func TestElement_ReattachRestartsLoadDelay(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader, LoadDelay: 200 * time.Millisecond})
	e.SetSourceRef("clip.mp4")

	// Hold the event goroutine so the first mount's reconcile stays queued.
	release := make(chan struct{})
	e.queue.post(func() { <-release })
	e.Attach()
	time.Sleep(250 * time.Millisecond)
	e.Detach()
	e.Attach()
	close(release)

	flush(t, e)
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.Zero(t, loader.loaded())

	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceFile }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, loader.loaded())
}

func TestElement_MutedAndAutoplay(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	e.SetAttribute("mute", "")
	e.SetAutoplay(true)
	assert.True(t, e.Autoplay())
	e.SetSourceRef("clip.mp4")
	e.Attach()

	file := loader.file(0)
	file.ready(time.Minute, Size{640, 360})
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)
	assert.True(t, e.Muted())

	e.SetMuted(false)
	assert.False(t, e.Muted())
	v, ok := e.Attribute(AttrMuted)
	assert.False(t, ok)
	assert.Equal(t, "false", v)
}

func TestElement_ListenerReentry(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	states := make(chan PlaybackState, 4)
	cancel := e.On(func(ev Event) {
		if ev.Type == EventPlay {
			states <- e.State()
			_ = e.Pause()
		}
	})
	defer cancel()

	e.SetSourceRef("clip.mp4")
	e.Attach()
	require.NoError(t, e.Play())

	select {
	case s := <-states:
		assert.Equal(t, StatePlaying, s)
	case <-time.After(waitTimeout):
		t.Fatal("play listener not called")
	}
	require.Eventually(t, func() bool { return e.State() == StatePaused }, waitTimeout, 5*time.Millisecond)
}

func TestElement_ReacquireAfterAccessGranted(t *testing.T) {
	provider := NewPatternDeviceProvider(PatternConfig{Deny: true})
	devices := NewMediaDevices(provider)
	e := newTestElement(t, ElementConfig{Loader: NewDefaultLoader(), Acquire: AcquireFrom(devices)})
	devices.OnDeviceChange(e.Reacquire)
	rec := record(e)

	e.SetUseCamera(true)
	e.Attach()
	require.Eventually(t, func() bool { return rec.count(EventError) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, ResourceNone, e.ActiveKind())

	provider.SetDeny(false)
	require.Eventually(t, func() bool { return e.ActiveKind() == ResourceStream }, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	// Nothing to retry once a stream is bound.
	e.Reacquire()
	flush(t, e)
	assert.Equal(t, 2, provider.Opened())
}

func TestElement_CloseFromListener(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestElement(t, ElementConfig{Loader: loader})
	closed := make(chan error, 1)
	e.On(func(ev Event) {
		if ev.Type == EventSourceChanged {
			closed <- e.Close()
		}
	})

	e.SetSourceRef("clip.mp4")
	e.Attach()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Close called from a listener did not return")
	}
	select {
	case <-e.done:
	case <-time.After(waitTimeout):
		t.Fatal("event goroutine did not exit")
	}
	assert.False(t, e.Mounted())
	assert.Equal(t, ResourceNone, e.ActiveKind())
	assert.True(t, loader.file(0).isClosed())
}

func TestElement_CloseReleases(t *testing.T) {
	provider, acquire := patternAcquire(DefaultPatternConfig())
	e := NewElement(ElementConfig{Loader: NewDefaultLoader(), Acquire: acquire})
	e.SetUseCamera(true)
	e.Attach()
	require.Eventually(t, e.IsPlaying, waitTimeout, 5*time.Millisecond)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	require.Eventually(t, func() bool { return provider.Live() == 0 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, ResourceNone, e.ActiveKind())

	// Closing during an acquisition cancels it.
	slow, slowAcquire := patternAcquire(PatternConfig{OpenDelay: time.Second})
	e = NewElement(ElementConfig{Loader: NewDefaultLoader(), Acquire: slowAcquire})
	e.SetUseCamera(true)
	e.Attach()
	require.NoError(t, e.Close())
	assert.Zero(t, slow.Live())
}
