// Package eventsink forwards element events to a message broker.
package eventsink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/thesyncim/mediaview"
)

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Message is the JSON payload published for each event.
type Message struct {
	Type       mediaview.EventType `json:"type"`
	Element    string              `json:"element"`
	State      string              `json:"state"`
	Kind       string              `json:"kind"`
	Source     string              `json:"source,omitempty"`
	PositionMS int64               `json:"positionMs"`
	DurationMS int64               `json:"durationMs"`
	Rect       mediaview.Rect      `json:"rect"`
	Error      string              `json:"error,omitempty"`
	Time       time.Time           `json:"time"`
}

// Config configures a Sink.
type Config struct {
	Topic      string     // Topic prefix (default: "mediaview")
	TimeUpdate rate.Limit // Max time-update messages per second; 0 drops them all
	Buffer     int        // Pending message capacity (default: 64)
}

// Sink turns element events into Messages and publishes them from a single
// goroutine. Listeners never block: messages beyond the buffer are dropped.
type Sink struct {
	pub     Publisher
	topic   string
	limiter *rate.Limiter
	log     *slog.Logger
	queue   chan Message
	dropped atomic.Int64
	now     func() time.Time
}

// New creates a sink publishing through pub.
func New(pub Publisher, config Config, logger *slog.Logger) *Sink {
	if config.Topic == "" {
		config.Topic = "mediaview"
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := 1
	if config.TimeUpdate == 0 {
		// A zero limit with a burst of one still admits a single event.
		burst = 0
	}
	return &Sink{
		pub:     pub,
		topic:   config.Topic,
		limiter: rate.NewLimiter(config.TimeUpdate, burst),
		log:     logger.With("component", "eventsink"),
		queue:   make(chan Message, config.Buffer),
		now:     time.Now,
	}
}

// Attach forwards every event of e. The returned func detaches the sink.
func (s *Sink) Attach(e *mediaview.Element) (cancel func()) {
	return e.On(func(ev mediaview.Event) {
		if ev.Type == mediaview.EventTimeUpdate && !s.limiter.Allow() {
			return
		}
		s.enqueue(s.message(ev, e))
	})
}

func (s *Sink) message(ev mediaview.Event, e *mediaview.Element) Message {
	msg := Message{
		Type:       ev.Type,
		Element:    ev.ElementID,
		State:      e.State().String(),
		Kind:       e.ActiveKind().String(),
		Source:     e.SourceRef(),
		PositionMS: e.CurrentTime().Milliseconds(),
		DurationMS: e.Duration().Milliseconds(),
		Rect:       e.VisibleRect(),
		Time:       s.now().UTC(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

func (s *Sink) enqueue(msg Message) {
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of messages dropped because the buffer was full.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Topic returns the topic a message is published to.
func (s *Sink) Topic(msg Message) string {
	return s.topic + "/" + msg.Element + "/" + string(msg.Type)
}

// Run publishes queued messages until ctx is done. Publish failures are
// logged and the message is discarded.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.queue:
			payload, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("failed to encode event", "type", msg.Type, "error", err)
				continue
			}
			if err := s.pub.Publish(ctx, s.Topic(msg), payload); err != nil {
				s.log.Warn("failed to publish event", "topic", s.Topic(msg), "error", err)
			}
		}
	}
}
