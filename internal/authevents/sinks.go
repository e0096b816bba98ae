package authevents

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/newsdesk/internal/audit"
	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/infrastructure/mqtt"
)

// Source is the audit source recorded for every auth event.
const Source = "auth"

// Logger is the logging surface used by the sinks.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Fanout delivers each event to every sink in order.
type Fanout []auth.EventSink

// RecordEvent implements auth.EventSink.
func (f Fanout) RecordEvent(ctx context.Context, e auth.Event) {
	for _, sink := range f {
		sink.RecordEvent(ctx, e)
	}
}

// AuditSink appends every event to the audit trail.
type AuditSink struct {
	repo   audit.Repository
	logger Logger
}

// NewAuditSink creates a sink writing to repo. A nil logger discards warnings.
func NewAuditSink(repo audit.Repository, logger Logger) *AuditSink {
	return &AuditSink{repo: repo, logger: orNoop(logger)}
}

// RecordEvent implements auth.EventSink.
func (s *AuditSink) RecordEvent(ctx context.Context, e auth.Event) {
	entry := toEntry(e)
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Warn("writing audit entry failed", "event", string(e.Type), "error", err)
	}
}

func toEntry(e auth.Event) audit.Entry {
	entityType := "user"
	switch e.Type {
	case auth.EventLogin, auth.EventLoginFailed, auth.EventLogout, auth.EventForceLogout:
		entityType = "session"
	}

	actor := e.ActorID
	if actor == "" {
		actor = e.UserID
	}

	details := map[string]any{"success": e.Success}
	if e.Username != "" {
		details["username"] = e.Username
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}

	return audit.Entry{
		Action:     string(e.Type),
		EntityType: entityType,
		EntityID:   e.UserID,
		UserID:     actor,
		Source:     Source,
		Details:    details,
		CreatedAt:  e.At,
	}
}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
}

// mqttQueueSize bounds the events waiting for the broker.
const mqttQueueSize = 256

// MQTTSink publishes each event as JSON on newsdesk/auth/<type> from its
// own goroutine; RecordEvent never waits on the broker. When the queue is
// full the event is dropped with a warning.
type MQTTSink struct {
	pub    Publisher
	logger Logger
	queue  chan auth.Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMQTTSink creates a sink publishing through pub and starts its
// publisher goroutine. Call Close to stop it.
func NewMQTTSink(pub Publisher, logger Logger) *MQTTSink {
	s := &MQTTSink{
		pub:    pub,
		logger: orNoop(logger),
		queue:  make(chan auth.Event, mqttQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// RecordEvent implements auth.EventSink. It never blocks.
func (s *MQTTSink) RecordEvent(_ context.Context, e auth.Event) {
	select {
	case <-s.stop:
		s.logger.Warn("mqtt sink closed, dropping auth event", "event", string(e.Type))
		return
	default:
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("mqtt event queue full, dropping auth event", "event", string(e.Type))
	}
}

// Close stops the publisher after it has sent whatever is already queued.
// It is safe to call more than once.
func (s *MQTTSink) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *MQTTSink) run() {
	defer close(s.done)
	for {
		select {
		case e := <-s.queue:
			s.publish(e)
		case <-s.stop:
			for {
				select {
				case e := <-s.queue:
					s.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (s *MQTTSink) publish(e auth.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("encoding auth event failed", "event", string(e.Type), "error", err)
		return
	}
	if err := s.pub.PublishEvent(mqtt.Topics{}.AuthEvent(string(e.Type)), payload); err != nil {
		s.logger.Warn("publishing auth event failed", "event", string(e.Type), "error", err)
	}
}

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteAuthAttempt(username string, success bool, reason string, at time.Time)
}

// MetricsSink records login attempts. Other event types are ignored.
type MetricsSink struct {
	w PointWriter
}

// NewMetricsSink creates a sink writing through w.
func NewMetricsSink(w PointWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// RecordEvent implements auth.EventSink.
func (s *MetricsSink) RecordEvent(_ context.Context, e auth.Event) {
	switch e.Type {
	case auth.EventLogin, auth.EventLoginFailed:
		s.w.WriteAuthAttempt(e.Username, e.Success, e.Reason, e.At)
	}
}
