package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Action constants for audit records.
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionDeleted     = "deleted"
	ActionExecuted    = "executed"
	ActionActivated   = "activated"
	ActionDeactivated = "deactivated"
	ActionLoggedIn    = "logged_in"
)

// Resource constants for audit records.
const (
	ResourceRule    = "rule"
	ResourceSnippet = "snippet"
	ResourceUser    = "user"
)

// Event is a single admin action worth keeping a trail of.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// LogSink writes audit events to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, event Event) error {
	s.log.Info().
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("resource_id", event.ResourceID).
		Str("detail", event.Detail).
		Time("occurred_at", event.OccurredAt).
		Msg("audit")
	return nil
}

// MemorySink keeps events in memory. Used in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Service queues audit events and writes them on a background worker so
// admin handlers never block on the trail.
type Service struct {
	sink   Sink
	log    zerolog.Logger
	now    func() time.Time
	queue  chan Event
	stopCh chan struct{}
	done   chan struct{}
	closed int32
}

func NewService(sink Sink, log zerolog.Logger, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 128
	}
	s := &Service{
		sink:   sink,
		log:    log,
		now:    time.Now,
		queue:  make(chan Event, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Service) worker() {
	defer close(s.done)
	for {
		select {
		case event := <-s.queue:
			s.write(event)
		case <-s.stopCh:
			for {
				select {
				case event := <-s.queue:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Write(ctx, event); err != nil {
		s.log.Error().Err(err).Str("resource", event.Resource).Msg("audit write failed")
	}
}

// Record queues an event, dropping it if the queue is full.
func (s *Service) Record(actor, action, resource, resourceID, detail string) {
	event := Event{
		OccurredAt: s.now(),
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Detail:     detail,
	}
	select {
	case s.queue <- event:
	default:
		s.log.Warn().Str("resource", resource).Str("resource_id", resourceID).Msg("audit queue full, dropping event")
	}
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (s *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	close(s.stopCh)
	<-s.done
	return nil
}
