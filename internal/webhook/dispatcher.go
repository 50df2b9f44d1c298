package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// queueSize is the buffer size for the event queue
	queueSize = 1000

	// maxResponseBodySize limits how much of the response body we read (1KB)
	maxResponseBodySize = 1024
)

// Config holds the delivery settings for outbound webhooks.
type Config struct {
	URLs       []string
	Secret     string
	MaxRetries int
	Timeout    time.Duration
}

// Dispatcher posts rule-trigger events to the configured endpoints.
// Delivery runs on a background worker with retry and exponential backoff
// so the match path never blocks on a slow endpoint.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
	queue  chan Event
	done   chan struct{}
	closed int32
}

// NewDispatcher creates a new webhook dispatcher. Call Start before use.
func NewDispatcher(cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
}

// Start begins processing events from the queue
func (d *Dispatcher) Start() {
	go d.worker()
}

// Close gracefully shuts down the dispatcher. It closes the event queue
// and waits for pending deliveries to complete. Safe to call more than once.
func (d *Dispatcher) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	close(d.queue)
	<-d.done
	return nil
}

// RuleTriggered queues a rule.triggered event. It satisfies the match
// engine's Dispatcher interface and never blocks the caller.
func (d *Dispatcher) RuleTriggered(ruleID, snippetID, url, country string) {
	d.Dispatch(Event{
		Type:      EventRuleTriggered,
		Timestamp: d.now(),
		RuleID:    ruleID,
		SnippetID: snippetID,
		URL:       url,
		Country:   country,
	})
}

// Dispatch queues an event for delivery, dropping it if the queue is full.
func (d *Dispatcher) Dispatch(event Event) {
	if len(d.cfg.URLs) == 0 {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn().Str("type", event.Type).Str("rule_id", event.RuleID).Msg("webhook queue full, dropping event")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for event := range d.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			d.log.Error().Err(err).Str("type", event.Type).Msg("webhook payload marshal failed")
			continue
		}
		for _, url := range d.cfg.URLs {
			d.deliverWithRetry(context.Background(), url, event, payload)
		}
	}
}

// deliverWithRetry attempts to deliver an event to one endpoint with retry logic
func (d *Dispatcher) deliverWithRetry(ctx context.Context, url string, event Event, payload []byte) {
	signature := ComputeHMAC(payload, d.cfg.Secret)
	deliveryID := uuid.NewString()

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		start := d.now()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			d.log.Error().Err(err).Str("url", url).Msg("webhook request build failed")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tracklight-Signature", signature)
		req.Header.Set("X-Tracklight-Event", event.Type)
		req.Header.Set("X-Tracklight-Delivery", deliveryID)

		resp, err := d.client.Do(req)
		duration := time.Since(start)

		var statusCode int
		if err == nil {
			statusCode = resp.StatusCode
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
			resp.Body.Close()
		}

		if err == nil && statusCode >= 200 && statusCode < 300 {
			d.log.Debug().
				Str("url", url).
				Str("type", event.Type).
				Int("status", statusCode).
				Dur("duration", duration).
				Msg("webhook delivered")
			return
		}

		if attempt < d.cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			d.log.Warn().
				Err(err).
				Str("url", url).
				Int("status", statusCode).
				Int("attempt", attempt+1).
				Dur("retry_in", backoff).
				Msg("webhook delivery failed, retrying")
			time.Sleep(backoff)
		} else {
			d.log.Error().
				Err(err).
				Str("url", url).
				Int("status", statusCode).
				Int("attempts", attempt+1).
				Msg("webhook delivery failed permanently")
		}
	}
}
