package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRewritten         EventType = "rewritten"
	EventCookieRewritten   EventType = "cookie_rewritten"
	EventDenied            EventType = "denied"
	EventPassThrough       EventType = "pass_through"
	EventUpstreamFailed    EventType = "upstream_failed"
	EventResponseCompleted EventType = "response_completed"
)

// MetricEvent describes one routing decision or completed response. Rule is
// the matched path prefix; it is empty for forward proxy traffic.
type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Rule       string
	Duration   time.Duration
	StatusCode int
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRewritten:
		c.metrics.RecordRewrite(event.Rule, false)

	case EventCookieRewritten:
		c.metrics.RecordRewrite(event.Rule, true)

	case EventDenied:
		c.metrics.RecordDenied()

	case EventPassThrough:
		c.metrics.RecordPassThrough()

	case EventUpstreamFailed:
		c.metrics.RecordUpstreamFailure(event.Rule)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Rule, event.Duration, event.StatusCode)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
