package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/care-scheduling/internal/appointment"
	"github.com/hackgods/care-scheduling/internal/metrics"
)

// Sink delivers a single event to a downstream transport.
type Sink interface {
	Deliver(ctx context.Context, ev appointment.Event) error
}

// AsyncPublisher queues committed events and delivers them from a background
// goroutine. Publish never blocks: when the queue is full the event is dropped
// and logged, since the booking it describes is already committed.
type AsyncPublisher struct {
	sink    Sink
	queue   chan appointment.Event
	log     zerolog.Logger
	metrics *metrics.SchedulingMetrics

	attempts       int
	backoff        time.Duration
	deliverTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	start  sync.Once
}

var _ appointment.Publisher = (*AsyncPublisher)(nil)

func NewAsyncPublisher(sink Sink, buffer int, logger zerolog.Logger) *AsyncPublisher {
	if sink == nil {
		panic("events: sink required")
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncPublisher{
		sink:           sink,
		queue:          make(chan appointment.Event, buffer),
		log:            logger.With().Str("component", "event_publisher").Logger(),
		attempts:       3,
		backoff:        200 * time.Millisecond,
		deliverTimeout: 5 * time.Second,
		done:           make(chan struct{}),
	}
}

func (p *AsyncPublisher) WithMetrics(m *metrics.SchedulingMetrics) *AsyncPublisher {
	p.metrics = m
	return p
}

// WithRetry sets how many delivery attempts an event gets and the initial
// backoff between them, doubled after each failure.
func (p *AsyncPublisher) WithRetry(attempts int, backoff time.Duration) *AsyncPublisher {
	if attempts > 0 {
		p.attempts = attempts
	}
	if backoff >= 0 {
		p.backoff = backoff
	}
	return p
}

// Start launches the delivery loop. Calling it more than once has no effect.
func (p *AsyncPublisher) Start() {
	p.start.Do(func() {
		go p.run()
	})
}

func (p *AsyncPublisher) Publish(_ context.Context, events ...appointment.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ev := range events {
		if p.closed {
			p.drop(ev, "publisher closed")
			continue
		}
		select {
		case p.queue <- ev:
		default:
			p.drop(ev, "queue full")
		}
	}
	p.metrics.SetQueueDepth(len(p.queue))
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.Start()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		p.deliver(ev)
		p.metrics.SetQueueDepth(len(p.queue))
	}
}

func (p *AsyncPublisher) deliver(ev appointment.Event) {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.deliverTimeout)
		err = p.sink.Deliver(ctx, ev)
		cancel()
		if err == nil {
			p.metrics.ObserveEvent(string(ev.Type), "delivered")
			p.log.Debug().
				Str("event_id", ev.ID.String()).
				Str("type", string(ev.Type)).
				Msg("event delivered")
			return
		}
		p.log.Warn().Err(err).
			Str("event_id", ev.ID.String()).
			Int("attempt", attempt).
			Msg("event delivery failed")
		if attempt < p.attempts && backoff > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	p.metrics.ObserveEvent(string(ev.Type), "failed")
	p.log.Error().Err(err).
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("appointment_id", ev.AppointmentID.String()).
		Msg("giving up on event delivery")
}

func (p *AsyncPublisher) drop(ev appointment.Event, reason string) {
	p.metrics.ObserveEvent(string(ev.Type), "dropped")
	p.log.Error().
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("reason", reason).
		Msg("event dropped")
}

// LogSink writes events to the log. It stands in for a broker in local runs.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

func (s *LogSink) Deliver(_ context.Context, ev appointment.Event) error {
	s.log.Info().
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("appointment_number", ev.AppointmentNumber).
		Msg("appointment event")
	return nil
}
