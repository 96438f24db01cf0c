package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/connector"
	"github.com/lure-project/lure/internal/events"
)

// Defaults applied by NewPipeline to zero options.
const (
	DefaultBatchSize       = 10
	DefaultFlushInterval   = 5 * time.Second
	DefaultQueueSize       = 256
	DefaultDeliveryQueue   = 8
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultTitle           = "Ping!"
)

// Sink receives flushed batches. WebhookSink is the production sink.
type Sink interface {
	Deliver(ctx context.Context, embeds []connector.Embed) error
}

// Options configures a Pipeline.
type Options struct {
	Title           string
	BatchSize       int
	FlushInterval   time.Duration
	QueueSize       int
	DeliveryQueue   int
	DeliveryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.DeliveryQueue <= 0 {
		o.DeliveryQueue = DefaultDeliveryQueue
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return o
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Recorded       uint64 `json:"recorded"`
	Dropped        uint64 `json:"dropped"`
	Batches        uint64 `json:"batches"`
	BatchesDropped uint64 `json:"batches_dropped"`
	Delivered      uint64 `json:"delivered"`
	Failed         uint64 `json:"failed"`
}

// Pipeline batches notification events and delivers them to a Sink.
//
// One worker goroutine owns the batch: events arrive over a bounded
// channel and are flushed when the batch reaches BatchSize or the flush
// ticker fires, whichever comes first. Flushed batches go in order to a
// single delivery goroutine, so a slow webhook never blocks recording.
type Pipeline struct {
	sink   Sink
	opts   Options
	logger zerolog.Logger

	in         chan NotificationEvent
	flushReq   chan chan struct{}
	deliveries chan []connector.Embed

	started      atomic.Bool
	stopOnce     sync.Once
	stopMu       sync.RWMutex
	stopped      bool
	stopCh       chan struct{}
	workerDone   chan struct{}
	deliveryDone chan struct{}

	recorded       atomic.Uint64
	dropped        atomic.Uint64
	batches        atomic.Uint64
	batchesDropped atomic.Uint64
	delivered      atomic.Uint64
	failed         atomic.Uint64
}

// NewPipeline creates a pipeline. Call Start before recording.
func NewPipeline(sink Sink, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		sink:         sink,
		opts:         opts,
		logger:       log.With().Str("component", "notify").Logger(),
		in:           make(chan NotificationEvent, opts.QueueSize),
		flushReq:     make(chan chan struct{}),
		deliveries:   make(chan []connector.Embed, opts.DeliveryQueue),
		stopCh:       make(chan struct{}),
		workerDone:   make(chan struct{}),
		deliveryDone: make(chan struct{}),
	}
}

// Start launches the worker and delivery goroutines. Calling it twice
// has no effect.
func (p *Pipeline) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
	go p.deliver()

	p.logger.Info().
		Int("batch_size", p.opts.BatchSize).
		Dur("flush_interval", p.opts.FlushInterval).
		Msg("notification pipeline started")
}

// Record queues an event without blocking. It returns false, counting a
// drop, when the queue is full or the pipeline is stopped. An event it
// accepts is always part of the final flush.
func (p *Pipeline) Record(e NotificationEvent) bool {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		return false
	}

	select {
	case p.in <- e:
		p.recorded.Add(1)
		return true
	default:
		n := p.dropped.Add(1)
		p.logger.Warn().Uint64("dropped_total", n).Msg("notification queue full, event dropped")
		return false
	}
}

// ForceFlush flushes everything recorded so far and returns once the
// batch has been handed to delivery.
func (p *Pipeline) ForceFlush() {
	if !p.started.Load() {
		return
	}
	ack := make(chan struct{})
	select {
	case p.flushReq <- ack:
	case <-p.workerDone:
		return
	}
	select {
	case <-ack:
	case <-p.workerDone:
	}
}

// Stop flushes the remaining events, stops the worker and waits for
// pending deliveries to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		// No Record can be mid-send once the lock is held, so the
		// worker's final drain sees every accepted event.
		p.stopMu.Lock()
		p.stopped = true
		close(p.stopCh)
		p.stopMu.Unlock()

		if !p.started.Load() {
			return
		}
		<-p.workerDone
		<-p.deliveryDone

		s := p.Stats()
		p.logger.Info().
			Uint64("recorded", s.Recorded).
			Uint64("delivered", s.Delivered).
			Uint64("dropped", s.Dropped).
			Msg("notification pipeline stopped")
	})
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Recorded:       p.recorded.Load(),
		Dropped:        p.dropped.Load(),
		Batches:        p.batches.Load(),
		BatchesDropped: p.batchesDropped.Load(),
		Delivered:      p.delivered.Load(),
		Failed:         p.failed.Load(),
	}
}

func (p *Pipeline) run() {
	defer close(p.workerDone)
	defer close(p.deliveries)

	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	batch := queue.New()

	for {
		select {
		case e := <-p.in:
			p.add(batch, e, false)

		case <-ticker.C:
			p.flush(batch, false)

		case ack := <-p.flushReq:
			p.drain(batch, false)
			p.flush(batch, false)
			close(ack)

		case <-p.stopCh:
			p.drain(batch, true)
			p.flush(batch, true)
			return
		}
	}
}

// add appends to the batch and flushes it when it is full.
func (p *Pipeline) add(batch *queue.Queue, e NotificationEvent, final bool) {
	batch.Add(e)
	if batch.Length() >= p.opts.BatchSize {
		p.flush(batch, final)
	}
}

// drain moves everything already queued on the input channel into the batch.
func (p *Pipeline) drain(batch *queue.Queue, final bool) {
	for {
		select {
		case e := <-p.in:
			p.add(batch, e, final)
		default:
			return
		}
	}
}

// flush hands the batch to the delivery goroutine. Outside shutdown a full
// delivery queue drops the batch instead of stalling the worker.
func (p *Pipeline) flush(batch *queue.Queue, final bool) {
	if batch.Length() == 0 {
		return
	}

	embeds := make([]connector.Embed, 0, batch.Length())
	for batch.Length() > 0 {
		e := batch.Remove().(NotificationEvent)
		embeds = append(embeds, e.Embed(p.opts.Title))
	}
	p.batches.Add(1)

	if final {
		p.deliveries <- embeds
		return
	}

	select {
	case p.deliveries <- embeds:
	default:
		p.batchesDropped.Add(1)
		p.logger.Warn().Int("events", len(embeds)).Msg("delivery queue full, batch dropped")
	}
}

func (p *Pipeline) deliver() {
	defer close(p.deliveryDone)

	for embeds := range p.deliveries {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.DeliveryTimeout)
		err := p.sink.Deliver(ctx, embeds)
		cancel()

		if err != nil {
			p.failed.Add(1)
			p.logger.Error().Err(err).Int("events", len(embeds)).Msg("failed to deliver notifications")
			continue
		}
		p.delivered.Add(uint64(len(embeds)))
	}
}

// ContactHandler returns an event bus handler that feeds contact events
// through the throttle into the pipeline.
func ContactHandler(p *Pipeline, throttle *Throttle) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		req, ok := events.ContactPayload(event)
		if !ok {
			return nil
		}
		if !throttle.Allow(req) {
			log.Debug().Str("remote", req.Remote()).Str("kind", req.Kind.Name()).Msg("notification throttled")
			return nil
		}
		p.Record(FromRequest(req))
		return nil
	}
}
