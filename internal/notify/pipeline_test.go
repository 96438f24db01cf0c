package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"go.uber.org/goleak"

	"github.com/lure-project/lure/internal/connector"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/ping"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]connector.Embed
	ch      chan []connector.Embed
	err     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan []connector.Embed, 16)}
}

func (s *fakeSink) Deliver(_ context.Context, embeds []connector.Embed) error {
	s.mu.Lock()
	s.batches = append(s.batches, embeds)
	s.mu.Unlock()
	s.ch <- embeds
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *fakeSink) next(t *testing.T) []connector.Embed {
	t.Helper()
	select {
	case b := <-s.ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
		return nil
	}
}

func numbered(i int) NotificationEvent {
	return NotificationEvent{
		RemoteAddress: fmt.Sprintf("192.0.2.%d:25565", i),
		Summary:       fmt.Sprintf("event %d", i),
		Color:         ColorModern.Int(),
	}
}

func TestBatchFlushesAtSize(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, Options{BatchSize: 10, FlushInterval: time.Hour})
	p.Start()
	defer p.Stop()

	for i := 0; i < 9; i++ {
		if !p.Record(numbered(i)) {
			t.Fatalf("record %d rejected", i)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Fatalf("%d batches delivered before the batch was full", n)
	}

	p.Record(numbered(9))
	batch := sink.next(t)
	if len(batch) != 10 {
		t.Fatalf("batch of %d, want 10", len(batch))
	}
	for i, embed := range batch {
		if want := numbered(i).Embed(DefaultTitle); embed != want {
			t.Fatalf("embed %d = %+v, want %+v", i, embed, want)
		}
	}
}

func TestTickerFlushesPartialBatch(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, Options{BatchSize: 10, FlushInterval: 20 * time.Millisecond})
	p.Start()
	defer p.Stop()

	p.Record(numbered(1))
	p.Record(numbered(2))

	if batch := sink.next(t); len(batch) != 2 {
		t.Fatalf("batch of %d, want 2", len(batch))
	}
}

func TestForceFlushAndStop(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, Options{BatchSize: 10, FlushInterval: time.Hour})
	p.Start()

	p.Record(numbered(1))
	p.ForceFlush()
	if batch := sink.next(t); len(batch) != 1 {
		t.Fatalf("forced batch of %d, want 1", len(batch))
	}

	// Nothing pending: no empty batch is sent.
	p.ForceFlush()

	p.Record(numbered(2))
	p.Record(numbered(3))
	p.Stop()

	if batch := sink.next(t); len(batch) != 2 {
		t.Fatalf("final batch of %d, want 2", len(batch))
	}
	if n := sink.count(); n != 2 {
		t.Fatalf("%d batches, want 2", n)
	}

	want := Stats{Recorded: 3, Batches: 2, Delivered: 3}
	if diff := deep.Equal(p.Stats(), want); diff != nil {
		t.Fatal(diff)
	}

	if p.Record(numbered(4)) {
		t.Fatal("record accepted after stop")
	}
	p.ForceFlush()
	p.Stop()
}

type countingSink struct {
	mu     sync.Mutex
	events int
}

func (s *countingSink) Deliver(_ context.Context, embeds []connector.Embed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events += len(embeds)
	return nil
}

func TestRecordRacingStopLosesNothing(t *testing.T) {
	for round := 0; round < 50; round++ {
		sink := &countingSink{}
		p := NewPipeline(sink, Options{BatchSize: 8, FlushInterval: time.Hour, QueueSize: 64, DeliveryQueue: 4})
		p.Start()

		const writers, perWriter = 4, 100
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					p.Record(numbered(i))
				}
			}()
		}
		p.Stop()
		wg.Wait()

		s := p.Stats()
		if s.Recorded+s.Dropped != writers*perWriter {
			t.Fatalf("round %d: recorded %d + dropped %d, want %d", round, s.Recorded, s.Dropped, writers*perWriter)
		}
		// Batches dropped on a full delivery queue are the only other loss.
		sink.mu.Lock()
		delivered := sink.events
		sink.mu.Unlock()
		if s.BatchesDropped == 0 && uint64(delivered) != s.Recorded {
			t.Fatalf("round %d: delivered %d of %d accepted events", round, delivered, s.Recorded)
		}
		if uint64(delivered) != s.Delivered {
			t.Fatalf("round %d: sink saw %d, stats say %d", round, delivered, s.Delivered)
		}
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, Options{QueueSize: 2})

	// Not started: nothing drains the queue.
	if !p.Record(numbered(1)) || !p.Record(numbered(2)) {
		t.Fatal("queue rejected events below capacity")
	}
	if p.Record(numbered(3)) {
		t.Fatal("queue accepted event above capacity")
	}
	if s := p.Stats(); s.Dropped != 1 || s.Recorded != 2 {
		t.Fatalf("stats %+v", s)
	}
	p.Stop()
}

func TestDeliveryFailureDropsBatch(t *testing.T) {
	sink := newFakeSink()
	sink.err = fmt.Errorf("%w: status 500", connector.ErrDelivery)
	p := NewPipeline(sink, Options{BatchSize: 1, FlushInterval: time.Hour})
	p.Start()

	p.Record(numbered(1))
	sink.next(t)
	p.Record(numbered(2))
	sink.next(t)
	p.Stop()

	s := p.Stats()
	if s.Failed != 2 || s.Delivered != 0 {
		t.Fatalf("stats %+v", s)
	}
	if !errors.Is(sink.err, connector.ErrDelivery) {
		t.Fatal("sink error lost its sentinel")
	}
}

func TestStopWithoutStart(t *testing.T) {
	p := NewPipeline(newFakeSink(), Options{})
	p.ForceFlush()
	p.Stop()
	p.Stop()
}

func TestContactHandlerThrottles(t *testing.T) {
	sink := newFakeSink()
	p := NewPipeline(sink, Options{BatchSize: 10, FlushInterval: time.Hour})
	p.Start()

	handler := ContactHandler(p, NewThrottle(time.Hour))
	addr := &net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 50000}
	modern := ping.NewRequest(addr, ping.ModernPing{})
	legacy := ping.NewRequest(addr, ping.LegacyPing{})

	ctx := context.Background()
	for _, req := range []ping.Request{modern, modern, legacy, modern} {
		if err := handler(ctx, events.NewContactEvent("test", req)); err != nil {
			t.Fatal(err)
		}
	}
	if err := handler(ctx, events.Event{Type: events.EventShutdown}); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	batch := sink.next(t)
	if len(batch) != 2 {
		t.Fatalf("batch of %d, want 2 after throttling", len(batch))
	}
	if batch[0].Color != ColorModern.Int() || batch[1].Color != ColorLegacy.Int() {
		t.Fatalf("colors %06x %06x", batch[0].Color, batch[1].Color)
	}
}
