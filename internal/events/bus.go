// Package events fans settlement events out to sinks: an in-memory ring for recent history,
// a Postgres journal, a Redis channel and websocket subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoPolymarket/intentgate/internal/model"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
	"github.com/GoPolymarket/intentgate/internal/pkg/metrics"
)

// Publisher is implemented by Bus; domain packages depend on this rather than the bus.
type Publisher interface {
	Publish(name string, payload any)
}

// Sink receives every event in publication order.
type Sink interface {
	Name() string
	Write(ctx context.Context, evt *model.Event) error
}

// Bus accepts events without blocking the caller and delivers them to sinks from one goroutine.
type Bus struct {
	ch     chan *model.Event
	ring   *ring
	sinks  []Sink
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewBus(bufferSize int, log *slog.Logger, sinks ...Sink) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	b := &Bus{
		ch:     make(chan *model.Event, bufferSize),
		ring:   newRing(bufferSize),
		sinks:  sinks,
		logger: logger.Component(log, "events"),
		done:   make(chan struct{}),
	}
	go b.process()
	return b
}

func (b *Bus) Publish(name string, payload any) {
	evt := &model.Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	b.ring.Add(evt)
	metrics.EventsPublished.WithLabelValues(name, "ring").Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- evt:
	default:
		// Dropping keeps settlement latency independent of slow sinks.
		b.logger.Warn("event buffer full, dropping event", "event", name, "id", evt.ID)
	}
}

// Recent returns the newest events first, optionally filtered by name.
func (b *Bus) Recent(name string, limit int) []*model.Event {
	return b.ring.List(name, limit)
}

func (b *Bus) process() {
	defer close(b.done)
	for evt := range b.ch {
		for _, sink := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := sink.Write(ctx, evt)
			cancel()
			if err != nil {
				b.logger.Error("sink write failed", "sink", sink.Name(), "event", evt.Name, "error", err)
				continue
			}
			metrics.EventsPublished.WithLabelValues(evt.Name, sink.Name()).Inc()
		}
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()
	<-b.done
}

type ring struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.Event
	nextIndex int
}

func newRing(maxSize int) *ring {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ring{
		maxSize: maxSize,
		records: make([]*model.Event, 0, maxSize),
	}
}

func (r *ring) Add(evt *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) < r.maxSize {
		r.records = append(r.records, evt)
		return
	}
	r.records[r.nextIndex] = evt
	r.nextIndex = (r.nextIndex + 1) % r.maxSize
}

func (r *ring) List(name string, limit int) []*model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.maxSize {
		limit = r.maxSize
	}
	results := make([]*model.Event, 0, limit)
	total := len(r.records)
	for i := 0; i < total; i++ {
		idx := (r.nextIndex + total - 1 - i) % total
		evt := r.records[idx]
		if evt == nil {
			continue
		}
		if name != "" && evt.Name != name {
			continue
		}
		results = append(results, evt)
		if len(results) >= limit {
			break
		}
	}
	return results
}
