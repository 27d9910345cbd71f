package queue

import (
	"context"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/metrics"
	"github.com/beingmushfiq/Track-R/parser"
	"go.uber.org/zap"
)

const (
	KindGpsData      = "gps_data"
	KindDeviceStatus = "device_status"

	DefaultBufferSize = 1024
	pushTimeout       = 5 * time.Second
)

type pending struct {
	rec    *parser.Record
	status *DeviceStatusEvent
}

// Async decouples callers from the backend. Pushes return as soon as the item
// is buffered; a single worker forwards items in order. Items are dropped when
// the buffer is full or the backend rejects them.
type Async struct {
	backend Publisher
	log     *zap.Logger
	items   chan pending
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = &Async{}

func NewAsync(backend Publisher, size int, logger *zap.Logger) *Async {
	if size <= 0 {
		size = DefaultBufferSize
	}
	a := &Async{
		backend: backend,
		log:     logger,
		items:   make(chan pending, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) PushGpsData(_ context.Context, rec *parser.Record) error {
	return a.enqueue(pending{rec: rec}, KindGpsData)
}

func (a *Async) PushDeviceStatus(_ context.Context, ev *DeviceStatusEvent) error {
	return a.enqueue(pending{status: ev}, KindDeviceStatus)
}

func (a *Async) enqueue(item pending, kind string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.items <- item:
		return nil
	default:
		metrics.QueueDrops.WithLabelValues(kind).Inc()
		a.log.Warn("queue buffer full, item dropped", zap.String("kind", kind))
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for item := range a.items {
		a.forward(item)
	}
}

func (a *Async) forward(item pending) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	var (
		kind string
		err  error
	)
	if item.rec != nil {
		kind = KindGpsData
		err = a.backend.PushGpsData(ctx, item.rec)
	} else {
		kind = KindDeviceStatus
		err = a.backend.PushDeviceStatus(ctx, item.status)
	}
	if err != nil {
		metrics.QueueFailures.WithLabelValues(kind).Inc()
		a.log.Error("queue push failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	metrics.RecordsQueued.WithLabelValues(kind).Inc()
}

// Close stops accepting items, waits for buffered ones to be forwarded and
// closes the backend.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.items)
	a.mu.Unlock()
	<-a.done
	return a.backend.Close()
}
