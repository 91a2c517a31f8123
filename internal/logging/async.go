package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize bounds the AsyncSink queue when none is configured.
const DefaultQueueSize = 1024

// AccessStore persists access events beside the access log. The sink hands
// it every access event that was queued together as one batch.
type AccessStore interface {
	InsertBatch(ctx context.Context, events []AccessEvent) error
}

// maxStoreBatch bounds how many queued access events share one InsertBatch.
const maxStoreBatch = 256

// AsyncOptions configures an AsyncSink.
type AsyncOptions struct {
	QueueSize int
	Access    *slog.Logger // access-log lines; nil discards
	Incident  *slog.Logger // operational events; nil discards
	Store     AccessStore  // optional
	// OnDrop is called once per record dropped on a full queue.
	OnDrop func()
}

type recordKind int

const (
	kindAccess recordKind = iota
	kindEvent
)

type record struct {
	kind   recordKind
	access AccessEvent
	sev    Severity
	msg    string
	attrs  []slog.Attr
	at     time.Time
}

// AsyncSink queues records and writes them from a single goroutine. Enqueue
// never blocks: when the queue is full the record is dropped and counted.
type AsyncSink struct {
	access   *slog.Logger
	incident *slog.Logger
	store    AccessStore
	onDrop   func()

	queue   chan record
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewAsyncSink starts the writer goroutine. Call Close to drain and stop it.
func NewAsyncSink(opts AsyncOptions) *AsyncSink {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	discard := slog.New(slog.DiscardHandler)
	s := &AsyncSink{
		access:   opts.Access,
		incident: opts.Incident,
		store:    opts.Store,
		onDrop:   opts.OnDrop,
		queue:    make(chan record, size),
		done:     make(chan struct{}),
	}
	if s.access == nil {
		s.access = discard
	}
	if s.incident == nil {
		s.incident = discard
	}
	go s.run()
	return s
}

// RecordAccess enqueues an access event.
func (s *AsyncSink) RecordAccess(ev AccessEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.enqueue(record{kind: kindAccess, access: ev, at: ev.Timestamp})
}

// RecordEvent enqueues an operational event.
func (s *AsyncSink) RecordEvent(sev Severity, msg string, attrs ...slog.Attr) {
	s.enqueue(record{kind: kindEvent, sev: sev, msg: msg, attrs: attrs, at: time.Now()})
}

func (s *AsyncSink) enqueue(r record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop()
		return
	}
	select {
	case s.queue <- r:
	default:
		s.drop()
	}
}

func (s *AsyncSink) drop() {
	s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop()
	}
}

// Dropped returns how many records were lost to a full or closed queue.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Written returns how many records reached the loggers.
func (s *AsyncSink) Written() uint64 {
	return s.written.Load()
}

// run writes records in queue order. After each blocking receive it drains
// whatever else is already queued, then stores the access events from that
// pass in one batch.
func (s *AsyncSink) run() {
	defer close(s.done)
	ctx := context.Background()
	var batch []AccessEvent

	for r := range s.queue {
		batch = s.write(ctx, r, batch)
	drain:
		for len(batch) < maxStoreBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = s.write(ctx, next, batch)
			default:
				break drain
			}
		}
		s.flush(ctx, batch)
		batch = batch[:0]
	}
}

func (s *AsyncSink) write(ctx context.Context, r record, batch []AccessEvent) []AccessEvent {
	defer s.written.Add(1)

	if r.kind == kindEvent {
		rec := slog.NewRecord(r.at, r.sev.Level(), r.msg, 0)
		rec.AddAttrs(r.attrs...)
		if s.incident.Enabled(ctx, rec.Level) {
			_ = s.incident.Handler().Handle(ctx, rec)
		}
		return batch
	}

	rec := slog.NewRecord(r.at, slog.LevelInfo, "access", 0)
	rec.AddAttrs(r.access.Attrs()...)
	if s.access.Enabled(ctx, rec.Level) {
		_ = s.access.Handler().Handle(ctx, rec)
	}
	if s.store != nil {
		batch = append(batch, r.access)
	}
	return batch
}

func (s *AsyncSink) flush(ctx context.Context, batch []AccessEvent) {
	if s.store == nil || len(batch) == 0 {
		return
	}
	if err := s.store.InsertBatch(ctx, batch); err != nil {
		s.incident.LogAttrs(ctx, slog.LevelError, "access store insert failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()))
	}
}

// Close stops accepting records, drains the queue and waits for the writer,
// bounded by ctx.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
