// Package installer runs the concurrent fetch-verify-extract pipeline: a
// worker pool that downloads, verifies and extracts one archive per task,
// funnels worker log records through a single aggregator, and classifies
// infrastructure failures into the qterr taxonomy.
package installer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogRecord is one structured log event produced by a worker. Ownership
// transfers to the sink on enqueue; the listener alone consumes records.
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Source  string // worker identity, e.g. the package name
	Message string
	Attrs   []slog.Attr

	sentinel bool
}

// LogSink is the multi-producer single-consumer aggregation point for
// worker log records. Records from a single worker arrive in that worker's
// emission order; no order is guaranteed across workers.
type LogSink struct {
	ch       chan LogRecord
	done     chan struct{}
	logger   *slog.Logger
	stopOnce sync.Once
}

// NewLogSink creates a sink that replays records through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		ch:     make(chan LogRecord, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the listener goroutine. It drains the channel until the
// sentinel is observed, then exits.
func (s *LogSink) Start() {
	go func() {
		defer close(s.done)
		for rec := range s.ch {
			if rec.sentinel {
				return
			}
			attrs := make([]slog.Attr, 0, len(rec.Attrs)+1)
			attrs = append(attrs, slog.String("worker", rec.Source))
			attrs = append(attrs, rec.Attrs...)
			s.logger.LogAttrs(context.Background(), rec.Level, rec.Message, attrs...)
		}
	}()
}

// Enqueue submits a record from any worker.
func (s *LogSink) Enqueue(rec LogRecord) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	s.ch <- rec
}

// Stop enqueues the sentinel and waits for the listener to drain every
// record submitted before it. Safe to call more than once; only the first
// call has effect.
func (s *LogSink) Stop() {
	s.stopOnce.Do(func() {
		s.ch <- LogRecord{sentinel: true}
		<-s.done
	})
}

// WorkerLogger returns a slog.Logger whose records are routed through the
// sink under the given source name. Workers log through this instead of the
// process-wide pipeline.
func (s *LogSink) WorkerLogger(source string) *slog.Logger {
	return slog.New(&sinkHandler{sink: s, source: source})
}

// sinkHandler adapts the sink to slog.Handler so that workers, the fetch
// client, and the retry combinators all log through the shared channel.
type sinkHandler struct {
	sink   *LogSink
	source string
	attrs  []slog.Attr
}

func (h *sinkHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *sinkHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	h.sink.Enqueue(LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Source:  h.source,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &sinkHandler{sink: h.sink, source: h.source, attrs: merged}
}

func (h *sinkHandler) WithGroup(_ string) slog.Handler { return h }
