// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log. It is the always-on
// sink: even with no audit file configured, decisions are visible
// wherever the daemon's logs go.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink on the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("type", event.Type),
		slog.String("owner_id", event.OwnerID),
		slog.Int("pid", int(event.PID)),
	}
	if event.Decision != "" {
		attrs = append(attrs, slog.String("decision", event.Decision))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Op != "" {
		attrs = append(attrs, slog.String("op", event.Op))
	}
	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", event.Fingerprint))
	}
	if event.ChallengeID != "" {
		attrs = append(attrs, slog.String("challenge_id", event.ChallengeID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.DurationMS > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", event.DurationMS))
	}
	s.logger.Info("audit", attrs...)
	return nil
}

// MultiSink fans one event out to several sinks; the first error is
// returned after every sink has been tried.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder is the request path's view of the audit trail. Record
// never fails: sink errors are logged and counted, because refusing
// to serve when the trail hiccups would turn an IO blip into an
// outage of the control plane itself.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	dropped atomic.Int64

	mu sync.Mutex
}

// NewRecorder wraps a sink.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// Record writes the event, swallowing sink errors.
func (r *Recorder) Record(ctx context.Context, event Event) {
	r.mu.Lock()
	err := r.sink.Record(ctx, event)
	r.mu.Unlock()
	if err != nil {
		r.dropped.Add(1)
		r.logger.Error("audit event dropped",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

// Dropped reports how many events failed to persist since startup.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
