package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Outcome classifies the result of an audited operation.
type Outcome string

const (
	// OutcomeSuccess records a completed operation.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure records a failed or denied operation.
	OutcomeFailure Outcome = "failure"
	// OutcomeInitiated records a sensitive operation before dispatch.
	OutcomeInitiated Outcome = "initiated"
)

// Entry is the canonical audit event model.
type Entry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Outcome   Outcome           `json:"outcome"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives emitted audit entries.
type Sink interface {
	Emit(ctx context.Context, entry Entry)
}

// NoOpSink drops audit entries.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Entry) {}

// ChannelSink writes audit entries into a buffered channel.
type ChannelSink struct {
	entries chan Entry
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan Entry, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, entry Entry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Entries() <-chan Entry {
	return s.entries
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, entry Entry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// FanoutSink emits to every child sink in order.
type FanoutSink struct {
	sinks []Sink
}

func NewFanoutSink(sinks ...Sink) *FanoutSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &FanoutSink{sinks: kept}
}

func (s *FanoutSink) Emit(ctx context.Context, entry Entry) {
	for _, child := range s.sinks {
		child.Emit(ctx, entry)
	}
}
