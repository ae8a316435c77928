package audit

import "context"

// Recorder is the sink audit events flow into. Implementations must
// treat recording as best effort and never propagate sink failures to
// the caller's critical path; Record's error exists for tests and for
// MultiRecorder's bookkeeping.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Reader lists recorded events, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, event Event) error { return nil }

// Close implements Recorder.
func (NopRecorder) Close() error { return nil }

// MultiRecorder fans events out to several sinks. A failing sink does
// not stop delivery to the others; the first error is returned after
// all sinks were attempted.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder builds a fan-out over the given sinks.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record implements Recorder.
func (m *MultiRecorder) Record(ctx context.Context, event Event) error {
	var first error
	for _, r := range m.recorders {
		if err := r.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink, returning the first failure.
func (m *MultiRecorder) Close() error {
	var first error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
