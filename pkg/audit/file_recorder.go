package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileRecorder appends events as JSON lines. Suitable for shipping the
// trail to an external log pipeline.
type FileRecorder struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewFileRecorder opens (or creates) the file in append mode.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileRecorder{w: f, closer: f}, nil
}

// NewWriterRecorder records to an arbitrary writer. The caller keeps
// ownership of the writer.
func NewWriterRecorder(w io.Writer) *FileRecorder {
	return &FileRecorder{w: w}
}

// Record implements Recorder.
func (r *FileRecorder) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(line); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close implements Recorder.
func (r *FileRecorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
