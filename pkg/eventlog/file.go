package eventlog

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// FileRecorder appends events to a CBOR archive.
// It is safe for concurrent use from multiple goroutines.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	written int
}

// NewFileRecorder opens (or creates) the archive at path. Existing entries
// are kept and new ones appended.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Record writes the event to the archive.
func (r *FileRecorder) Record(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	// Archiving must not disrupt the simulation.
	if err := r.encoder.Encode(FromEvent(e)); err == nil {
		r.written++
	}
}

// Written returns the number of entries written since opening.
func (r *FileRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close closes the archive. Later Record calls are ignored.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.file.Close()
}
