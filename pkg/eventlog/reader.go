package eventlog

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Filter specifies criteria for reading entries.
// Empty/nil fields match all entries for that criterion.
type Filter struct {
	// DeviceType filters by source type.
	DeviceType model.DeviceType

	// DeviceID filters by exact device ID.
	DeviceID string

	// Name filters by event name.
	Name model.EventName

	// Simulated, when set, keeps only injected (true) or genuine (false)
	// events.
	Simulated *bool

	// TimeStart filters entries at or after this time.
	TimeStart *time.Time

	// TimeEnd filters entries before this time.
	TimeEnd *time.Time
}

// Matches reports whether the entry satisfies every criterion.
func (f *Filter) Matches(e Entry) bool {
	if f.DeviceType != "" && e.DeviceType != f.DeviceType {
		return false
	}
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.Name != "" && e.Name != f.Name {
		return false
	}
	if f.Simulated != nil && e.Simulated != *f.Simulated {
		return false
	}
	if f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams entries from an archive.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens an archive for reading every entry.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens an archive for reading entries matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching entry, or io.EOF at the end.
func (r *Reader) Next() (Entry, error) {
	for {
		var e Entry
		if err := r.decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Entry{}, io.EOF
			}
			return Entry{}, err
		}
		if r.filter.Matches(e) {
			return e, nil
		}
	}
}

// ReadAll returns every remaining matching entry.
func (r *Reader) ReadAll() ([]Entry, error) {
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
