package device

import (
	"context"
	"fmt"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// DefaultTagType is used for tags detected without an explicit type.
const DefaultTagType = "NTAG215"

// Tag is an NFC tag in the reader's field.
type Tag struct {
	UID  string `json:"uid"`
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

func (t Tag) payload() model.Payload {
	return model.Payload{"uid": t.UID, "tagType": t.Type, "data": t.Data}
}

// NFCState is the operational state of an NFC reader.
type NFCState struct {
	Enabled    bool `json:"enabled"`
	TagPresent bool `json:"tagPresent"`
	CurrentTag *Tag `json:"currentTag,omitempty"`
}

// TagResult is returned by ReadTag and WriteTag.
type TagResult struct {
	Completion
	Tag Tag `json:"tag"`
}

// NFCReader simulates a contactless tag reader.
type NFCReader struct {
	*base
	st NFCState
}

// NewNFCReader creates a disconnected, enabled reader with no tag present.
func NewNFCReader(id string, opts ...Option) (*NFCReader, error) {
	b, err := newBase(id, model.NFCReader, opts)
	if err != nil {
		return nil, err
	}
	n := &NFCReader{base: b}
	b.v = n
	n.resetState()
	return n, nil
}

func (n *NFCReader) resetState() {
	n.st = NFCState{Enabled: true}
}

func (n *NFCReader) snapshot() any {
	st := n.st
	if st.CurrentTag != nil {
		tag := *st.CurrentTag
		st.CurrentTag = &tag
	}
	return st
}

// State returns the reader's operational state.
func (n *NFCReader) State() NFCState {
	var st NFCState
	n.read(func() { st = n.snapshot().(NFCState) })
	return st
}

// Enable turns the RF field on.
func (n *NFCReader) Enable(ctx context.Context) (Completion, error) {
	return n.setEnabled(ctx, OpNFCEnable, true, model.EventNFCEnabled)
}

// Disable turns the RF field off. Any tag in the field is forgotten.
func (n *NFCReader) Disable(ctx context.Context) (Completion, error) {
	return n.setEnabled(ctx, OpNFCDisable, false, model.EventNFCDisabled)
}

func (n *NFCReader) setEnabled(ctx context.Context, op string, on bool, name model.EventName) (Completion, error) {
	oc, err := n.begin(op)
	if err != nil {
		return Completion{}, err
	}
	if err := n.await(ctx, oc, op, model.EventNFCError); err != nil {
		return Completion{}, err
	}
	ok := n.commit(oc, op, func() {
		n.st.Enabled = on
		if !on {
			n.st.TagPresent = false
			n.st.CurrentTag = nil
		}
	})
	if !ok {
		return Completion{Stale: true}, nil
	}
	n.emit(name, model.Payload{})
	return Completion{}, nil
}

// present checks that the reader is enabled with a tag in the field.
func (n *NFCReader) present(op string) (Tag, error) {
	var (
		st  NFCState
		tag Tag
	)
	n.read(func() {
		st = n.st
		if n.st.CurrentTag != nil {
			tag = *n.st.CurrentTag
		}
	})
	if !st.Enabled {
		return Tag{}, n.refuse(op, ErrTypeNFCDisabled, model.EventNFCError)
	}
	if !st.TagPresent {
		return Tag{}, n.refuse(op, ErrTypeNoTag, model.EventNFCError)
	}
	return tag, nil
}

// ReadTag reads the tag currently in the field.
func (n *NFCReader) ReadTag(ctx context.Context) (TagResult, error) {
	oc, err := n.begin(OpNFCRead)
	if err != nil {
		return TagResult{}, err
	}
	if _, err := n.present(OpNFCRead); err != nil {
		return TagResult{}, err
	}
	if err := n.await(ctx, oc, OpNFCRead, model.EventNFCError); err != nil {
		return TagResult{}, err
	}

	var tag Tag
	var present bool
	ok := n.commit(oc, OpNFCRead, func() {
		if n.st.CurrentTag != nil {
			tag, present = *n.st.CurrentTag, true
		}
	})
	if !ok {
		return TagResult{Completion: Completion{Stale: true}}, nil
	}
	if !present {
		return TagResult{}, n.refuse(OpNFCRead, ErrTypeNoTag, model.EventNFCError)
	}
	n.emit(model.EventTagRead, tag.payload())
	return TagResult{Tag: tag}, nil
}

// WriteTag stores data on the tag currently in the field.
func (n *NFCReader) WriteTag(ctx context.Context, data string) (TagResult, error) {
	oc, err := n.begin(OpNFCWrite)
	if err != nil {
		return TagResult{}, err
	}
	if _, err := n.present(OpNFCWrite); err != nil {
		return TagResult{}, err
	}
	if err := n.await(ctx, oc, OpNFCWrite, model.EventNFCError); err != nil {
		return TagResult{}, err
	}

	var tag Tag
	var present bool
	ok := n.commit(oc, OpNFCWrite, func() {
		if n.st.CurrentTag != nil {
			n.st.CurrentTag.Data = data
			tag, present = *n.st.CurrentTag, true
		}
	})
	if !ok {
		return TagResult{Completion: Completion{Stale: true}}, nil
	}
	if !present {
		return TagResult{}, n.refuse(OpNFCWrite, ErrTypeNoTag, model.EventNFCError)
	}
	n.emit(model.EventTagWritten, tag.payload())
	return TagResult{Tag: tag}, nil
}

func (n *NFCReader) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "tagDetected", "tapTag":
		// A tag can enter the field of a disabled reader; it just cannot
		// be read until the reader is enabled.
		tag := Tag{
			UID:  stringArg(data, "uid", ""),
			Type: stringArg(data, "type", DefaultTagType),
			Data: stringArg(data, "data", ""),
		}
		if tag.UID == "" {
			tag.UID = n.randomUID()
		}
		n.st.TagPresent = true
		n.st.CurrentTag = &tag
		p := tag.payload()
		p["enabled"] = n.st.Enabled
		return []emission{{model.EventTagDetected, p}}, true
	case "tagRemoved", "removeTag":
		p := model.Payload{}
		if n.st.CurrentTag != nil {
			p["uid"] = n.st.CurrentTag.UID
		}
		n.st.TagPresent = false
		n.st.CurrentTag = nil
		return []emission{{model.EventTagRemoved, p}}, true
	}
	return nil, false
}

func (n *NFCReader) randomUID() string {
	uid := ""
	for i := 0; i < 7; i++ {
		if i > 0 {
			uid += ":"
		}
		uid += fmt.Sprintf("%02X", n.intn(256))
	}
	return uid
}
