// Package wire defines the on-the-wire representation exchanged between
// Orchestra peers (§3, §6): the fixed-width MessageHeader frame and the
// recursive RelayInstruction tree it carries.
//
// The frame is encoded with msgpack rather than the teacher's
// protobuf-over-gRPC choice, because §4.3 requires a single fixed-size byte
// budget per connection rather than a self-framing RPC stream.
//
// Documentation Last Review: 30.07.2026
package wire

import (
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/fatal"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/xerrors"
)

// PortKind tags a PortValue.
type PortKind uint8

const (
	// KindEmpty is the initial and post-clear state. It is never a
	// legitimate payload.
	KindEmpty PortKind = iota
	KindFile
	KindText
	KindInt
	KindBool
)

// PortValue is the tagged value carried in a port, and the descriptor
// encoded into a MessageHeader's HeaderBytes.
type PortValue struct {
	Kind PortKind
	Path string // KindFile: for a send, basename only; for a receive, absolute path
	Text string
	Int  int32
	Bool bool
}

// File returns a File-tagged PortValue.
func File(path string) PortValue { return PortValue{Kind: KindFile, Path: path} }

// Text returns a Text-tagged PortValue.
func Text(s string) PortValue { return PortValue{Kind: KindText, Text: s} }

// Int returns an Int-tagged PortValue.
func Int(i int32) PortValue { return PortValue{Kind: KindInt, Int: i} }

// Bool returns a Bool-tagged PortValue.
func Bool(b bool) PortValue { return PortValue{Kind: KindBool, Bool: b} }

// Empty is the zero PortValue: never a legitimate payload.
var Empty = PortValue{Kind: KindEmpty}

// IsEmpty reports whether v still holds the initial/cleared state.
func (v PortValue) IsEmpty() bool { return v.Kind == KindEmpty }

// RelayOption is one branch of a RelayInstruction: forward to Destination,
// introducing Sender as the immediate hop, then apply Sub at that hop.
type RelayOption struct {
	Sender      addr.LocationID
	Destination addr.LocationID
	Sub         RelayInstruction
}

// RelayInstruction is the recursive forwarding plan carried in each message
// header. A zero-value RelayInstruction is the End leaf.
type RelayInstruction struct {
	End     bool
	Options []RelayOption
}

// EndInstruction is a leaf: this hop consumes the message locally only.
func EndInstruction() RelayInstruction {
	return RelayInstruction{End: true}
}

// Relay builds a non-leaf instruction from its branch options.
func Relay(options ...RelayOption) RelayInstruction {
	return RelayInstruction{Options: options}
}

// IsEnd reports whether this hop is a leaf.
func (r RelayInstruction) IsEnd() bool {
	return r.End || len(r.Options) == 0
}

// MessageHeader is the fixed-width frame prefixed to every message body
// (§3, §6).
type MessageHeader struct {
	Sender      addr.LocationID
	Origin      addr.LocationID
	MessageID   string
	PayloadSize int64
	Relay       RelayInstruction
	HeaderBytes []byte
}

// Encode serializes h with msgpack and zero-pads the result to exactly
// frameSize bytes. It is fatal (ErrOversizedHeader) if the serialized form
// does not fit.
func Encode(h MessageHeader, frameSize int) ([]byte, error) {
	body, err := msgpack.Marshal(h)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal header: %v", err)
	}

	if len(body) > frameSize {
		return nil, xerrors.Errorf("%w: %d bytes > %d byte frame", fatal.ErrOversizedHeader, len(body), frameSize)
	}

	frame := make([]byte, frameSize)
	copy(frame, body)

	return frame, nil
}

// Decode deserializes a zero-padded frame produced by Encode. Trailing zero
// padding is tolerated by msgpack's length-prefixed encoding, which stops
// reading once the top-level map is complete.
func Decode(frame []byte) (MessageHeader, error) {
	var h MessageHeader

	if err := msgpack.Unmarshal(frame, &h); err != nil {
		return MessageHeader{}, xerrors.Errorf("%w: %v", fatal.ErrHeaderDecode, err)
	}

	return h, nil
}

// EncodePortValue serializes a port descriptor for use as HeaderBytes.
func EncodePortValue(v PortValue) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal port value: %v", err)
	}
	return data, nil
}

// DecodePortValue deserializes a port descriptor previously produced by
// EncodePortValue.
func DecodePortValue(data []byte) (PortValue, error) {
	var v PortValue
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return PortValue{}, xerrors.Errorf("%w: %v", fatal.ErrHeaderDecode, err)
	}
	return v, nil
}
