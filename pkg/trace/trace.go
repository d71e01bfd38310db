// Package trace CBOR-encodes decoded LINE frames and errors for forwarding
// to an offline inspection sink. This generalizes the teacher's
// writeUARTMessage/writeUARTMessageString CBOR-envelope pattern
// (pkg/service/helpers.go in librescoot-bluetooth-service) from an
// outbound command encoder into an inbound trace encoder. It has nothing
// to do with the LINE wire format itself, which stays the bit-exact byte
// layout from spec.md §3/§6.
package trace

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/linebus/line-core/pkg/transport"
)

// Event is one traced occurrence: either a decoded frame (Kind == "") or an
// error (Kind is the ErrorKind's name).
type Event struct {
	Channel    int    `cbor:"channel"`
	Responding bool   `cbor:"responding"`
	Request    uint16 `cbor:"request"`
	Size       uint8  `cbor:"size,omitempty"`
	Payload    []byte `cbor:"payload,omitempty"`
	Kind       string `cbor:"kind,omitempty"`
}

// NewDataEvent builds the Event for a successfully decoded frame.
func NewDataEvent(channel int, responding bool, request uint16, size uint8, payload []byte) Event {
	return Event{
		Channel:    channel,
		Responding: responding,
		Request:    request,
		Size:       size,
		Payload:    payload,
	}
}

// NewErrorEvent builds the Event for an error callback.
func NewErrorEvent(channel int, responding bool, request uint16, kind transport.ErrorKind) Event {
	return Event{
		Channel:    channel,
		Responding: responding,
		Request:    request,
		Kind:       kind.String(),
	}
}

// EncodeData CBOR-encodes a successfully decoded frame.
func EncodeData(channel int, responding bool, request uint16, size uint8, payload []byte) ([]byte, error) {
	return cbor.Marshal(NewDataEvent(channel, responding, request, size, payload))
}

// EncodeError CBOR-encodes an error callback.
func EncodeError(channel int, responding bool, request uint16, kind transport.ErrorKind) ([]byte, error) {
	return cbor.Marshal(NewErrorEvent(channel, responding, request, kind))
}

// Decode reverses EncodeData/EncodeError for offline tooling.
func Decode(data []byte) (Event, error) {
	var e Event
	err := cbor.Unmarshal(data, &e)
	return e, err
}

// Stamp pairs an Event with a host-assigned Unix-nanosecond timestamp; the
// package itself never calls time.Now (kept out of hot paths), leaving
// stamping to the caller.
type Stamp struct {
	AtUnixNano int64 `cbor:"at"`
	Event      Event `cbor:"event"`
}

// EncodeStamp CBOR-encodes a stamped event for the offline inspection list.
func EncodeStamp(s Stamp) ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeStamp reverses EncodeStamp.
func DecodeStamp(data []byte) (Stamp, error) {
	var s Stamp
	err := cbor.Unmarshal(data, &s)
	return s, err
}
