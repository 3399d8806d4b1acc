package message

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// HeaderSize is the fixed length of the frame header in bytes.
const HeaderSize = 8

// Frame is one decoded protocol message: a typed header plus a raw JSON
// payload. The framer never inspects the payload.
type Frame struct {
	EventType EventType
	Flags     uint16
	RequestID uint32
	Payload   json.RawMessage
}

// Encode serializes the frame into a single wire message.
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(f.EventType))
	binary.LittleEndian.PutUint16(buf[2:4], f.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], f.RequestID)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// DecodeFrame splits a wire message into header and payload.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("frame too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}
	return Frame{
		EventType: EventType(binary.LittleEndian.Uint16(data[0:2])),
		Flags:     binary.LittleEndian.Uint16(data[2:4]),
		RequestID: binary.LittleEndian.Uint32(data[4:8]),
		Payload:   json.RawMessage(data[HeaderSize:]),
	}, nil
}

// NewFrame marshals a payload struct into a frame for the given event type
// and request id.
func NewFrame(eventType EventType, requestID uint32, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Frame{EventType: eventType, RequestID: requestID, Payload: data}, nil
}

// MustFrame is NewFrame for payloads that cannot fail to marshal
// (plain structs with no custom marshalers). It panics on error and is
// intended for server-constructed messages.
func MustFrame(eventType EventType, requestID uint32, payload any) Frame {
	f, err := NewFrame(eventType, requestID, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// Into unmarshals the frame payload into a payload struct.
func (f Frame) Into(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", f.EventType, err)
	}
	return nil
}
