package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Inbound frame types.
const (
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
	TypeChat      = "chat"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

// Frame is a validated inbound frame. Message is only set for chat.
type Frame struct {
	Type    string
	RoomID  string
	Message string
}

type inboundFrame struct {
	Type    string          `json:"type"`
	RoomID  json.RawMessage `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

// outboundFrame is the only frame the engine ever writes.
type outboundFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ParseFrame decodes and validates one client frame.
func ParseFrame(raw []byte) (Frame, error) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch in.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeChat:
	case "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrame, in.Type)
	}

	room, err := roomKey(in.RoomID)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Type: in.Type, RoomID: room}
	if f.Type != TypeChat {
		return f, nil
	}

	f.Message, err = messageText(in.Message)
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

// roomKey accepts a non-empty string or an integer; clients that store room
// ids as numbers send them unquoted. Numeric rooms can be joined, but the
// Postgres log keys rooms by UUID, so chats into them fail Append with
// store.ErrUnknownRoom and are never broadcast.
func roomKey(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing roomId", ErrMalformedFrame)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", fmt.Errorf("%w: bad roomId", ErrMalformedFrame)
		}
		return s, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: roomId must be a string or integer", ErrMalformedFrame)
	}
	return strconv.FormatInt(n, 10), nil
}

// messageText returns the opaque payload. A JSON string, empty included, is
// taken verbatim; any other JSON value is kept as its compacted text.
func messageText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing message", ErrMalformedFrame)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: bad message", ErrMalformedFrame)
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return buf.String(), nil
}

func encodeChat(roomID, message string) ([]byte, error) {
	return json.Marshal(outboundFrame{Type: TypeChat, RoomID: roomID, Message: message})
}
