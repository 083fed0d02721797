package hints

import (
	"encoding/json"
	"fmt"
)

// MessageTypeRenderHints is the envelope type of render hint requests and
// replies.
const MessageTypeRenderHints = "render_hints"

// envelope is the outer shape shared by every message on the channel.
type envelope struct {
	Type       string          `json:"type"`
	Subscriber json.RawMessage `json:"subscriber,omitempty"`
}

// Hint is one entry of an outbound request.
type Hint struct {
	TrackSID        string     `json:"track_sid"`
	Enabled         *bool      `json:"enabled,omitempty"`
	RenderDimension *Dimension `json:"render_dimension,omitempty"`
}

// Request is the subscriber payload of an outbound render_hints message.
type Request struct {
	ID    uint32 `json:"id"`
	Hints []Hint `json:"hints"`
}

// Result is one entry of a render_hints reply.
type Result struct {
	TrackSID string     `json:"track_sid"`
	Result   ResultCode `json:"result"`
}

// Reply is the subscriber payload of an inbound render_hints message.
type Reply struct {
	ID    uint32   `json:"id"`
	Hints []Result `json:"hints"`
}

// EncodeRequest encodes req as a render_hints message.
func EncodeRequest(req Request) ([]byte, error) {
	if req.Hints == nil {
		req.Hints = []Hint{}
	}
	return encode(req)
}

// EncodeReply encodes rep as a render_hints message.
func EncodeReply(rep Reply) ([]byte, error) {
	if rep.Hints == nil {
		rep.Hints = []Result{}
	}
	return encode(rep)
}

func encode(subscriber interface{}) ([]byte, error) {
	payload, err := json.Marshal(subscriber)
	if err != nil {
		return nil, fmt.Errorf("hints: encode subscriber: %w", err)
	}
	return json.Marshal(envelope{Type: MessageTypeRenderHints, Subscriber: payload})
}

// MessageType returns the envelope type of data.
func MessageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return env.Type, nil
}

// DecodeRequest decodes a render_hints request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := decode(data, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeReply decodes a render_hints reply.
func DecodeReply(data []byte) (Reply, error) {
	var rep Reply
	if err := decode(data, &rep); err != nil {
		return Reply{}, err
	}
	return rep, nil
}

func decode(data []byte, subscriber interface{}) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type != MessageTypeRenderHints {
		return fmt.Errorf("%w: %q", ErrUnexpectedType, env.Type)
	}
	if len(env.Subscriber) == 0 {
		return fmt.Errorf("%w: missing subscriber", ErrMalformedMessage)
	}
	if err := json.Unmarshal(env.Subscriber, subscriber); err != nil {
		return fmt.Errorf("%w: subscriber: %v", ErrMalformedMessage, err)
	}
	return nil
}
