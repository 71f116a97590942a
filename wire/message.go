package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind discriminates the tagged union that a WireMessage is, per spec.md §3.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
	KindBatch
)

// Request is an outbound or inbound JSON-RPC request: it carries an id and a
// method and expects exactly one Response in return.
type Request struct {
	ID     RequestID
	Method string
	Params json.RawMessage
	raw    json.RawMessage
}

// Response is either a success (Result set) or a failure (Err set); never both.
type Response struct {
	ID     RequestID
	Result json.RawMessage
	Err    *Error
	raw    json.RawMessage
}

// Notification is a one-way message: a method with no id.
type Notification struct {
	Method string
	Params json.RawMessage
	raw    json.RawMessage
}

// Message is the tagged union {Request, Response, Notification, Batch}
// described in spec.md §3.
type Message struct {
	Kind         Kind
	Request      *Request
	Response     *Response
	Notification *Notification
	Batch        []*Message
}

func NewRequestMessage(r *Request) *Message           { return &Message{Kind: KindRequest, Request: r} }
func NewResponseMessage(r *Response) *Message         { return &Message{Kind: KindResponse, Response: r} }
func NewNotificationMessage(n *Notification) *Message { return &Message{Kind: KindNotification, Notification: n} }
func NewBatchMessage(msgs []*Message) *Message        { return &Message{Kind: KindBatch, Batch: msgs} }

// Parse decodes bytes into a WireMessage (P1: Parse(Serialize(m)) ≡ m up to
// field ordering). Unknown top-level members on known messages are retained
// in the message's raw form so Serialize can round-trip them (spec.md §4.2).
func Parse(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(CodeParseError, "empty message")
	}

	if trimmed[0] == '[' {
		var rawItems []json.RawMessage
		if err := json.Unmarshal(trimmed, &rawItems); err != nil {
			return nil, NewError(CodeParseError, fmt.Sprintf("invalid batch: %v", err))
		}
		batch := make([]*Message, 0, len(rawItems))
		for _, item := range rawItems {
			m, err := parseSingle(item)
			if err != nil {
				return nil, err
			}
			batch = append(batch, m)
		}
		return NewBatchMessage(batch), nil
	}

	return parseSingle(trimmed)
}

func parseSingle(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, NewError(CodeParseError, "invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, NewError(CodeParseError, "message must be a json object")
	}

	jsonrpc := root.Get("jsonrpc")
	if !jsonrpc.Exists() || jsonrpc.String() != "2.0" {
		return nil, NewError(CodeParseError, `"jsonrpc" must be exactly "2.0"`)
	}

	hasID := root.Get("id").Exists()
	hasMethod := root.Get("method").Exists()

	switch {
	case hasID && hasMethod:
		req := &Request{raw: append(json.RawMessage{}, data...)}
		if err := req.ID.UnmarshalJSON([]byte(root.Get("id").Raw)); err != nil {
			return nil, NewError(CodeInvalidRequest, err.Error())
		}
		req.Method = root.Get("method").String()
		if p := root.Get("params"); p.Exists() {
			req.Params = json.RawMessage(p.Raw)
		}
		return NewRequestMessage(req), nil

	case hasID && !hasMethod:
		resp := &Response{raw: append(json.RawMessage{}, data...)}
		if err := resp.ID.UnmarshalJSON([]byte(root.Get("id").Raw)); err != nil {
			return nil, NewError(CodeInvalidRequest, err.Error())
		}
		hasResult := root.Get("result").Exists()
		hasError := root.Get("error").Exists()
		if hasResult == hasError {
			return nil, NewError(CodeInvalidRequest, "response must have exactly one of result/error")
		}
		if hasResult {
			resp.Result = json.RawMessage(root.Get("result").Raw)
		} else {
			var e Error
			if err := json.Unmarshal([]byte(root.Get("error").Raw), &e); err != nil {
				return nil, NewError(CodeInvalidRequest, fmt.Sprintf("invalid error object: %v", err))
			}
			resp.Err = &e
		}
		return NewResponseMessage(resp), nil

	case hasMethod && !hasID:
		note := &Notification{raw: append(json.RawMessage{}, data...)}
		note.Method = root.Get("method").String()
		if p := root.Get("params"); p.Exists() {
			note.Params = json.RawMessage(p.Raw)
		}
		return NewNotificationMessage(note), nil

	default:
		return nil, NewError(CodeInvalidRequest, "message has neither id nor method")
	}
}

// Serialize encodes a WireMessage back to bytes, preserving unknown fields
// captured at Parse time when present.
func Serialize(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindBatch:
		parts := make([]json.RawMessage, 0, len(m.Batch))
		for _, sub := range m.Batch {
			b, err := Serialize(sub)
			if err != nil {
				return nil, err
			}
			parts = append(parts, b)
		}
		return json.Marshal(parts)

	case KindRequest:
		return serializeRequest(m.Request)

	case KindResponse:
		return serializeResponse(m.Response)

	case KindNotification:
		return serializeNotification(m.Notification)

	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", m.Kind)
	}
}

func serializeRequest(r *Request) ([]byte, error) {
	base := r.raw
	if base == nil {
		base = []byte(`{}`)
	}
	out, err := sjson.SetBytes(append([]byte{}, base...), "jsonrpc", "2.0")
	if err != nil {
		return nil, err
	}
	idBytes, err := r.ID.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "id", idBytes)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "method", r.Method)
	if err != nil {
		return nil, err
	}
	if r.Params != nil {
		out, err = sjson.SetRawBytes(out, "params", r.Params)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func serializeResponse(r *Response) ([]byte, error) {
	base := r.raw
	if base == nil {
		base = []byte(`{}`)
	}
	out, err := sjson.SetBytes(append([]byte{}, base...), "jsonrpc", "2.0")
	if err != nil {
		return nil, err
	}
	idBytes, err := r.ID.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "id", idBytes)
	if err != nil {
		return nil, err
	}
	out, err = sjson.DeleteBytes(out, "result")
	if err != nil {
		return nil, err
	}
	out, err = sjson.DeleteBytes(out, "error")
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		errBytes, err := json.Marshal(r.Err)
		if err != nil {
			return nil, err
		}
		out, err = sjson.SetRawBytes(out, "error", errBytes)
		if err != nil {
			return nil, err
		}
	} else {
		result := r.Result
		if result == nil {
			result = json.RawMessage(`{}`)
		}
		out, err = sjson.SetRawBytes(out, "result", result)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func serializeNotification(n *Notification) ([]byte, error) {
	base := n.raw
	if base == nil {
		base = []byte(`{}`)
	}
	out, err := sjson.SetBytes(append([]byte{}, base...), "jsonrpc", "2.0")
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "method", n.Method)
	if err != nil {
		return nil, err
	}
	if n.Params != nil {
		out, err = sjson.SetRawBytes(out, "params", n.Params)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
