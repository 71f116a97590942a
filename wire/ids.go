// Package wire implements the JSON-RPC 2.0 envelope, the MCP method
// catalogue, and the content union types exchanged on the wire. It has no
// knowledge of transports, sessions, or handlers: it only parses and
// serializes messages.
package wire

import (
	"encoding/json"
	"fmt"
)

// RequestID is either a 64-bit integer or a string, per JSON-RPC 2.0.
// The zero value is the integer id 0; use NewIntID/NewStringID.
type RequestID struct {
	str    string
	num    int64
	isStr  bool
	isNull bool
}

// NewIntID builds an integer RequestID.
func NewIntID(n int64) RequestID { return RequestID{num: n} }

// NewStringID builds a string RequestID. The literal "0" is a valid string id,
// distinct from the integer id 0.
func NewStringID(s string) RequestID { return RequestID{str: s, isStr: true} }

// NullID represents the id:null used by parse-level error responses.
func NullID() RequestID { return RequestID{isNull: true} }

func (r RequestID) IsNull() bool { return r.isNull }
func (r RequestID) IsString() bool { return r.isStr }
func (r RequestID) String() string {
	if r.isNull {
		return "<null>"
	}
	if r.isStr {
		return r.str
	}
	return fmt.Sprintf("%d", r.num)
}

// Key returns a string suitable for use as a map key that distinguishes the
// id's underlying JSON type as well as its value, mirroring ProgressToken.Key.
func (r RequestID) Key() string {
	if r.isNull {
		return "n:"
	}
	if r.isStr {
		return "s:" + r.str
	}
	return fmt.Sprintf("i:%d", r.num)
}

// Equal reports whether two ids refer to the same request. Ids of different
// underlying kinds (string "5" vs integer 5) are never equal: the wire model
// preserves the JSON type distinction JSON-RPC itself makes.
func (r RequestID) Equal(o RequestID) bool {
	if r.isNull || o.isNull {
		return r.isNull == o.isNull
	}
	if r.isStr != o.isStr {
		return false
	}
	if r.isStr {
		return r.str == o.str
	}
	return r.num == o.num
}

func (r RequestID) MarshalJSON() ([]byte, error) {
	if r.isNull {
		return []byte("null"), nil
	}
	if r.isStr {
		return json.Marshal(r.str)
	}
	return json.Marshal(r.num)
}

func (r *RequestID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = RequestID{isNull: true}
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*r = RequestID{num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RequestID{str: s, isStr: true}
		return nil
	}
	return fmt.Errorf("wire: request id must be a string, integer, or null, got %s", b)
}

// ProgressToken is either a string or an integer, chosen by the request
// originator. §9 Open Questions: both forms are accepted; no cross-type
// coercion is performed between them (see SPEC_FULL.md §7.1).
type ProgressToken struct {
	str   string
	num   int64
	isStr bool
	isSet bool
}

func NewIntProgressToken(n int64) ProgressToken { return ProgressToken{num: n, isSet: true} }
func NewStringProgressToken(s string) ProgressToken {
	return ProgressToken{str: s, isStr: true, isSet: true}
}

func (p ProgressToken) IsSet() bool { return p.isSet }

// Key returns a string suitable for use as a map key that distinguishes the
// token's underlying JSON type as well as its value.
func (p ProgressToken) Key() string {
	if !p.isSet {
		return ""
	}
	if p.isStr {
		return "s:" + p.str
	}
	return fmt.Sprintf("i:%d", p.num)
}

func (p ProgressToken) MarshalJSON() ([]byte, error) {
	if !p.isSet {
		return []byte("null"), nil
	}
	if p.isStr {
		return json.Marshal(p.str)
	}
	return json.Marshal(p.num)
}

func (p *ProgressToken) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ProgressToken{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*p = ProgressToken{num: n, isSet: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = ProgressToken{str: s, isStr: true, isSet: true}
		return nil
	}
	return fmt.Errorf("wire: progress token must be a string or integer, got %s", b)
}
