package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/nexuskit/mcp-core/wire"
)

// compressedEnvelope is a self-describing replacement for a raw params/result
// payload once it has been gzip-compressed. Because the in-memory transport
// (transport.ChannelTransport) exchanges *wire.Message values directly rather
// than serialized bytes, this middleware cannot rely on a transport-level
// content-encoding header the way an HTTP or stdio transport would: instead it
// marks compressed payloads in-band so decompression works identically
// regardless of which transport eventually serializes the message.
type compressedEnvelope struct {
	Encoding string `json:"_mcp_compressed"`
	Data     string `json:"_data"`
}

const gzipEncoding = "gzip"

// Compression gzip-compresses params/result payloads larger than MinSize.
// Standard-library compress/gzip is used deliberately: no repo in the
// reference pack imports a third-party general-purpose compression library,
// so there is nothing to ground a dependency choice on here.
type Compression struct {
	Base
	MinSize int
}

func NewCompression(minSize int) *Compression {
	return &Compression{MinSize: minSize}
}

func (c *Compression) Name() string       { return "compression" }
func (c *Compression) Priority() Priority { return PriorityLow }

func (c *Compression) OnRequest(_ context.Context, _ *Context, params *json.RawMessage) error {
	return c.decompressInPlace(params)
}

func (c *Compression) OnResponse(_ context.Context, _ *Context, result *json.RawMessage) error {
	return c.compressInPlace(result)
}

func (c *Compression) compressInPlace(payload *json.RawMessage) error {
	if payload == nil || len(*payload) <= c.MinSize {
		return nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(*payload); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	env := compressedEnvelope{Encoding: gzipEncoding, Data: base64.StdEncoding.EncodeToString(buf.Bytes())}
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	*payload = encoded
	return nil
}

func (c *Compression) decompressInPlace(payload *json.RawMessage) error {
	if payload == nil || len(*payload) == 0 {
		return nil
	}
	var env compressedEnvelope
	if err := json.Unmarshal(*payload, &env); err != nil || env.Encoding == "" {
		return nil
	}
	if env.Encoding != gzipEncoding {
		return wire.NewError(wire.CodeInvalidParams, "unsupported compression encoding: "+env.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return wire.NewError(wire.CodeInvalidParams, "invalid compressed payload: "+err.Error())
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return wire.NewError(wire.CodeInvalidParams, "invalid gzip payload: "+err.Error())
	}
	defer r.Close()
	decoded, err := io.ReadAll(r)
	if err != nil {
		return wire.NewError(wire.CodeInvalidParams, "corrupt gzip payload: "+err.Error())
	}
	*payload = decoded
	return nil
}
