package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"

	"github.com/chazu/kuro/vm/dist"
)

// The compile service messages are plain Go structs, not protobuf, so
// both transports get explicit codecs. Each codec satisfies
// connect.Codec and grpc's encoding.Codec, which share a method set.

const (
	cborCodecName = "cbor"
	jsonCodecName = "json"
)

// cborCodec encodes messages with the canonical CBOR mode used for module
// images.
type cborCodec struct{}

func (cborCodec) Name() string { return cborCodecName }

func (cborCodec) Marshal(v any) ([]byte, error) { return dist.Marshal(v) }

func (cborCodec) Unmarshal(data []byte, v any) error { return dist.Unmarshal(data, v) }

// jsonCodec replaces Connect's protojson codec for HTTP/JSON callers.
type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(cborCodec{})
}
