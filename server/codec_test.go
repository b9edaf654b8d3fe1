package server

import (
	"reflect"
	"testing"

	"google.golang.org/grpc/encoding"

	"github.com/chazu/kuro/vm/dist"
)

func TestCodecs_RoundTrip(t *testing.T) {
	msg := &dist.CompileResponse{
		ID: "compile_x",
		OK: false,
		Diagnostics: []dist.Diagnostic{
			{Line: 3, Lexeme: "x", Kind: "binding", Message: "m", Text: "t"},
		},
	}

	for _, codec := range []interface {
		Name() string
		Marshal(any) ([]byte, error)
		Unmarshal([]byte, any) error
	}{cborCodec{}, jsonCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(msg)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got dist.CompileResponse
			if err := codec.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(&got, msg) {
				t.Errorf("got %+v, want %+v", got, msg)
			}
		})
	}
}

func TestCBORCodecRegistered(t *testing.T) {
	if c := encoding.GetCodec(cborCodecName); c == nil {
		t.Error("cbor codec should be registered with grpc")
	}
}
