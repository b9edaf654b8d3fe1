package dist

import (
	"fmt"

	"github.com/chazu/kuro/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so identical modules encode to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Module images
// ---------------------------------------------------------------------------

// MarshalModule serializes a compiled module function to CBOR bytes.
func MarshalModule(fn *vm.Function, hash [32]byte) ([]byte, error) {
	img, err := EncodeFunction(fn)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(&ModuleImage{
		Version: ImageVersion,
		Hash:    hash,
		Module:  *img,
	})
}

// UnmarshalModuleImage decodes the image without materializing functions.
func UnmarshalModuleImage(data []byte) (*ModuleImage, error) {
	var img ModuleImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("dist: unmarshal module: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("dist: module image version %d, want %d", img.Version, ImageVersion)
	}
	return &img, nil
}

// UnmarshalModule deserializes a module image and rebuilds its functions on
// heap. It returns the module function and the source hash recorded in the
// image.
func UnmarshalModule(data []byte, heap *vm.Heap) (*vm.Function, [32]byte, error) {
	img, err := UnmarshalModuleImage(data)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if img.Module.Name != nil {
		return nil, [32]byte{}, fmt.Errorf("dist: image root is function %q, not a module", *img.Module.Name)
	}
	fn, err := DecodeFunction(&img.Module, heap)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return fn, img.Hash, nil
}

// ---------------------------------------------------------------------------
// Compile service messages
// ---------------------------------------------------------------------------

// CompileRequest asks a compile service to compile one source text.
type CompileRequest struct {
	Name        string `cbor:"1,keyasint,omitempty" json:"name,omitempty"`
	Source      string `cbor:"2,keyasint" json:"source"`
	Disassemble bool   `cbor:"3,keyasint,omitempty" json:"disassemble,omitempty"`
}

// Diagnostic is the wire form of a compiler diagnostic.
type Diagnostic struct {
	Line    int    `cbor:"1,keyasint" json:"line"`
	Lexeme  string `cbor:"2,keyasint,omitempty" json:"lexeme,omitempty"`
	AtEnd   bool   `cbor:"3,keyasint,omitempty" json:"atEnd,omitempty"`
	Kind    string `cbor:"4,keyasint" json:"kind"`
	Message string `cbor:"5,keyasint" json:"message"`
	Text    string `cbor:"6,keyasint" json:"text"`
}

// CompileResponse carries the outcome of a CompileRequest. Image is set
// only when OK is true.
type CompileResponse struct {
	ID          string       `cbor:"1,keyasint" json:"id"`
	OK          bool         `cbor:"2,keyasint" json:"ok"`
	Diagnostics []Diagnostic `cbor:"3,keyasint,omitempty" json:"diagnostics,omitempty"`
	Image       []byte       `cbor:"4,keyasint,omitempty" json:"image,omitempty"`
	Hash        [32]byte     `cbor:"5,keyasint" json:"-"`
	Disassembly string       `cbor:"6,keyasint,omitempty" json:"disassembly,omitempty"`
}

// Marshal serializes any dist message with the canonical encoder.
func Marshal(v interface{}) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("dist: unmarshal %T: %w", v, err)
	}
	return nil
}

// MarshalCompileRequest serializes a CompileRequest to CBOR bytes.
func MarshalCompileRequest(r *CompileRequest) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalCompileRequest deserializes a CompileRequest from CBOR bytes.
func UnmarshalCompileRequest(data []byte) (*CompileRequest, error) {
	var r CompileRequest
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal compile request: %w", err)
	}
	return &r, nil
}

// MarshalCompileResponse serializes a CompileResponse to CBOR bytes.
func MarshalCompileResponse(r *CompileResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalCompileResponse deserializes a CompileResponse from CBOR bytes.
func UnmarshalCompileResponse(data []byte) (*CompileResponse, error) {
	var r CompileResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal compile response: %w", err)
	}
	return &r, nil
}
