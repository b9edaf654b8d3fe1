// Package dist defines the serialized forms of compiled Kuro code: module
// images that can be cached or shipped between processes, and the
// compile request/response messages used by the compile service. All
// encodings are canonical CBOR.
package dist

import (
	"fmt"

	"github.com/chazu/kuro/vm"
)

// ImageVersion is bumped whenever the image layout or opcode numbering
// changes incompatibly.
const ImageVersion = 1

// ConstantKind tags a constant pool entry.
type ConstantKind uint8

const (
	ConstNone     ConstantKind = 0
	ConstBool     ConstantKind = 1
	ConstInteger  ConstantKind = 2
	ConstFloat    ConstantKind = 3
	ConstString   ConstantKind = 4
	ConstFunction ConstantKind = 5
)

// Constant is one serialized constant pool entry.
type Constant struct {
	Kind     ConstantKind   `cbor:"1,keyasint"`
	Bool     bool           `cbor:"2,keyasint,omitempty"`
	Integer  int64          `cbor:"3,keyasint,omitempty"`
	Float    float64        `cbor:"4,keyasint,omitempty"`
	String   string         `cbor:"5,keyasint,omitempty"`
	Function *FunctionImage `cbor:"6,keyasint,omitempty"`
}

// LineRun mirrors vm.LineRun.
type LineRun struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

// FunctionImage is a compiled function with its nested functions inlined
// in the constant pool. A nil Name marks the module function.
type FunctionImage struct {
	Name         *string    `cbor:"1,keyasint,omitempty"`
	Arity        int        `cbor:"2,keyasint"`
	UpvalueCount int        `cbor:"3,keyasint"`
	Code         []byte     `cbor:"4,keyasint"`
	Lines        []LineRun  `cbor:"5,keyasint,omitempty"`
	Constants    []Constant `cbor:"6,keyasint,omitempty"`
}

// ModuleImage is the top-level serialized form of a compiled module.
type ModuleImage struct {
	Version uint8         `cbor:"1,keyasint"`
	Hash    [32]byte      `cbor:"2,keyasint"`
	Module  FunctionImage `cbor:"3,keyasint"`
}

// EncodeFunction converts fn into its image form.
func EncodeFunction(fn *vm.Function) (*FunctionImage, error) {
	img := &FunctionImage{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         append([]byte(nil), fn.Chunk.Code...),
	}
	if fn.Name != nil {
		name := fn.Name.Chars
		img.Name = &name
	}
	for _, run := range fn.Chunk.Lines {
		img.Lines = append(img.Lines, LineRun{Offset: int(run.Offset), Line: run.Line})
	}
	for i, c := range fn.Chunk.Constants {
		ec, err := encodeConstant(c)
		if err != nil {
			return nil, fmt.Errorf("dist: %s constant %d: %w", fn.DisplayName(), i, err)
		}
		img.Constants = append(img.Constants, ec)
	}
	return img, nil
}

func encodeConstant(v vm.Value) (Constant, error) {
	switch v.Kind() {
	case vm.KindNone:
		return Constant{Kind: ConstNone}, nil
	case vm.KindBool:
		return Constant{Kind: ConstBool, Bool: v.AsBool()}, nil
	case vm.KindInteger:
		return Constant{Kind: ConstInteger, Integer: v.AsInteger()}, nil
	case vm.KindFloat:
		return Constant{Kind: ConstFloat, Float: v.AsFloat()}, nil
	}
	if s := v.AsString(); s != nil {
		return Constant{Kind: ConstString, String: s.Chars}, nil
	}
	if fn := v.AsFunction(); fn != nil {
		img, err := EncodeFunction(fn)
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstFunction, Function: img}, nil
	}
	return Constant{}, fmt.Errorf("unsupported constant type %s", v.TypeName())
}

// DecodeFunction rebuilds a function from its image, allocating from heap.
// Functions under construction are registered as roots until decoding
// finishes, so a collection triggered mid-decode cannot reclaim them.
func DecodeFunction(img *FunctionImage, heap *vm.Heap) (*vm.Function, error) {
	var building []*vm.Function
	remove := heap.AddRoots(vm.RootFunc(func(m *vm.Marker) {
		for _, fn := range building {
			m.MarkFunction(fn)
		}
	}))
	defer remove()

	var decode func(img *FunctionImage) (*vm.Function, error)
	decode = func(img *FunctionImage) (*vm.Function, error) {
		fn := heap.NewFunction()
		building = append(building, fn)
		fn.Arity = img.Arity
		fn.UpvalueCount = img.UpvalueCount
		if img.Name != nil {
			fn.Name = heap.CopyString(*img.Name)
		}
		fn.Chunk.Code = append(fn.Chunk.Code[:0], img.Code...)
		for _, run := range img.Lines {
			fn.Chunk.Lines = append(fn.Chunk.Lines, vm.LineRun{Offset: vm.CodeOffset(run.Offset), Line: run.Line})
		}
		for i, c := range img.Constants {
			var v vm.Value
			switch c.Kind {
			case ConstNone:
				v = vm.None
			case ConstBool:
				v = vm.BoolValue(c.Bool)
			case ConstInteger:
				v = vm.IntegerValue(c.Integer)
			case ConstFloat:
				v = vm.FloatValue(c.Float)
			case ConstString:
				v = vm.ObjectValue(heap.CopyString(c.String))
			case ConstFunction:
				if c.Function == nil {
					return nil, fmt.Errorf("dist: constant %d: missing function body", i)
				}
				nested, err := decode(c.Function)
				if err != nil {
					return nil, err
				}
				v = vm.ObjectValue(nested)
			default:
				return nil, fmt.Errorf("dist: constant %d: unknown kind %d", i, c.Kind)
			}
			fn.Chunk.AddConstant(v)
		}
		return fn, nil
	}
	return decode(img)
}
