package vm

import (
	"math"
	"strconv"
)

// ValueKind discriminates the variants a Value can hold.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindBool
	KindInteger
	KindFloat
	KindObject
)

// String returns a human-readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a Kuro value. Scalars are stored inline in bits; heap values
// carry an Obj reference.
//
// The zero Value is none.
type Value struct {
	kind ValueKind
	bits uint64
	obj  Obj
}

// None is the none value.
var None = Value{}

// Pre-defined boolean values
var (
	True  = Value{kind: KindBool, bits: 1}
	False = Value{kind: KindBool, bits: 0}
)

// BoolValue wraps a Go bool.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// IntegerValue wraps an int64.
func IntegerValue(i int64) Value {
	return Value{kind: KindInteger, bits: uint64(i)}
}

// FloatValue wraps a float64.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// ObjectValue wraps a heap object.
func ObjectValue(o Obj) Value {
	if o == nil {
		return None
	}
	return Value{kind: KindObject, obj: o}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNone() bool    { return v.kind == KindNone }
func (v Value) IsBool() bool    { return v.kind == KindBool }
func (v Value) IsInteger() bool { return v.kind == KindInteger }
func (v Value) IsFloat() bool   { return v.kind == KindFloat }
func (v Value) IsNumber() bool  { return v.kind == KindInteger || v.kind == KindFloat }
func (v Value) IsObject() bool  { return v.kind == KindObject }

// AsBool returns the boolean payload. Only meaningful if IsBool.
func (v Value) AsBool() bool { return v.bits != 0 }

// AsInteger returns the integer payload. Only meaningful if IsInteger.
func (v Value) AsInteger() int64 { return int64(v.bits) }

// AsFloat returns the float payload. Only meaningful if IsFloat.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }

// AsNumber returns the value as a float64, converting integers.
func (v Value) AsNumber() float64 {
	if v.kind == KindInteger {
		return float64(v.AsInteger())
	}
	return v.AsFloat()
}

// AsObject returns the object payload, or nil for non-object values.
func (v Value) AsObject() Obj { return v.obj }

// AsString returns the string object held by v, or nil.
func (v Value) AsString() *String {
	s, _ := v.obj.(*String)
	return s
}

// AsFunction returns the function object held by v, or nil.
func (v Value) AsFunction() *Function {
	f, _ := v.obj.(*Function)
	return f
}

// IsString reports whether v holds a string object.
func (v Value) IsString() bool {
	_, ok := v.obj.(*String)
	return ok
}

// IsFalsey implements the language's truthiness: none, false, zero and
// the empty string are false.
func (v Value) IsFalsey() bool {
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return !v.AsBool()
	case KindInteger:
		return v.AsInteger() == 0
	case KindFloat:
		return v.AsFloat() == 0
	case KindObject:
		if s, ok := v.obj.(*String); ok {
			return len(s.Chars) == 0
		}
	}
	return false
}

// Equal compares two values. Integers and floats compare numerically;
// strings compare by identity, which is sufficient because they are interned.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInteger && b.kind == KindInteger {
			return a.AsInteger() == b.AsInteger()
		}
		return a.AsNumber() == b.AsNumber()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindObject:
		return a.obj == b.obj
	}
	return false
}

// TypeName returns the runtime type name used in error messages.
func (v Value) TypeName() string {
	if v.kind == KindObject {
		return v.obj.Type().String()
	}
	return v.kind.String()
}

// String formats the value the way print does.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.AsBool() {
			return "True"
		}
		return "False"
	case KindInteger:
		return strconv.FormatInt(v.AsInteger(), 10)
	case KindFloat:
		return formatFloat(v.AsFloat())
	case KindObject:
		return v.obj.String()
	}
	return "<?>"
}

// formatFloat mirrors C's %g.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
