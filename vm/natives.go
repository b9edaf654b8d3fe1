package vm

import (
	"fmt"
	"time"
	"unicode/utf8"
)

func (vm *VM) registerNatives() {
	vm.DefineNative("clock", 0, nativeClock)
	vm.DefineNative("len", 1, nativeLen)
	vm.DefineNative("str", 1, nativeStr)
}

// clock() returns seconds since the VM started, as a float.
func nativeClock(vm *VM, args []Value) (Value, error) {
	return FloatValue(time.Since(vm.started).Seconds()), nil
}

// len(s) returns the number of characters in a string.
func nativeLen(vm *VM, args []Value) (Value, error) {
	s := args[0].AsString()
	if s == nil {
		return None, fmt.Errorf("len() expects a str, not '%s'", args[0].TypeName())
	}
	return IntegerValue(int64(utf8.RuneCountInString(s.Chars))), nil
}

// str(v) converts any value to its printed form.
func nativeStr(vm *VM, args []Value) (Value, error) {
	if args[0].IsString() {
		return args[0], nil
	}
	return ObjectValue(vm.heap.CopyString(args[0].String())), nil
}
