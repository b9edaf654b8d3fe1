package server

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/vm"
)

func TestModuleSymbols(t *testing.T) {
	fn := compiler.MustCompile(`let count = 0
def bump(n):
    count = count + n
    return count
def counter():
    let i = 0
    def next():
        i = i + 1
        return i
    return next
class Stack:
    def init():
        self.items = 0
    def push(x):
        self.items = self.items + 1
    def size():
        return self.items
let s = Stack()
let total = bump(3)
`)

	got := moduleSymbols(fn)
	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
	}
	want := []string{"Stack", "bump", "count", "counter", "s", "total"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	byName := make(map[string]Symbol)
	for _, s := range got {
		byName[s.Name] = s
	}

	if k := byName["count"].Kind; k != SymbolVariable {
		t.Errorf("count kind = %s, want variable", k)
	}
	if k := byName["s"].Kind; k != SymbolVariable {
		t.Errorf("s kind = %s, want variable", k)
	}

	bump := byName["bump"]
	if bump.Kind != SymbolFunction || bump.Arity != 1 {
		t.Errorf("bump = %s/%d, want function/1", bump.Kind, bump.Arity)
	}
	if !strings.HasPrefix(bump.Listing, "== bump ==") {
		t.Errorf("bump listing = %q", bump.Listing)
	}

	counter := byName["counter"]
	if counter.Kind != SymbolFunction || counter.Arity != 0 {
		t.Errorf("counter = %s/%d, want function/0", counter.Kind, counter.Arity)
	}

	stack := byName["Stack"]
	if stack.Kind != SymbolClass {
		t.Errorf("Stack kind = %s, want class", stack.Kind)
	}
	if !reflect.DeepEqual(stack.Methods, []string{"init", "push", "size"}) {
		t.Errorf("Stack methods = %v", stack.Methods)
	}
}

func TestModuleSymbols_Nil(t *testing.T) {
	if got := moduleSymbols(nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestModuleSymbols_Redefinition(t *testing.T) {
	fn := compiler.MustCompile("let x = 1\ndef x(a, b, c):\n    return a\n")
	got := moduleSymbols(fn)
	if len(got) != 1 {
		t.Fatalf("symbols = %v, want one", got)
	}
	if got[0].Kind != SymbolFunction || got[0].Arity != 3 {
		t.Errorf("x = %s/%d, want function/3", got[0].Kind, got[0].Arity)
	}
}

func TestModuleSymbols_TruncatedChunk(t *testing.T) {
	h := vm.NewHeap()
	fn := h.NewFunction()
	name := fn.Chunk.AddConstant(vm.ObjectValue(h.CopyString("x")))
	fn.Chunk.Write(byte(vm.OpNone), 1)
	fn.Chunk.Write(byte(vm.OpDefineGlobal), 1)
	fn.Chunk.Write(byte(name), 1)
	fn.Chunk.Write(byte(vm.OpDefineGlobal), 1)

	got := moduleSymbols(fn)
	if len(got) != 1 || got[0].Name != "x" {
		t.Errorf("got %v, want just x", got)
	}
}

func TestSymbolKindString(t *testing.T) {
	tests := []struct {
		kind SymbolKind
		want string
	}{
		{SymbolVariable, "variable"},
		{SymbolFunction, "function"},
		{SymbolClass, "class"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
