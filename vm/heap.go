package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: allocation accounting, string interning and collection
// ---------------------------------------------------------------------------

// heapLog is resolved on use so it picks up whichever backend the
// program configured.
func heapLog() commonlog.Logger { return commonlog.GetLogger("kuro.vm.heap") }

const (
	defaultNextGC = 1 << 20
	heapGrowth    = 2
)

// RootProvider is implemented by anything that holds objects the collector
// cannot otherwise reach: the VM's stack and globals, and the compiler's
// in-progress functions.
type RootProvider interface {
	MarkRoots(m *Marker)
}

// RootFunc adapts a plain function to RootProvider.
type RootFunc func(m *Marker)

// MarkRoots calls f.
func (f RootFunc) MarkRoots(m *Marker) { f(m) }

// Marker accumulates gray objects during the mark phase.
type Marker struct {
	gray []Obj
}

// MarkValue marks the object held by v, if any.
func (m *Marker) MarkValue(v Value) {
	if v.kind == KindObject {
		m.MarkObject(v.obj)
	}
}

// MarkObject marks o and queues it for tracing. o must not be a typed nil.
func (m *Marker) MarkObject(o Obj) {
	if o == nil {
		return
	}
	h := o.header()
	if h.marked {
		return
	}
	h.marked = true
	m.gray = append(m.gray, o)
}

// MarkFunction marks fn if non-nil.
func (m *Marker) MarkFunction(fn *Function) {
	if fn != nil {
		m.MarkObject(fn)
	}
}

func (m *Marker) markString(s *String) {
	if s != nil {
		m.MarkObject(s)
	}
}

func (m *Marker) trace() {
	for len(m.gray) > 0 {
		o := m.gray[len(m.gray)-1]
		m.gray = m.gray[:len(m.gray)-1]
		m.blacken(o)
	}
}

func (m *Marker) blacken(o Obj) {
	switch obj := o.(type) {
	case *Function:
		m.markString(obj.Name)
		for _, c := range obj.Chunk.Constants {
			m.MarkValue(c)
		}
	case *Closure:
		m.MarkObject(obj.Function)
		for _, up := range obj.Upvalues {
			if up != nil {
				m.MarkObject(up)
			}
		}
	case *Upvalue:
		m.MarkValue(obj.Closed)
	case *Class:
		m.markString(obj.Name)
		for k, v := range obj.Methods {
			m.MarkObject(k)
			m.MarkValue(v)
		}
	case *Instance:
		m.MarkObject(obj.Class)
		for k, v := range obj.Fields {
			m.MarkObject(k)
			m.MarkValue(v)
		}
	case *BoundMethod:
		m.MarkValue(obj.Receiver)
		m.MarkObject(obj.Method)
	}
}

type rootEntry struct {
	id       int
	provider RootProvider
}

// Heap owns every runtime object. It interns strings and runs a mark/sweep
// pass over its object list when the allocation threshold is crossed (or on
// every allocation in stress mode). Reclaimed objects are dropped from the
// object list and the intern table; Go's collector frees the memory.
//
// A Heap is not safe for concurrent use.
type Heap struct {
	objects []Obj
	strings map[string]*String

	roots      []rootEntry
	nextRootID int

	bytesAllocated int
	nextGC         int
	stress         bool
	collecting     bool

	// Collections counts completed collection cycles.
	Collections int
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithStressGC makes the heap collect before every allocation.
func WithStressGC(enabled bool) HeapOption {
	return func(h *Heap) { h.stress = enabled }
}

// WithGCThreshold sets the initial allocation threshold in bytes.
func WithGCThreshold(bytes int) HeapOption {
	return func(h *Heap) { h.nextGC = bytes }
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		strings: make(map[string]*String),
		nextGC:  defaultNextGC,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StressGC reports whether stress mode is on.
func (h *Heap) StressGC() bool { return h.stress }

// AddRoots registers a root provider and returns a function that removes
// it. Providers are consulted in registration order.
func (h *Heap) AddRoots(p RootProvider) (remove func()) {
	h.nextRootID++
	id := h.nextRootID
	h.roots = append(h.roots, rootEntry{id: id, provider: p})
	return func() {
		for i, r := range h.roots {
			if r.id == id {
				h.roots = append(h.roots[:i], h.roots[i+1:]...)
				return
			}
		}
	}
}

// RootCount returns the number of registered root providers.
func (h *Heap) RootCount() int { return len(h.roots) }

// ObjectCount returns the number of live objects tracked by the heap.
func (h *Heap) ObjectCount() int { return len(h.objects) }

// BytesAllocated returns the heap's running size estimate.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// Interned returns the interned string with the given contents, if any.
func (h *Heap) Interned(s string) (*String, bool) {
	str, ok := h.strings[s]
	return str, ok
}

func (h *Heap) allocate(o Obj, size int) {
	if h.stress || h.bytesAllocated+size > h.nextGC {
		h.Collect()
	}
	h.bytesAllocated += size
	h.objects = append(h.objects, o)
}

// CopyString returns the interned string for s, allocating it on first use.
func (h *Heap) CopyString(s string) *String {
	if str, ok := h.strings[s]; ok {
		return str
	}
	str := &String{Chars: s, Hash: hashString(s)}
	h.allocate(str, objectSize(str))
	h.strings[s] = str
	return str
}

// NewFunction allocates an empty function with a fresh chunk.
func (h *Heap) NewFunction() *Function {
	fn := &Function{Chunk: *NewChunk()}
	h.allocate(fn, objectSize(fn))
	return fn
}

// NewNative wraps a Go function.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *Native {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.allocate(n, objectSize(n))
	return n
}

// NewClosure allocates a closure over fn with unfilled upvalue slots.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.allocate(c, objectSize(c))
	return c
}

// NewUpvalue allocates an open upvalue for a stack slot.
func (h *Heap) NewUpvalue(slot int) *Upvalue {
	u := &Upvalue{Slot: slot, IsOpen: true}
	h.allocate(u, objectSize(u))
	return u
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: make(map[*String]Value)}
	h.allocate(c, objectSize(c))
	return c
}

// NewInstance allocates an instance of class.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Class: class, Fields: make(map[*String]Value)}
	h.allocate(i, objectSize(i))
	return i
}

// NewBoundMethod binds method to receiver.
func (h *Heap) NewBoundMethod(receiver Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.allocate(b, objectSize(b))
	return b
}

// Collect runs a full mark/sweep cycle. Re-entrant calls are ignored.
func (h *Heap) Collect() {
	if h.collecting {
		return
	}
	h.collecting = true
	defer func() { h.collecting = false }()

	before := h.bytesAllocated

	m := &Marker{}
	for _, r := range h.roots {
		r.provider.MarkRoots(m)
	}
	m.trace()

	// The intern table holds strings weakly.
	for k, s := range h.strings {
		if !s.marked {
			delete(h.strings, k)
		}
	}

	live := h.objects[:0]
	for _, o := range h.objects {
		hd := o.header()
		if hd.marked {
			hd.marked = false
			live = append(live, o)
			continue
		}
		h.bytesAllocated -= objectSize(o)
	}
	for i := len(live); i < len(h.objects); i++ {
		h.objects[i] = nil
	}
	h.objects = live

	h.nextGC = h.bytesAllocated * heapGrowth
	if h.nextGC < defaultNextGC && !h.stress {
		h.nextGC = defaultNextGC
	}
	h.Collections++

	if log := heapLog(); log.AllowLevel(commonlog.Debug) {
		log.Debugf("collected %d bytes (from %d to %d), next at %d",
			before-h.bytesAllocated, before, h.bytesAllocated, h.nextGC)
	}
}

// objectSize is a rough per-object cost used only for pacing collections.
func objectSize(o Obj) int {
	switch obj := o.(type) {
	case *String:
		return 32 + len(obj.Chars)
	case *Function:
		return 128
	case *Closure:
		return 40 + 8*len(obj.Upvalues)
	case *Class:
		return 48
	case *Instance:
		return 48
	default:
		return 32
	}
}
