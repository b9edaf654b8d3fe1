package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/store"
	"github.com/chazu/kuro/vm"
	"github.com/chazu/kuro/vm/dist"
)

func cliLog() commonlog.Logger { return commonlog.GetLogger("kuro.cli") }

// imageExt marks files holding a compiled module image.
const imageExt = ".kri"

// session is one heap and VM shared by every file or REPL entry of one
// invocation, so globals persist between them.
type session struct {
	heap    *vm.Heap
	machine *vm.VM
	store   *store.Store
	cache   *store.Cache // nil unless the compile cache is enabled

	compileOpts []compiler.Option
	diag        io.Writer
}

func newSession(opts options, out, diag io.Writer) *session {
	sess := &session{diag: diag}

	var heapOpts []vm.HeapOption
	if opts.stressGC {
		heapOpts = append(heapOpts, vm.WithStressGC(true))
	}
	sess.heap = vm.NewHeap(heapOpts...)

	vmOpts := []vm.Option{vm.WithHeap(sess.heap), vm.WithOutput(out)}
	if opts.traceExec {
		vmOpts = append(vmOpts, vm.WithTrace(sess.diag))
	}
	sess.machine = vm.New(vmOpts...)

	if opts.disassemble {
		sess.compileOpts = append(sess.compileOpts, compiler.WithDisassembly(sess.diag))
	}
	if opts.traceScan {
		sess.compileOpts = append(sess.compileOpts, compiler.WithScanTrace(sess.diag))
	}

	if st := openStore(opts); st != nil {
		sess.store = st
		sess.cache = store.NewCache(sess.heap, st, sess.compileOpts...)
	}
	return sess
}

// compile compiles source onto the session heap, through the cache when
// one is open. Cached modules are not disassembled again.
func (s *session) compile(source string) (*vm.Function, error) {
	if s.cache != nil {
		return s.cache.Compile(source)
	}
	opts := append([]compiler.Option{compiler.WithHeap(s.heap)}, s.compileOpts...)
	r := compiler.Compile(source, opts...)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return r.Function, nil
}

// run compiles and executes source.
func (s *session) run(source string) error {
	fn, err := s.compile(source)
	if err != nil {
		return err
	}
	return s.machine.Interpret(fn)
}

// runFile executes a script, or a compiled image when path ends in .kri.
func (s *session) runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if filepath.Ext(path) == imageExt {
		fn, hash, err := dist.UnmarshalModule(data, s.heap)
		if err != nil {
			return fmt.Errorf("loading image %s: %w", path, err)
		}
		cliLog().Debugf("loaded image %s (%x)", path, hash[:8])
		return s.machine.Interpret(fn)
	}
	return s.run(string(data))
}

// buildFile compiles the script at path and writes its image to output.
func (s *session) buildFile(path, output string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	source := string(data)
	fn, err := s.compile(source)
	if err != nil {
		return err
	}
	image, err := dist.MarshalModule(fn, store.Key(source))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(output, image, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	cliLog().Infof("wrote %s (%d bytes)", output, len(image))
	return nil
}

func (s *session) close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.machine.Close()
}
