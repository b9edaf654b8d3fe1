// Kuro CLI - compiles and runs Kuro scripts, or serves the compiler
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/manifest"
	"github.com/chazu/kuro/server"
	"github.com/chazu/kuro/store"
	"github.com/chazu/kuro/vm"

	_ "github.com/tliron/commonlog/simple"
)

// options collects everything the flags and kuro.toml decide.
type options struct {
	traceExec   bool
	disassemble bool
	traceScan   bool
	stressGC    bool
	useCache    bool
	cachePath   string
	output      string
}

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 notices, 1 info, 2 debug)")
	traceExec := flag.Bool("t", false, "Trace execution: print the stack and each instruction")
	disassemble := flag.Bool("d", false, "Disassemble each compiled function")
	traceScan := flag.Bool("s", false, "Trace the scanner's token stream")
	stressGC := flag.Bool("g", false, "Collect garbage on every allocation")
	useCache := flag.Bool("c", false, "Use the persistent compile cache")
	output := flag.String("o", "", "Write the compiled module image to this path instead of running it")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	serveMode := flag.Bool("serve", false, "Start the compile server (Connect HTTP/JSON + gRPC)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kuro [options] [file.kr | image.kri ...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs Kuro scripts. With no files, starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kuro                    # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  kuro -d fib.kr          # Show bytecode, then run\n")
		fmt.Fprintf(os.Stderr, "  kuro -o fib.kri fib.kr  # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  kuro fib.kri            # Run a compiled image\n")
		fmt.Fprintf(os.Stderr, "  kuro -serve             # Serve the compiler ([server] in kuro.toml)\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	project := m != nil
	if !project {
		cwd, _ := os.Getwd()
		m = manifest.Default(cwd)
	}

	opts := options{
		traceExec:   *traceExec || m.Compiler.TraceExec,
		disassemble: *disassemble || m.Compiler.Disassemble,
		traceScan:   *traceScan || m.Compiler.TraceScan,
		stressGC:    *stressGC || m.Compiler.StressGC,
		useCache:    *useCache || m.Cache.Enabled,
		cachePath:   m.CachePath(),
		output:      *output,
	}

	switch {
	case *lspMode:
		st := openStore(opts)
		if st != nil {
			defer st.Close()
		}
		if err := server.NewLSP(st).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		return
	case *serveMode:
		if err := serve(m, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	paths := flag.Args()
	// Inside a project, a bare `kuro` runs the entry script.
	if len(paths) == 0 && project && opts.output == "" && fileExists(m.EntryPath()) {
		paths = []string{m.EntryPath()}
	}
	if len(paths) == 0 {
		sess := newSession(opts, os.Stdout, os.Stderr)
		defer sess.close()
		runREPL(sess, os.Stdin, os.Stdout)
		return
	}

	sess := newSession(opts, os.Stdout, os.Stderr)
	code := runPaths(sess, paths, opts.output)
	sess.close()
	os.Exit(code)
}

// runPaths runs or compiles each path and returns the process exit code:
// 65 for a compile error, 70 for a runtime error, as sysexits.h.
func runPaths(sess *session, paths []string, output string) int {
	if output != "" && len(paths) != 1 {
		fmt.Fprintln(sess.diag, "Error: -o takes exactly one source file")
		return 64
	}
	for _, path := range paths {
		var err error
		if output != "" {
			err = sess.buildFile(path, output)
		} else {
			err = sess.runFile(path)
		}
		if err != nil {
			fmt.Fprintln(sess.diag, err)
			var cerr *compiler.Error
			var rerr *vm.RuntimeError
			switch {
			case errors.As(err, &cerr):
				return 65
			case errors.As(err, &rerr):
				return 70
			default:
				return 74
			}
		}
	}
	return 0
}

// serve runs the Connect server on [server].addr and gRPC on
// [server].grpc-addr until either fails.
func serve(m *manifest.Manifest, opts options) error {
	serverOpts := []server.ServerOption{server.WithMemoryModules(m.Server.MemoryModules)}
	if st := openStore(opts); st != nil {
		defer st.Close()
		serverOpts = append(serverOpts, server.WithStore(st))
	}
	srv := server.New(serverOpts...)
	defer srv.Stop()

	lis, err := net.Listen("tcp", m.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.Server.GRPCAddr, err)
	}
	errs := make(chan error, 2)
	go func() { errs <- srv.ServeGRPC(lis) }()
	go func() { errs <- srv.ListenAndServe(m.Server.Addr) }()
	return <-errs
}

// openStore opens the compile cache when enabled. A cache that cannot be
// opened is reported and skipped.
func openStore(opts options) *store.Store {
	if !opts.useCache {
		return nil
	}
	st, err := store.Open(opts.cachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: compile cache disabled: %v\n", err)
		return nil
	}
	return st
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
