package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"github.com/chazu/kuro/store"
)

// KuroServer is the compile server. It serves Connect (HTTP/JSON or
// HTTP/CBOR) on an HTTP listener and gRPC (CBOR) on a second listener.
type KuroServer struct {
	worker  *CompileWorker
	results *ResultStore
	service *CompileService
	mux     *http.ServeMux
	http    *http.Server
	grpc    *grpc.Server

	stopSweeper func()
}

// ServerOption configures a KuroServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store         *store.Store
	resultTTL     time.Duration
	sweepInterval time.Duration
	memoryModules int
}

// WithStore persists compiled modules in st. Without it modules are
// cached in memory only.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// WithResultTTL sets how long unfetched compile results are kept.
func WithResultTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.resultTTL = ttl }
}

// WithMemoryModules bounds how many compiled modules the server keeps in
// memory. Evicted modules are reloaded from the store when one is set.
func WithMemoryModules(n int) ServerOption {
	return func(c *serverConfig) { c.memoryModules = n }
}

// shutdownTimeout bounds how long Stop waits for in-flight HTTP requests.
const shutdownTimeout = 5 * time.Second

// New creates a KuroServer.
func New(opts ...ServerOption) *KuroServer {
	cfg := &serverConfig{
		resultTTL:     30 * time.Minute,
		sweepInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.resultTTL < cfg.sweepInterval {
		cfg.sweepInterval = cfg.resultTTL
	}

	worker := NewCompileWorker(cfg.store)
	if cfg.memoryModules > 0 {
		worker.ws.Cache.SetMemoryLimit(cfg.memoryModules)
	}
	results := NewResultStore()
	service := NewCompileService(worker, results)

	s := &KuroServer{
		worker:  worker,
		results: results,
		service: service,
		mux:     http.NewServeMux(),
		grpc:    grpc.NewServer(),
	}

	path, handler := NewCompileServiceHandler(service)
	s.mux.Handle(path, handler)
	s.http = &http.Server{Handler: s.mux}
	RegisterCompileServer(s.grpc, service.GRPC())

	s.stopSweeper = results.StartSweeper(cfg.sweepInterval, cfg.resultTTL)

	return s
}

// Handler returns the Connect HTTP handler.
func (s *KuroServer) Handler() http.Handler { return s.mux }

// ListenAndServe starts the Connect HTTP server on the given address.
// The address should be in the form "host:port" or ":port". After Stop it
// returns http.ErrServerClosed.
func (s *KuroServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves Connect on lis until Stop.
func (s *KuroServer) Serve(lis net.Listener) error {
	serverLog().Noticef("Kuro compile server listening on %s", lis.Addr())
	serverLog().Noticef("  Connect (HTTP/JSON): http://%s%s", lis.Addr(), CompileProcedure)
	return s.http.Serve(lis)
}

// ServeGRPC serves gRPC on lis until Stop.
func (s *KuroServer) ServeGRPC(lis net.Listener) error {
	serverLog().Noticef("  gRPC (CBOR):         grpc://%s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop shuts down both listeners, waiting up to shutdownTimeout for
// in-flight Connect requests, then stops the worker. Requests that reach
// the service afterwards fail with CodeUnavailable.
func (s *KuroServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		serverLog().Warningf("shutting down HTTP server: %s", err)
	}
	s.grpc.Stop()
	s.worker.Stop()
}
