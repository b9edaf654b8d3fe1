package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/store"
	"github.com/chazu/kuro/vm"
	"github.com/chazu/kuro/vm/dist"
)

func serverLog() commonlog.Logger { return commonlog.GetLogger("kuro.server") }

const (
	// CompileServiceName is the fully-qualified service name.
	CompileServiceName = "kuro.v1.CompileService"

	// CompileProcedure compiles one source text.
	CompileProcedure = "/kuro.v1.CompileService/Compile"
	// FetchProcedure returns an earlier compile result by ID.
	FetchProcedure = "/kuro.v1.CompileService/Fetch"
)

var (
	errEmptySource   = errors.New("source is required")
	errEmptyID       = errors.New("id is required")
	errUnknownResult = errors.New("no compile result with that id")
)

// FetchRequest asks for a stored compile result.
type FetchRequest struct {
	ID string `cbor:"1,keyasint" json:"id"`
}

// CompileService implements the compile service for both transports.
// Compilation itself runs on the worker goroutine.
type CompileService struct {
	worker  *CompileWorker
	results *ResultStore
}

// NewCompileService creates a CompileService.
func NewCompileService(worker *CompileWorker, results *ResultStore) *CompileService {
	return &CompileService{
		worker:  worker,
		results: results,
	}
}

// compile handles a request independently of the transport. A program
// with diagnostics is a successful call whose response has OK unset.
func (s *CompileService) compile(ctx context.Context, req *dist.CompileRequest) (*dist.CompileResponse, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, errEmptySource
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		resp *dist.CompileResponse
		err  error
	}
	value, err := s.worker.Do(ctx, func(ws *Workspace) interface{} {
		resp, err := compileInWorkspace(ws, req)
		return outcome{resp, err}
	})
	if err != nil {
		return nil, err
	}
	out := value.(outcome)
	if out.err != nil {
		return nil, out.err
	}

	out.resp.ID = "compile_" + uuid.New().String()
	s.results.Put(out.resp)
	serverLog().Debugf("%s: %q ok=%t diagnostics=%d", out.resp.ID, req.Name, out.resp.OK, len(out.resp.Diagnostics))
	return out.resp, nil
}

func (s *CompileService) fetch(ctx context.Context, req *FetchRequest) (*dist.CompileResponse, error) {
	if req.ID == "" {
		return nil, errEmptyID
	}
	resp, ok := s.results.Lookup(req.ID)
	if !ok {
		return nil, errUnknownResult
	}
	return resp, nil
}

// compileInWorkspace runs on the worker goroutine.
func compileInWorkspace(ws *Workspace, req *dist.CompileRequest) (*dist.CompileResponse, error) {
	resp := &dist.CompileResponse{}
	fn, err := ws.Cache.Compile(req.Source)
	var cerr *compiler.Error
	switch {
	case errors.As(err, &cerr):
		resp.Diagnostics = wireDiagnostics(cerr.Diagnostics)
		return resp, nil
	case err != nil:
		return nil, err
	}

	key := store.Key(req.Source)
	image, err := dist.MarshalModule(fn, key)
	if err != nil {
		return nil, fmt.Errorf("encoding module: %w", err)
	}
	resp.OK = true
	resp.Image = image
	resp.Hash = key
	if req.Disassemble {
		resp.Disassembly = vm.Disassemble(fn)
	}
	return resp, nil
}

func wireDiagnostics(diags []compiler.Diagnostic) []dist.Diagnostic {
	out := make([]dist.Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = dist.Diagnostic{
			Line:    d.Line,
			Lexeme:  d.Lexeme,
			AtEnd:   d.AtEnd,
			Kind:    d.Kind.String(),
			Message: d.Message,
			Text:    d.String(),
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Connect transport
// ---------------------------------------------------------------------------

// Compile is the Connect handler for CompileProcedure.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[dist.CompileRequest],
) (*connect.Response[dist.CompileResponse], error) {
	resp, err := s.compile(ctx, req.Msg)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

// Fetch is the Connect handler for FetchProcedure.
func (s *CompileService) Fetch(
	ctx context.Context,
	req *connect.Request[FetchRequest],
) (*connect.Response[dist.CompileResponse], error) {
	resp, err := s.fetch(ctx, req.Msg)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

func connectError(err error) error {
	switch {
	case errors.Is(err, errEmptySource), errors.Is(err, errEmptyID):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, errUnknownResult):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, errWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// NewCompileServiceHandler builds an HTTP handler serving the compile
// service over the Connect protocol with JSON and CBOR bodies. It returns
// the path to mount the handler on.
func NewCompileServiceHandler(svc *CompileService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithCodec(cborCodec{}),
	}, opts...)

	compileHandler := connect.NewUnaryHandler(CompileProcedure, svc.Compile, opts...)
	fetchHandler := connect.NewUnaryHandler(FetchProcedure, svc.Fetch, opts...)
	return "/" + CompileServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CompileProcedure:
			compileHandler.ServeHTTP(w, r)
		case FetchProcedure:
			fetchHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CompileClient calls the compile service over the Connect protocol. It
// speaks JSON unless another codec is passed in opts.
type CompileClient struct {
	compile *connect.Client[dist.CompileRequest, dist.CompileResponse]
	fetch   *connect.Client[FetchRequest, dist.CompileResponse]
}

// NewCompileClient creates a client for the service at baseURL.
func NewCompileClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CompileClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &CompileClient{
		compile: connect.NewClient[dist.CompileRequest, dist.CompileResponse](httpClient, baseURL+CompileProcedure, opts...),
		fetch:   connect.NewClient[FetchRequest, dist.CompileResponse](httpClient, baseURL+FetchProcedure, opts...),
	}
}

// Compile sends one compile request.
func (c *CompileClient) Compile(ctx context.Context, req *dist.CompileRequest) (*dist.CompileResponse, error) {
	resp, err := c.compile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Fetch retrieves an earlier result by ID.
func (c *CompileClient) Fetch(ctx context.Context, id string) (*dist.CompileResponse, error) {
	resp, err := c.fetch.CallUnary(ctx, connect.NewRequest(&FetchRequest{ID: id}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
