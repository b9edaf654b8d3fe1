package server

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/kuro/compiler"
	"github.com/chazu/kuro/store"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kuro-lsp"

// builtinNatives are the functions every VM defines.
var builtinNatives = []struct {
	name  string
	arity int
}{
	{"clock", 0},
	{"len", 1},
	{"str", 1},
}

// document is an open editor buffer plus what the last compile learned
// about it. Symbols are kept from the last successful compile so that
// completion keeps working while the user types.
type document struct {
	text        string
	diagnostics []compiler.Diagnostic
	symbols     []Symbol
}

// LspServer bridges LSP editor features to the compiler via CompileWorker.
type LspServer struct {
	worker *CompileWorker

	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. st may be nil.
func NewLSP(st *store.Store) *LspServer {
	s := &LspServer{
		worker:  NewCompileWorker(st),
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Kuro LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.update(string(uri), params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.update(string(uri), whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update compiles text on the worker and records the result for uri.
func (s *LspServer) update(uri, text string) document {
	diags, symbols, err := s.analyze(text)
	if err != nil {
		serverLog().Warningf("analyzing %s: %s", uri, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		doc = &document{}
		s.docs[uri] = doc
	}
	doc.text = text
	doc.diagnostics = diags
	if len(diags) == 0 {
		doc.symbols = symbols
	}
	return *doc
}

type analysis struct {
	diagnostics []compiler.Diagnostic
	symbols     []Symbol
}

// analyze compiles text on the worker's heap. It bypasses the module
// cache: editor buffers change on every keystroke and would only churn it.
func (s *LspServer) analyze(text string) ([]compiler.Diagnostic, []Symbol, error) {
	result, err := s.worker.Do(context.Background(), func(ws *Workspace) interface{} {
		r := compiler.Compile(text, compiler.WithHeap(ws.Heap))
		return analysis{
			diagnostics: r.Diagnostics,
			symbols:     moduleSymbols(r.Function),
		}
	})
	if err != nil {
		return nil, nil, err
	}
	a := result.(analysis)
	return a.diagnostics, a.symbols, nil
}

func (s *LspServer) lookup(uri protocol.DocumentUri) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(doc.symbols, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc.symbols, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.lookup(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}

	rng, ok := findDeclaration(doc.text, word)
	if !ok {
		return nil, nil
	}
	return []protocol.Location{{URI: uri, Range: rng}}, nil
}

// --- Feature logic ---

func complete(symbols []Symbol, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, sym := range symbols {
		switch sym.Kind {
		case SymbolFunction:
			add(sym.Name, protocol.CompletionItemKindFunction, fmt.Sprintf("function/%d", sym.Arity))
		case SymbolClass:
			add(sym.Name, protocol.CompletionItemKindClass, "class")
		default:
			add(sym.Name, protocol.CompletionItemKindVariable, "global")
		}
	}
	for _, n := range builtinNatives {
		add(n.name, protocol.CompletionItemKindFunction, fmt.Sprintf("built-in/%d", n.arity))
	}
	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(symbols []Symbol, word string) *protocol.Hover {
	var b strings.Builder
	for _, sym := range symbols {
		if sym.Name != word {
			continue
		}
		switch sym.Kind {
		case SymbolFunction:
			fmt.Fprintf(&b, "**%s** function, %d %s", sym.Name, sym.Arity, plural(sym.Arity, "parameter"))
			if sym.Listing != "" {
				fmt.Fprintf(&b, "\n\n```\n%s```", sym.Listing)
			}
		case SymbolClass:
			fmt.Fprintf(&b, "**%s** class", sym.Name)
			if len(sym.Methods) > 0 {
				fmt.Fprintf(&b, "\n\nMethods: `%s`", strings.Join(sym.Methods, "`, `"))
			}
		default:
			fmt.Fprintf(&b, "**%s** global", sym.Name)
		}
	}
	if b.Len() == 0 {
		for _, n := range builtinNatives {
			if n.name == word {
				fmt.Fprintf(&b, "**%s** built-in function, %d %s", n.name, n.arity, plural(n.arity, "argument"))
			}
		}
	}
	if b.Len() == 0 {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// findDeclaration locates the first def, class or let that introduces
// name and returns the range of the name itself.
func findDeclaration(text, name string) (protocol.Range, bool) {
	re := regexp.MustCompile(`^\s*(?:def|class|let)\s+(` + regexp.QuoteMeta(name) + `)\b`)
	for i, line := range strings.Split(text, "\n") {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		return protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(m[2])},
			End:   protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(m[3])},
		}, true
	}
	return protocol.Range{}, false
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc document) {
	diagnostics := make([]protocol.Diagnostic, 0, len(doc.diagnostics))
	for _, d := range doc.diagnostics {
		diagnostics = append(diagnostics, lspDiagnostic(d))
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// lspDiagnostic converts a compiler diagnostic to a zero-based LSP range
// covering the offending token.
func lspDiagnostic(d compiler.Diagnostic) protocol.Diagnostic {
	line := protocol.UInteger(0)
	if d.Line > 0 {
		line = protocol.UInteger(d.Line - 1)
	}
	start := protocol.UInteger(0)
	if d.Column > 0 {
		start = protocol.UInteger(d.Column - 1)
	}
	end := start
	if !d.AtEnd && d.Lexeme != "\n" {
		end += protocol.UInteger(len(d.Lexeme))
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	code := protocol.IntegerOrString{Value: d.Kind.String()}
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: start},
			End:   protocol.Position{Line: line, Character: end},
		},
		Severity: &severity,
		Code:     &code,
		Source:   &source,
		Message:  d.Message,
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor for
// completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isIdentByte(b byte) bool {
	ch := rune(b)
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
