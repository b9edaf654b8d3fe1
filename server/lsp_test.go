package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/kuro/compiler"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "print clo", protocol.Position{Line: 0, Character: 9}, "clo"},
		{"at start", "pri", protocol.Position{Line: 0, Character: 3}, "pri"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "let a = 1\nlet b = 2\nanswer", protocol.Position{Line: 2, Character: 3}, "ans"},
		{"after operator", "let x = a+count", protocol.Position{Line: 0, Character: 15}, "count"},
		{"stops at dot", "p.sum", protocol.Position{Line: 0, Character: 5}, "sum"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"cursor past end", "abc", protocol.Position{Line: 0, Character: 40}, "abc"},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPrefix(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "hello world", protocol.Position{Line: 0, Character: 2}, "hello"},
		{"at end", "hello", protocol.Position{Line: 0, Character: 5}, "hello"},
		{"at space", "a  b", protocol.Position{Line: 0, Character: 2}, ""},
		{"second word", "print answer", protocol.Position{Line: 0, Character: 8}, "answer"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "let a = 1\ndef add(x, y):", protocol.Position{Line: 1, Character: 5}, "add"},
		{"underscore", "print my_var", protocol.Position{Line: 0, Character: 9}, "my_var"},
		{"inside call", "add(1, 2)", protocol.Position{Line: 0, Character: 1}, "add"},
		{"line beyond document", "x", protocol.Position{Line: 3, Character: 0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWord(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractWord = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) should point to true")
	}
	if p := boolPtr(false); p == nil || *p {
		t.Error("boolPtr(false) should point to false")
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestLspDiagnostic(t *testing.T) {
	tests := []struct {
		name       string
		diag       compiler.Diagnostic
		line       protocol.UInteger
		start, end protocol.UInteger
	}{
		{
			name: "token",
			diag: compiler.Diagnostic{Line: 1, Column: 5, Lexeme: "=", Kind: compiler.Syntax, Message: "Expected variable name."},
			line: 0, start: 4, end: 5,
		},
		{
			name: "end of line",
			diag: compiler.Diagnostic{Line: 2, Column: 10, Lexeme: "\n", Kind: compiler.Syntax, Message: "Expected expression."},
			line: 1, start: 9, end: 9,
		},
		{
			name: "at end",
			diag: compiler.Diagnostic{Line: 3, Column: 1, AtEnd: true, Kind: compiler.Syntax, Message: "Expected expression."},
			line: 2, start: 0, end: 0,
		},
		{
			name: "multi byte lexeme",
			diag: compiler.Diagnostic{Line: 4, Column: 3, Lexeme: "answer", Kind: compiler.Binding, Message: "Duplicate definition of 'answer'."},
			line: 3, start: 2, end: 8,
		},
		{
			name: "no position",
			diag: compiler.Diagnostic{Kind: compiler.Lexical, Message: "Unexpected character."},
			line: 0, start: 0, end: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lspDiagnostic(tt.diag)
			if got.Range.Start.Line != tt.line || got.Range.End.Line != tt.line {
				t.Errorf("line = %d..%d, want %d", got.Range.Start.Line, got.Range.End.Line, tt.line)
			}
			if got.Range.Start.Character != tt.start || got.Range.End.Character != tt.end {
				t.Errorf("characters = %d..%d, want %d..%d",
					got.Range.Start.Character, got.Range.End.Character, tt.start, tt.end)
			}
			if got.Message != tt.diag.Message {
				t.Errorf("message = %q, want %q", got.Message, tt.diag.Message)
			}
			if got.Severity == nil || *got.Severity != protocol.DiagnosticSeverityError {
				t.Error("severity should be error")
			}
			if got.Code == nil || got.Code.Value != tt.diag.Kind.String() {
				t.Errorf("code = %v, want %q", got.Code, tt.diag.Kind.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

const lspSource = `let answer = 42
def add(a, b):
    return a + b
class Point:
    def init(x, y):
        self.x = x
        self.y = y
    def sum():
        return self.x + self.y
let p = Point(1, 2)
`

func newTestLSP(t *testing.T) *LspServer {
	t.Helper()
	s := NewLSP(nil)
	t.Cleanup(s.worker.Stop)
	return s
}

func TestLSP_Update(t *testing.T) {
	s := newTestLSP(t)

	doc := s.update("file:///a.kr", lspSource)
	if len(doc.diagnostics) != 0 {
		t.Fatalf("diagnostics = %v, want none", doc.diagnostics)
	}
	if len(doc.symbols) != 4 {
		t.Fatalf("symbols = %d, want 4", len(doc.symbols))
	}

	// A broken edit keeps the last good symbols.
	doc = s.update("file:///a.kr", lspSource+"print )\n")
	if len(doc.diagnostics) != 1 {
		t.Fatalf("diagnostics = %v, want one", doc.diagnostics)
	}
	if doc.diagnostics[0].Line != 11 {
		t.Errorf("diagnostic line = %d, want 11", doc.diagnostics[0].Line)
	}
	if len(doc.symbols) != 4 {
		t.Errorf("symbols after broken edit = %d, want 4", len(doc.symbols))
	}

	stored, ok := s.lookup("file:///a.kr")
	if !ok {
		t.Fatal("document should be stored")
	}
	if !strings.HasSuffix(stored.text, "print )\n") {
		t.Errorf("stored text not updated: %q", stored.text)
	}
}

func TestLSP_LookupUnknown(t *testing.T) {
	s := newTestLSP(t)
	if _, ok := s.lookup("file:///missing.kr"); ok {
		t.Error("unknown URI should not be found")
	}
}

func TestLSP_Complete(t *testing.T) {
	symbols := moduleSymbols(compiler.MustCompile(lspSource))

	tests := []struct {
		prefix string
		want   map[string]string // label → detail
	}{
		{"a", map[string]string{"answer": "global", "add": "function/2", "and": "keyword"}},
		{"P", map[string]string{"Point": "class"}},
		{"cl", map[string]string{"clock": "built-in/0", "class": "keyword"}},
		{"zzz", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			items := complete(symbols, tt.prefix)
			got := make(map[string]string)
			for _, item := range items {
				got[item.Label] = *item.Detail
			}
			if len(got) != len(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			for label, detail := range tt.want {
				if got[label] != detail {
					t.Errorf("%s detail = %q, want %q", label, got[label], detail)
				}
			}
		})
	}
}

func TestLSP_Hover(t *testing.T) {
	symbols := moduleSymbols(compiler.MustCompile(lspSource))

	tests := []struct {
		word     string
		contains []string
	}{
		{"add", []string{"**add** function, 2 parameters", "OP_ADD", "OP_RETURN"}},
		{"Point", []string{"**Point** class", "`init`, `sum`"}},
		{"answer", []string{"**answer** global"}},
		{"len", []string{"**len** built-in function, 1 argument"}},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			h := hover(symbols, tt.word)
			if h == nil {
				t.Fatal("expected hover")
			}
			content := h.Contents.(protocol.MarkupContent)
			if content.Kind != protocol.MarkupKindMarkdown {
				t.Errorf("kind = %q, want markdown", content.Kind)
			}
			for _, want := range tt.contains {
				if !strings.Contains(content.Value, want) {
					t.Errorf("hover %q missing %q", content.Value, want)
				}
			}
		})
	}
}

func TestLSP_Hover_UnknownWord(t *testing.T) {
	symbols := moduleSymbols(compiler.MustCompile(lspSource))
	if h := hover(symbols, "nothing"); h != nil {
		t.Errorf("hover for unknown word = %v, want nil", h)
	}
}

func TestFindDeclaration(t *testing.T) {
	tests := []struct {
		name       string
		line       protocol.UInteger
		start, end protocol.UInteger
	}{
		{"answer", 0, 4, 10},
		{"add", 1, 4, 7},
		{"Point", 3, 6, 11},
		{"init", 4, 8, 12},
		{"p", 9, 4, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, ok := findDeclaration(lspSource, tt.name)
			if !ok {
				t.Fatal("declaration not found")
			}
			if rng.Start.Line != tt.line {
				t.Errorf("line = %d, want %d", rng.Start.Line, tt.line)
			}
			if rng.Start.Character != tt.start || rng.End.Character != tt.end {
				t.Errorf("characters = %d..%d, want %d..%d",
					rng.Start.Character, rng.End.Character, tt.start, tt.end)
			}
		})
	}

	if _, ok := findDeclaration(lspSource, "missing"); ok {
		t.Error("missing name should not be found")
	}
	if _, ok := findDeclaration("let answers = 1\n", "answer"); ok {
		t.Error("prefix of a longer name should not match")
	}
}
