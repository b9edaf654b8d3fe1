package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single statements",
			input: "print 1\nprint 2\n",
			want:  []string{"print 1\n", "print 2\n"},
		},
		{
			name:  "block ends on empty line",
			input: "def f(x):\n    return x\n\nprint f(3)\n",
			want:  []string{"def f(x):\n    return x\n", "print f(3)\n"},
		},
		{
			name:  "block ends on whitespace line",
			input: "if true:\n    print 1\n   \n",
			want:  []string{"if true:\n    print 1\n"},
		},
		{
			name:  "nested blocks",
			input: "class A:\n    def m():\n        return 1\n\n",
			want:  []string{"class A:\n    def m():\n        return 1\n"},
		},
		{
			name:  "blank entry",
			input: "\nprint 3\n",
			want:  []string{"\n", "print 3\n"},
		},
		{
			name:  "crlf",
			input: "while false:\r\n    print 1\r\n\r\n",
			want:  []string{"while false:\r\n    print 1\r\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			var got []string
			for {
				block, err := readBlock(r, io.Discard)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("readBlock: %v", err)
				}
				got = append(got, block)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("block %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadBlock_Prompts(t *testing.T) {
	var prompts strings.Builder
	r := bufio.NewReader(strings.NewReader("def f():\n    return 1\n\n"))
	if _, err := readBlock(r, &prompts); err != nil {
		t.Fatalf("readBlock: %v", err)
	}
	want := primaryPrompt + continuationPrompt + continuationPrompt
	if prompts.String() != want {
		t.Errorf("prompts = %q, want %q", prompts.String(), want)
	}
}

func TestReadBlock_EarlyEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("print 1"))
	_, err := readBlock(r, io.Discard)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestRunREPL(t *testing.T) {
	var out, diag strings.Builder
	sess := newSession(options{}, &out, &diag)
	defer sess.close()

	input := strings.Join([]string{
		"let x = 20",
		"def double(n):",
		"    return n * 2",
		"",
		"print double(x) + 2",
		"print nope",
		"print )",
		"print x",
		"",
	}, "\n")
	runREPL(sess, strings.NewReader(input), &out)

	for _, want := range []string{"42\n", "20\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q missing %q", out.String(), want)
		}
	}
	for _, want := range []string{"Undefined variable 'nope'.", "Error at ')'"} {
		if !strings.Contains(diag.String(), want) {
			t.Errorf("diagnostics %q missing %q", diag.String(), want)
		}
	}
}

func TestRunREPL_Help(t *testing.T) {
	var out strings.Builder
	sess := newSession(options{}, &out, io.Discard)
	defer sess.close()

	runREPL(sess, strings.NewReader("help()\n"), &out)
	if !strings.Contains(out.String(), "Kuro REPL\nStatements entered") {
		t.Errorf("help text missing from %q", out.String())
	}
}
