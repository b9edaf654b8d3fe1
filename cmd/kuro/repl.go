package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/kuro/vm"
)

const replHelp = `Kuro REPL
Statements entered in the repl are compiled and run directly in a script
context. Classes, functions, and control flow statements may also be
entered. When in an indented block context, entering a blank line marks
the end of the top-level statement.

Some things to try:
   Basic mathematics: print 1 + 2 + 3
   Define a function: def method(foo):
                          print foo
`

const (
	primaryPrompt      = ">>> "
	continuationPrompt = "  > "
)

// readBlock reads one REPL entry. A line ending in ':' opens a block; the
// block then continues until an empty or whitespace-only line. It returns
// io.EOF when input ends before an entry is complete.
func readBlock(r *bufio.Reader, prompt io.Writer) (string, error) {
	var sb strings.Builder
	inBlock := false

	fmt.Fprint(prompt, primaryPrompt)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}

		body := strings.TrimRight(line, "\r\n")
		blank := strings.TrimSpace(body) == ""

		switch {
		case strings.HasSuffix(body, ":"):
			inBlock = true
		case inBlock && blank:
			return sb.String(), nil
		case !inBlock:
			sb.WriteString(line)
			return sb.String(), nil
		}
		sb.WriteString(line)
		fmt.Fprint(prompt, continuationPrompt)
	}
}

// runREPL reads entries from in until EOF and runs each one in sess.
// Errors are reported and the session continues.
func runREPL(sess *session, in io.Reader, out io.Writer) {
	sess.machine.DefineNative("help", 0, func(*vm.VM, []vm.Value) (vm.Value, error) {
		fmt.Fprint(out, replHelp)
		return vm.None, nil
	})

	fmt.Fprintln(out, "Kuro REPL - type help() for help, Ctrl-D to exit")
	r := bufio.NewReader(in)
	for {
		source, err := readBlock(r, out)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			fmt.Fprintln(sess.diag, "\nExpected end of line in repl input. Did you ^D early?")
			continue
		}
		if err != nil {
			fmt.Fprintln(out)
			return
		}
		if strings.TrimSpace(source) == "" {
			continue
		}
		if err := sess.run(source); err != nil {
			fmt.Fprintln(sess.diag, err)
		}
	}
}
