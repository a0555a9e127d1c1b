package model

import (
	"github.com/alessio/shellescape"
)

// Invocation is a fully assembled external command: the executable, its
// argument vector, and the process environment overrides. It is the
// only thing the runner needs to start the build tool.
type Invocation struct {
	// Executable is the program to run (looked up in PATH), e.g. "docker".
	Executable string

	// Args is the argument vector, excluding the executable itself.
	Args []string

	// Dir is the working directory of the child process. Empty means the
	// current working directory.
	Dir string

	// Env holds extra environment variables in "KEY=VALUE" form, appended
	// to the inherited environment.
	Env []string
}

// Argv returns the executable followed by its arguments.
func (i Invocation) Argv() []string {
	argv := make([]string, 0, len(i.Args)+1)
	argv = append(argv, i.Executable)
	return append(argv, i.Args...)
}

// String renders the invocation as a single POSIX shell command line.
// Arguments containing shell metacharacters are single-quoted, so the
// output can be pasted into a terminal and run as-is.
func (i Invocation) String() string {
	return shellescape.QuoteCommand(i.Argv())
}

// ShellQuote quotes a single argument for a POSIX shell. Safe words are
// returned unchanged; everything else is wrapped in single quotes.
//
//	ShellQuote("linux/amd64")  → linux/amd64
//	ShellQuote("a b")          → 'a b'
//	ShellQuote("")             → ''
func ShellQuote(s string) string {
	return shellescape.Quote(s)
}
