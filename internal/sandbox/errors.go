package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCode is returned for blank snippets.
	ErrEmptyCode = errors.New("Empty code")

	// ErrForbidden is matched by ForbiddenError.
	ErrForbidden = errors.New("forbidden")

	// ErrResultType is returned when a snippet produces something other than a table.
	ErrResultType = errors.New("Result must be a table")

	// ErrTimeout is returned when a snippet exceeds the executor timeout.
	ErrTimeout = errors.New("execution timed out")
)

// deniedTerms are rejected anywhere in a snippet, before interpretation.
// The interpreter cannot resolve most of them anyway; the scan gives the
// model a clear error naming the term.
var deniedTerms = []string{
	// process termination
	"os.Exit", "exit(", "quit(", "sys.exit",
	// shell and subprocesses
	"os/exec", "exec.Command", "os.system", "subprocess", "syscall",
	// dynamic loading and nested evaluation
	"plugin", "__import__", "eval(", "exec(",
	// raw file handles
	"os.Open", "os.Create", "os.Remove", "open(",
	// escape hatches
	"unsafe", "runtime.", "net/",
}

// ForbiddenError reports a denied term or import found in a snippet.
type ForbiddenError struct {
	Term   string
	Import bool
}

func (e *ForbiddenError) Error() string {
	if e.Import {
		return fmt.Sprintf("Forbidden import: %s", e.Term)
	}
	return fmt.Sprintf("Forbidden keyword: %s", e.Term)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}
