package main

import (
	"errors"
	"fmt"
	"io"

	"csvsplit/internal/splitter"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

// usageError marks bad arguments or configuration detected before any work.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue),
		errors.Is(err, splitter.ErrConfiguration),
		errors.Is(err, splitter.ErrInputNotFound):
		return exitUsage
	default:
		return exitFailure
	}
}

func report(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintf(w, "csvsplit: %v\n", err)
	}
}
