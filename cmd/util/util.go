package util

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/deploy-v1/pkg/errors"
)

// friendlyError is an error that can be printed to the user without any
// additional context.
type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError prints the given error and exits with a non-zero exit
// code. Errors that carry a user-facing message are printed directly; all
// others are printed with their full context chain.
func HandleFatalError(err error) {
	if friendly, ok := errors.RootCause(err).(friendlyError); ok {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	}
	os.Exit(1)
}

// HandlePanic recovers from panics in the main process so that we can exit
// with a sensible error message rather than a raw stack trace.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	log.WithField("panic", r).Error("Unexpected crash")
	os.Exit(1)
}
