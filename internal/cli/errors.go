package cli

import (
	"errors"

	"github.com/kem-a/e-webapp/internal/toolexec"
)

// UsageError reports wrong command-line arguments. Nothing has been done
// when it is returned.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "Usage: " + e.Usage
}

// ExitCode maps an error to a process exit status: the failing tool's
// status when known, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return 1
	}
	if code, ok := toolexec.ExitCode(err); ok {
		return code
	}
	return 1
}
