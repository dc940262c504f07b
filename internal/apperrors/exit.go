package apperrors

import "errors"

// Process exit codes.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitArtifactMissing = 3
)

// exitCoder is implemented by errors that carry a subprocess return code.
type exitCoder interface {
	ExitCode() int
}

// ExitCode maps an error to the process exit code.
// A subprocess return code found in the cause chain is mirrored as-is.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch {
	case errors.Is(err, ErrValidation):
		return ExitUsage
	case errors.Is(err, ErrArtifactMissing):
		return ExitArtifactMissing
	}
	var coded exitCoder
	if errors.As(err, &coded) && coded.ExitCode() > 0 {
		return coded.ExitCode()
	}
	return ExitFailure
}
