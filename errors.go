// ==========================================================================
//
// File Name:  errors.go
//
// ==========================================================================

package srcml

import (
	"github.com/pkg/errors"
)

// Sentinel errors for the library error taxonomy. Boundary functions return
// these directly or wrapped with context; callers test with errors.Is (the
// pkg/errors Cause chain unwraps cleanly through the standard helpers).
var (
	// ErrInvalidArgument reports a nil or empty identifier where one is required.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidIOOperation reports a call against an archive in the wrong role,
	// such as writing to a reader archive or a second open.
	ErrInvalidIOOperation = errors.New("invalid I/O operation")

	// ErrInvalidInput reports a structural precondition failure, such as an
	// element write before a unit has been started.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsetLanguage reports a unit with no language and none inferrable.
	ErrUnsetLanguage = errors.New("unset language")

	// ErrUnsupportedEncoding reports an encoding name with no handler.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrExtensionConflict reports an invalid file extension registration.
	ErrExtensionConflict = errors.New("extension conflict")

	// ErrNamespaceConflict reports a reserved prefix bound to a foreign URI.
	ErrNamespaceConflict = errors.New("namespace conflict")

	// ErrParse reports malformed XML on read or malformed markup on write.
	ErrParse = errors.New("parse error")

	// ErrTransform reports a failed transformation.
	ErrTransform = errors.New("transform error")
)

// Process exit codes used by the command-line driver.
const (
	ExitSuccess            = 0
	ExitError              = 1
	ExitUnknownOption      = 3
	ExitInvalidLanguage    = 6
	ExitMissingOptionValue = 7
	ExitConflictingOptions = 15
)

// ExitCode maps a library error to the driver exit code.
func ExitCode(err error) int {

	if err == nil {
		return ExitSuccess
	}

	switch errors.Cause(err) {
	case ErrUnsetLanguage:
		return ExitInvalidLanguage
	default:
		return ExitError
	}
}
