package directory

import "errors"

// Sentinel errors for directory lookups.
var (
	ErrNotFound = errors.New("directory: not found")
	ErrConflict = errors.New("directory: conflict")
)

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err represents ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
