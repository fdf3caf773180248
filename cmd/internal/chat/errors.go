package chat

import "errors"

// Sentinel errors forming the chat error taxonomy. The HTTP and WS
// boundaries map these to status codes; NotFound and Forbidden must stay
// distinguishable (404 vs 403).
var (
	ErrNotFound       = errors.New("chat: not found")
	ErrForbidden      = errors.New("chat: forbidden")
	ErrInvalidRequest = errors.New("chat: invalid request")

	// ErrConflict is returned by Store.InsertConversation when the
	// (listing, participant-pair) uniqueness constraint fires. The Service
	// resolves it by re-fetching; it never escapes to callers.
	ErrConflict = errors.New("chat: conversation already exists")
)

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether err represents ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsInvalidRequest reports whether err represents ErrInvalidRequest.
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }
