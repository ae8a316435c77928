package rbac

import "errors"

// Expected negative outcomes are ordinary sentinel values checked with
// errors.Is; they are never wrapped into panics. Anything else that
// escapes these packages is a genuine system error.
var (
	// ErrNotFound means the role, assignment or subject does not exist.
	// Never conflated with a deny.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the check executed successfully and denied.
	ErrForbidden = errors.New("insufficient permission")

	// ErrConflict means a duplicate creation (role key or invite code
	// already exists). Distinct from NotFound/Forbidden so callers can
	// treat it as already-satisfied or retry with different input.
	ErrConflict = errors.New("already exists")

	// ErrUnavailable means the durable store was unreachable. Reads on
	// the authorization path convert this to a deny.
	ErrUnavailable = errors.New("store unavailable")

	// ErrMalformedKey means a permission key does not follow the
	// "{namespace}:{subjectId}:{action}" / "{namespace}:{action}"
	// grammar. This is a programmer error, not a deny.
	ErrMalformedKey = errors.New("malformed role key")
)
