package portal

import "fmt"

// FetchErrorKind classifies fatal retrieval failures.
type FetchErrorKind int

const (
	// FetchEmptyPlan means the portal answered but listed no lines.
	FetchEmptyPlan FetchErrorKind = iota
	// FetchUnparseable means a portal response could not be decoded into the
	// expected shape.
	FetchUnparseable
	// FetchSessionLost means the session expired and could not be
	// re-established within the one-re-authentication budget.
	FetchSessionLost
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchEmptyPlan:
		return "empty plan"
	case FetchUnparseable:
		return "unparseable response"
	case FetchSessionLost:
		return "session lost"
	default:
		return fmt.Sprintf("fetch error (%d)", int(k))
	}
}

// FetchError reports a failure that aborts the run, naming the endpoint
// (and line, when per-line) that caused it.
type FetchError struct {
	Kind     FetchErrorKind
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint)
}

func (e *FetchError) Unwrap() error { return e.Err }
