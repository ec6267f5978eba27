package session

import "fmt"

// AuthErrorKind classifies authentication failures.
type AuthErrorKind int

const (
	// AuthInvalidCredentials means the portal rejected the supplied
	// username/password pair.
	AuthInvalidCredentials AuthErrorKind = iota
	// AuthProtocolMismatch means the login endpoint answered with something
	// this client does not recognize as either success or rejection.
	AuthProtocolMismatch
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthInvalidCredentials:
		return "invalid credentials"
	case AuthProtocolMismatch:
		return "protocol mismatch"
	default:
		return fmt.Sprintf("auth error (%d)", int(k))
	}
}

// AuthError reports a failed authentication attempt. It never carries the
// password.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrorKind classifies failures of authorized requests.
type ErrorKind int

const (
	// ErrExpired means the portal no longer accepts the session cookie.
	// The session has been transitioned to StateExpired; the caller decides
	// whether to re-authenticate.
	ErrExpired ErrorKind = iota
	// ErrTransport covers network failures and timeouts.
	ErrTransport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrExpired:
		return "session expired"
	case ErrTransport:
		return "transport failure"
	default:
		return fmt.Sprintf("session error (%d)", int(k))
	}
}

// Error reports a failed authorized request, naming the endpoint involved.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }
