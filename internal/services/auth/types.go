package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Error taxonomy for the login flow. Adapters classify raw backend failures
// into these sentinels at the boundary; the core never inspects message text.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrMemberNotFound       = errors.New("member number not found or inactive")
	ErrNetworkTransient     = errors.New("network error")
	ErrInvalidCredentials   = errors.New("invalid login credentials")
	ErrSignupFailed         = errors.New("failed to create account")
	ErrNoSessionEstablished = errors.New("no session established")
	ErrEmailNotConfirmed    = errors.New("email not confirmed")
	ErrOperationInProgress  = errors.New("another session operation is in progress")
)

type TokenSet struct {
	AccessToken  string
	RefreshToken string
}

// Session is the authenticated context for one user. At most one live
// session exists per process; the Manager is its only writer.
type Session struct {
	UserID    uuid.UUID
	Tokens    TokenSet
	ExpiresAt time.Time

	// Raw carries the backend-specific session handle, opaque to the core.
	Raw any
}

type Credentials struct {
	Principal string
	Secret    string
}

type LoginStatus string

const (
	LoginStatusSessionEstablished   LoginStatus = "session_established"
	LoginStatusAwaitingVerification LoginStatus = "awaiting_verification"
)

type LoginResult struct {
	Status  LoginStatus
	Session *Session
	UserID  uuid.UUID
}

// UserMessage maps a login error onto the text shown to the user. Raw
// backend error strings are logged, never displayed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMemberNotFound):
		return "Member number not found or inactive"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid member number. Please try again."
	case errors.Is(err, ErrEmailNotConfirmed):
		return "Please verify your email before logging in"
	case errors.Is(err, ErrNetworkTransient):
		return "Network error. Please check your connection and try again."
	case errors.Is(err, ErrSignupFailed):
		return "Failed to create your account. Please try again later."
	case errors.Is(err, ErrNoSessionEstablished):
		return "Login did not establish a session. Please try again."
	case errors.Is(err, ErrOperationInProgress):
		return "A login is already in progress"
	case errors.Is(err, ErrInvalidInput):
		return "Please enter your member number"
	default:
		return "An unexpected error occurred"
	}
}
