package privauth

import "errors"

var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or with a required dependency missing.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrValidation covers malformed input rejected before any store access.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is the uniform login failure. Unknown email and
	// wrong password deliberately share it unless Policy.RevealUnknownEmail
	// is set.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for every session-token validation failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is only surfaced to callers when
	// Policy.RevealUnknownEmail is enabled.
	ErrUserNotFound = errors.New("no account with that email")
	// ErrDuplicateEmail rejects registration with an already-taken email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrWeakPassword rejects a password failing the strength policy, at
	// registration and again at reset confirmation.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrCodeInvalid is a wrong or stale code against a live challenge.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired is a code submitted after the challenge TTL; no further
	// attempts are possible even with the right code.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrChallengeNotFound means no recovery is in flight for the account.
	ErrChallengeNotFound = errors.New("no verification code outstanding")
	// ErrTooManyAttempts is the hard attempt ceiling on one challenge.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrResendTooSoon enforces the minimum interval between code sends.
	ErrResendTooSoon = errors.New("verification code resent too recently")
	// ErrRateLimited caps recovery requests per identifier or IP.
	ErrRateLimited = errors.New("recovery rate limited")
	// ErrPreconditionFailed means a stage was called out of order, e.g.
	// reset-password without a prior successful verify.
	ErrPreconditionFailed = errors.New("recovery stage precondition failed")
	// ErrDependencyUnavailable wraps store or transport outages; the detail
	// stays in logs, never in user-facing responses.
	ErrDependencyUnavailable = errors.New("backend dependency unavailable")

	// ErrAccountNotFound and ErrAccountExists form the AccountProvider
	// contract: implementations return these, the engine maps them.
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)
