package client

import (
	"context"
	"errors"
	"sync"
)

// Stage is a recovery flow position. The zero value is StageIdle.
type Stage int

const (
	StageIdle Stage = iota
	StageRequested
	StageCodeVerified
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageRequested:
		return "requested"
	case StageCodeVerified:
		return "code_verified"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrWrongStage is returned when an operation is called out of order, e.g.
// Reset before a successful Verify. The server enforces ordering on its own;
// this error just saves a round trip that would come back 412.
var ErrWrongStage = errors.New("operation not valid in current recovery stage")

// RecoveryFlow drives one password recovery from the client side. It holds
// nothing but the email, the current stage, and the code once verified; all
// actual state (attempts, expiry, consumption) lives on the server. The stage
// advances only on a definitive success response, so a failed or lost request
// leaves the flow exactly where it was.
//
// Safe for concurrent use, though a recovery is naturally sequential.
type RecoveryFlow struct {
	client *Client

	mu    sync.Mutex
	email string
	stage Stage

	// verifiedCode is retained between Verify and Reset; the server demands
	// the same code at both steps.
	verifiedCode string
}

// NewRecoveryFlow returns a flow in StageIdle.
func NewRecoveryFlow(c *Client) *RecoveryFlow {
	return &RecoveryFlow{client: c}
}

// Stage returns the current position of the flow.
func (f *RecoveryFlow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Email returns the email the flow is recovering, empty in StageIdle.
func (f *RecoveryFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Request starts (or restarts) a recovery for email. Valid from any stage:
// starting over with a new request simply re-enters StageRequested, matching
// the server's replace-on-reissue behavior.
func (f *RecoveryFlow) Request(ctx context.Context, email string) error {
	if err := f.client.ForgotPassword(ctx, email); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
	f.stage = StageRequested
	f.verifiedCode = ""
	return nil
}

// Verify submits the code the user received. Valid only in StageRequested.
// On success the flow advances to StageCodeVerified and retains the code for
// Reset.
func (f *RecoveryFlow) Verify(ctx context.Context, code string) error {
	f.mu.Lock()
	if f.stage != StageRequested {
		f.mu.Unlock()
		return ErrWrongStage
	}
	email := f.email
	f.mu.Unlock()

	if err := f.client.VerifyOTP(ctx, email, code); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Only advance if the flow was not restarted while the request was in
	// flight.
	if f.stage == StageRequested && f.email == email {
		f.stage = StageCodeVerified
		f.verifiedCode = code
	}
	return nil
}

// Resend asks for a replacement code. Valid only in StageRequested; the stage
// does not change.
func (f *RecoveryFlow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.stage != StageRequested {
		f.mu.Unlock()
		return ErrWrongStage
	}
	email := f.email
	f.mu.Unlock()

	return f.client.ResendOTP(ctx, email)
}

// Reset completes the recovery with the new password. Valid only in
// StageCodeVerified. On success the flow reaches StageCompleted and the
// retained code is discarded.
func (f *RecoveryFlow) Reset(ctx context.Context, newPassword string) error {
	f.mu.Lock()
	if f.stage != StageCodeVerified {
		f.mu.Unlock()
		return ErrWrongStage
	}
	email := f.email
	code := f.verifiedCode
	f.mu.Unlock()

	if err := f.client.ResetPassword(ctx, email, code, newPassword); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stage == StageCodeVerified && f.email == email {
		f.stage = StageCompleted
		f.verifiedCode = ""
	}
	return nil
}

// Cancel abandons the flow and returns it to StageIdle. The server-side
// challenge, if any, simply expires on its own.
func (f *RecoveryFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = ""
	f.stage = StageIdle
	f.verifiedCode = ""
}
