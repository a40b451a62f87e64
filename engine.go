package privauth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/privora/privauth/internal/audit"
	"github.com/privora/privauth/internal/limiters"
	"github.com/privora/privauth/internal/stores"
	"github.com/privora/privauth/jwt"
	"github.com/privora/privauth/mail"
	"github.com/privora/privauth/password"
)

// Engine owns the server side of the account lifecycle: registration, login,
// session validation, and the OTP-backed recovery protocol. Instances are
// built once through Builder.Build and are then safe for concurrent use.
//
// The engine is the sole authority on recovery stage ordering. Whatever a
// client believes about its own progress, reset-password succeeds only when a
// code was verified against the live challenge first.
type Engine struct {
	config Config

	provider        AccountProvider
	passwordHash    *password.Hasher
	jwtManager      *jwt.Manager
	resetStore      *stores.ChallengeStore
	verifyStore     *stores.ChallengeStore
	recoveryLimiter *limiters.RecoveryLimiter
	mailer          mail.Mailer
	audit           *audit.Dispatcher

	// dummyHash is verified against on unknown-email logins so the two
	// failure paths cost the same.
	dummyHash string

	now func() time.Time
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded due to a full
// buffer since the engine was built.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) ready() error {
	if e == nil || e.provider == nil || e.passwordHash == nil || e.jwtManager == nil || e.resetStore == nil {
		return ErrEngineNotReady
	}
	return nil
}

// normalizeEmail is applied to every email before validation, lookup, or
// storage; uniqueness is case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func (e *Engine) lookupByEmail(ctx context.Context, email string) (Account, error) {
	account, err := e.provider.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrAccountNotFound
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Account{}, err
		}
		return Account{}, errors.Join(ErrDependencyUnavailable, err)
	}
	return account, nil
}

func (e *Engine) checkRecoveryThrottle(ctx context.Context, email string) error {
	if e.recoveryLimiter == nil {
		return nil
	}
	err := e.recoveryLimiter.CheckRequest(ctx, email, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrRateLimited) {
		return ErrRateLimited
	}
	return errors.Join(ErrDependencyUnavailable, err)
}

// sendCode dispatches a plaintext code by mail. Delivery failure never fails
// the enclosing operation; it is audited so operators can tell a lost mail
// from a never-issued code.
func (e *Engine) sendCode(ctx context.Context, account Account, purpose, subject, body string) {
	if e.mailer == nil {
		return
	}
	err := e.mailer.Send(ctx, mail.Message{
		To:      account.Email,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		e.emitMailFailure(ctx, account.ID, account.Email, purpose, err)
	}
}
