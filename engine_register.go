package privauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privora/privauth/internal"
	"github.com/privora/privauth/internal/stores"
)

// RegisterInput carries the fields of a signup request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// RegisterResult is the successful outcome of Register: the stored account's
// public view plus a freshly minted session token.
type RegisterResult struct {
	Account AccountSummary
	Token   string
}

// Register creates an account, hashes the password with argon2id, and logs
// the new account in. When email verification is enabled a verification code
// is issued and mailed; the account stays usable while unverified.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	if err := e.ready(); err != nil {
		return RegisterResult{}, err
	}

	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)

	if email == "" || name == "" || input.Password == "" {
		return RegisterResult{}, fmt.Errorf("%w: email, name, and password are required", ErrValidation)
	}
	if !validEmail(email) {
		return RegisterResult{}, fmt.Errorf("%w: malformed email address", ErrValidation)
	}
	if !e.config.PasswordPolicy.Check(input.Password) {
		return RegisterResult{}, ErrWeakPassword
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
	}

	if err := e.provider.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.emitAudit(ctx, auditEventRegister, false, "", email, ErrDuplicateEmail, nil)
			return RegisterResult{}, ErrDuplicateEmail
		}
		return RegisterResult{}, errors.Join(ErrDependencyUnavailable, err)
	}

	token, err := e.jwtManager.CreateSession(account.ID)
	if err != nil {
		return RegisterResult{}, err
	}

	if e.verifyStore != nil {
		if err := e.issueVerificationCode(ctx, account); err != nil {
			// The account exists and the session is valid; verification can
			// be retried. Audit and move on.
			e.emitAudit(ctx, auditEventRegister, true, account.ID, email, err, map[string]string{
				"verification_issued": "false",
			})
			return RegisterResult{Account: account.Summary(), Token: token}, nil
		}
	}

	e.emitAudit(ctx, auditEventRegister, true, account.ID, email, nil, nil)

	return RegisterResult{Account: account.Summary(), Token: token}, nil
}

func (e *Engine) issueVerificationCode(ctx context.Context, account Account) error {
	code, err := internal.NewOTP(e.config.Verification.Digits)
	if err != nil {
		return err
	}

	err = e.verifyStore.Issue(ctx, account.ID, internal.HashCode(code), e.config.Verification.TTL)
	if err != nil {
		return errors.Join(ErrDependencyUnavailable, err)
	}

	e.sendCode(ctx, account, "email_verification",
		"Verify your email address",
		fmt.Sprintf("Hi %s,\n\nYour email verification code is %s. It expires in %s.\n\nIf you did not create this account, ignore this message.\n",
			account.Name, code, formatTTL(e.config.Verification.TTL)))

	return nil
}

// VerifyEmail redeems an email-verification code and marks the account
// verified. The code is single-use and shares the attempt ceiling semantics
// of the reset challenge.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.verifyStore == nil {
		return fmt.Errorf("%w: email verification is disabled", ErrValidation)
	}

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	if email == "" || code == "" {
		return fmt.Errorf("%w: email and code are required", ErrValidation)
	}
	if len(code) != e.config.Verification.Digits || !internal.IsDigits(code) {
		return fmt.Errorf("%w: code must be %d digits", ErrValidation, e.config.Verification.Digits)
	}

	account, err := e.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	err = e.verifyStore.Verify(ctx, account.ID, internal.HashCode(code), e.config.Verification.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err)
		e.emitAudit(ctx, auditEventEmailVerify, false, account.ID, email, mapped, nil)
		return mapped
	}

	if err := e.provider.MarkEmailVerified(ctx, account.ID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrCodeInvalid
		}
		return errors.Join(ErrDependencyUnavailable, err)
	}

	e.emitAudit(ctx, auditEventEmailVerify, true, account.ID, email, nil, nil)

	return nil
}

// ResendVerificationCode issues a fresh verification code for an account that
// registered but never verified. Subject to the recovery throttle and the
// per-challenge resend cooldown.
func (e *Engine) ResendVerificationCode(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.verifyStore == nil {
		return fmt.Errorf("%w: email verification is disabled", ErrValidation)
	}

	email = normalizeEmail(email)
	if email == "" || !validEmail(email) {
		return fmt.Errorf("%w: a valid email is required", ErrValidation)
	}

	if err := e.checkRecoveryThrottle(ctx, email); err != nil {
		return err
	}

	account, err := e.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Indistinguishable from success unless policy says otherwise.
			if e.config.Policy.RevealUnknownEmail {
				return ErrUserNotFound
			}
			return nil
		}
		return err
	}
	if account.EmailVerified {
		return nil
	}

	code, err := internal.NewOTP(e.config.Verification.Digits)
	if err != nil {
		return err
	}

	err = e.verifyStore.Reissue(ctx, account.ID, internal.HashCode(code), e.config.Verification.TTL, e.config.Reset.ResendCooldown)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			// No verification in flight; start one.
			if err := e.issueVerificationCode(ctx, account); err != nil {
				return err
			}
			return nil
		}
		return mapChallengeError(err)
	}

	e.sendCode(ctx, account, "email_verification",
		"Verify your email address",
		fmt.Sprintf("Hi %s,\n\nYour new email verification code is %s. It expires in %s.\n",
			account.Name, code, formatTTL(e.config.Verification.TTL)))

	return nil
}

func formatTTL(ttl time.Duration) string {
	if ttl >= time.Hour && ttl%time.Hour == 0 {
		hours := int(ttl / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(ttl / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// mapChallengeError translates store sentinels into the engine's public
// error vocabulary.
func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrChallengeNotFound
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrAttemptsExceeded):
		return ErrTooManyAttempts
	case errors.Is(err, stores.ErrCodeMismatch):
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrResendTooSoon):
		return ErrResendTooSoon
	case errors.Is(err, stores.ErrProofRequired):
		return ErrPreconditionFailed
	case errors.Is(err, stores.ErrProofMismatch):
		return ErrCodeInvalid
	default:
		return errors.Join(ErrDependencyUnavailable, err)
	}
}
