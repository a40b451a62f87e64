package privauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/privora/privauth/internal"
)

// RequestPasswordReset starts a recovery: it issues a fresh 6-digit challenge
// for the account and mails the code. Re-requesting replaces any live
// challenge atomically, so exactly one code is ever redeemable per account.
//
// With the default policy an unknown email returns nil, indistinguishable
// from success, so the endpoint cannot be used to enumerate accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
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
			e.emitAudit(ctx, auditEventResetRequest, false, "", email, ErrUserNotFound, nil)
			if e.config.Policy.RevealUnknownEmail {
				return ErrUserNotFound
			}
			return nil
		}
		return err
	}

	code, err := internal.NewOTP(e.config.Reset.Digits)
	if err != nil {
		return err
	}

	if err := e.resetStore.Issue(ctx, account.ID, internal.HashCode(code), e.config.Reset.TTL); err != nil {
		return errors.Join(ErrDependencyUnavailable, err)
	}

	e.sendCode(ctx, account, "password_reset",
		"Your password reset code",
		fmt.Sprintf("Hi %s,\n\nYour password reset code is %s. It expires in %s.\n\nIf you did not request a reset, you can ignore this message; your password is unchanged.\n",
			account.Name, code, formatTTL(e.config.Reset.TTL)))

	e.emitAudit(ctx, auditEventResetRequest, true, account.ID, email, nil, nil)

	return nil
}

// VerifyResetCode checks a submitted code against the account's live
// challenge. On success the challenge is consumed and a proof is recorded
// server-side; the caller then passes the same code to ConfirmPasswordReset.
// A correct code submitted twice fails the second time, and five wrong
// guesses burn the challenge for good.
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	if email == "" || code == "" {
		return fmt.Errorf("%w: email and code are required", ErrValidation)
	}
	if len(code) != e.config.Reset.Digits || !internal.IsDigits(code) {
		return fmt.Errorf("%w: code must be %d digits", ErrValidation, e.config.Reset.Digits)
	}

	account, err := e.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// No challenge can exist for an unknown email; report it the
			// same way as any dead challenge.
			return ErrChallengeNotFound
		}
		return err
	}

	err = e.resetStore.Verify(ctx, account.ID, internal.HashCode(code), e.config.Reset.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err)
		e.emitAudit(ctx, auditEventResetVerify, false, account.ID, email, mapped, nil)
		return mapped
	}

	e.emitAudit(ctx, auditEventResetVerify, true, account.ID, email, nil, nil)

	return nil
}

// ResendResetCode replaces the outstanding challenge with a fresh code. It
// requires a recovery in flight (RequestPasswordReset was called) and at
// least the cooldown interval since the last send. The old code stops working
// the moment the new one is issued.
func (e *Engine) ResendResetCode(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
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
			if e.config.Policy.RevealUnknownEmail {
				return ErrUserNotFound
			}
			return nil
		}
		return err
	}

	code, err := internal.NewOTP(e.config.Reset.Digits)
	if err != nil {
		return err
	}

	err = e.resetStore.Reissue(ctx, account.ID, internal.HashCode(code), e.config.Reset.TTL, e.config.Reset.ResendCooldown)
	if err != nil {
		mapped := mapChallengeError(err)
		e.emitAudit(ctx, auditEventResetResend, false, account.ID, email, mapped, nil)
		return mapped
	}

	e.sendCode(ctx, account, "password_reset",
		"Your new password reset code",
		fmt.Sprintf("Hi %s,\n\nYour new password reset code is %s. It expires in %s. Any earlier code no longer works.\n",
			account.Name, code, formatTTL(e.config.Reset.TTL)))

	e.emitAudit(ctx, auditEventResetResend, true, account.ID, email, nil, nil)

	return nil
}

// ConfirmPasswordReset overwrites the account password. It succeeds only when
// the presented code matches the proof left behind by a successful
// VerifyResetCode for the same account; skipping the verify step, or reusing
// a proof a second time, fails with ErrPreconditionFailed regardless of what
// the client claims about its own progress.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	if email == "" || code == "" || newPassword == "" {
		return fmt.Errorf("%w: email, code, and new password are required", ErrValidation)
	}
	if len(code) != e.config.Reset.Digits || !internal.IsDigits(code) {
		return fmt.Errorf("%w: code must be %d digits", ErrValidation, e.config.Reset.Digits)
	}
	if !e.config.PasswordPolicy.Check(newPassword) {
		return ErrWeakPassword
	}

	account, err := e.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrPreconditionFailed
		}
		return err
	}

	consumedID, err := e.resetStore.ConsumeProof(ctx, account.ID, internal.HashCode(code))
	if err != nil {
		mapped := mapChallengeError(err)
		e.emitAudit(ctx, auditEventResetConfirm, false, account.ID, email, mapped, nil)
		return mapped
	}
	if consumedID != account.ID {
		return ErrPreconditionFailed
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.provider.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrPreconditionFailed
		}
		return errors.Join(ErrDependencyUnavailable, err)
	}

	e.emitAudit(ctx, auditEventResetConfirm, true, account.ID, email, nil, nil)

	return nil
}
