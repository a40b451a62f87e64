package privauth

import (
	"context"
	"errors"
	"fmt"
)

// LoginResult is a successful authentication: the account's public view and a
// session token.
type LoginResult struct {
	Account AccountSummary
	Token   string
}

// Login authenticates an email/password pair and mints a session token.
// Unknown email and wrong password both return ErrInvalidCredentials, and the
// unknown-email path still performs an argon2 verification so the two are not
// separable by response time.
func (e *Engine) Login(ctx context.Context, email, candidate string) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}

	email = normalizeEmail(email)
	if email == "" || candidate == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	account, err := e.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_, _ = e.passwordHash.Verify(candidate, e.dummyHash)
			e.emitAudit(ctx, auditEventLogin, false, "", email, ErrInvalidCredentials, nil)
			if e.config.Policy.RevealUnknownEmail {
				return LoginResult{}, ErrUserNotFound
			}
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	match, err := e.passwordHash.Verify(candidate, account.PasswordHash)
	if err != nil {
		// A stored hash we cannot parse is an operational fault, not a bad
		// password.
		return LoginResult{}, errors.Join(ErrDependencyUnavailable, err)
	}
	if !match {
		e.emitAudit(ctx, auditEventLogin, false, account.ID, email, ErrInvalidCredentials, nil)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := e.jwtManager.CreateSession(account.ID)
	if err != nil {
		return LoginResult{}, err
	}

	e.emitAudit(ctx, auditEventLogin, true, account.ID, email, nil, nil)

	return LoginResult{Account: account.Summary(), Token: token}, nil
}

// CurrentAccount validates a session token and returns the account it names.
// Every failure mode, from a garbled token to a deleted account, collapses to
// ErrUnauthorized.
func (e *Engine) CurrentAccount(ctx context.Context, token string) (AccountSummary, error) {
	if err := e.ready(); err != nil {
		return AccountSummary{}, err
	}
	if token == "" {
		return AccountSummary{}, ErrUnauthorized
	}

	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		return AccountSummary{}, ErrUnauthorized
	}

	account, err := e.provider.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AccountSummary{}, ErrUnauthorized
		}
		return AccountSummary{}, errors.Join(ErrDependencyUnavailable, err)
	}

	return account.Summary(), nil
}
