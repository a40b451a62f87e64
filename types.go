package privauth

import (
	"context"
	"time"
)

// Account is the durable credential record. The password is held only as a
// one-way argon2id hash; the hash is mutated solely by a successful reset.
type Account struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// Summary is the public view of an account, safe to return over the API.
func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// AccountSummary is what login, register, and getMe return.
type AccountSummary struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AccountProvider is the credential store interface callers implement to
// integrate their database. Emails passed in are already normalized
// (trimmed, lowercased); lookups must treat them case-insensitively.
//
// Implementations return ErrAccountNotFound / ErrAccountExists for the
// expected conditions and arbitrary errors for outages; the engine maps the
// latter to ErrDependencyUnavailable.
type AccountProvider interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, account Account) error
	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}
