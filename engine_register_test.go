package privauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRegisterSuccess(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, provider, _ := newTestEngine(t, rdb, testConfig())

	result, err := engine.Register(ctx, RegisterInput{
		Email:    "Alice@Example.com",
		Name:     "  Alice  ",
		Password: "Password1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if result.Account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Account.Email)
	}
	if result.Account.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", result.Account.Name)
	}
	if _, err := uuid.Parse(result.Account.ID); err != nil {
		t.Fatalf("expected UUID account id, got %q", result.Account.ID)
	}
	if result.Token == "" {
		t.Fatal("expected a session token from registration")
	}

	// The stored record carries a hash, never the password.
	stored := provider.passwordHashOf(t, "alice@example.com")
	if stored == "Password1" || stored == "" {
		t.Fatalf("expected argon2 hash in store, got %q", stored)
	}
	match, err := engine.passwordHash.Verify("Password1", stored)
	if err != nil || !match {
		t.Fatalf("stored hash does not verify, match=%v err=%v", match, err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, rdb, testConfig())

	registerTestAccount(t, engine, "alice@example.com", "Alice", "Password1")

	_, err := engine.Register(ctx, RegisterInput{
		Email:    "ALICE@example.com",
		Name:     "Alice Again",
		Password: "Password2",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, rdb, testConfig())

	cases := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"missing email", RegisterInput{Name: "A", Password: "Password1"}, ErrValidation},
		{"missing name", RegisterInput{Email: "a@b.co", Password: "Password1"}, ErrValidation},
		{"missing password", RegisterInput{Email: "a@b.co", Name: "A"}, ErrValidation},
		{"malformed email", RegisterInput{Email: "not-an-email", Name: "A", Password: "Password1"}, ErrValidation},
		{"short password", RegisterInput{Email: "a@b.co", Name: "A", Password: "Pw1"}, ErrWeakPassword},
		{"no uppercase", RegisterInput{Email: "a@b.co", Name: "A", Password: "password1"}, ErrWeakPassword},
		{"no digit", RegisterInput{Email: "a@b.co", Name: "A", Password: "Passwords"}, ErrWeakPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Register(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterIssuesVerificationCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Verification.Enabled = true
	engine, provider, recorder := newTestEngine(t, rdb, cfg)

	account := registerTestAccount(t, engine, "alice@example.com", "Alice", "Password1")
	if account.EmailVerified {
		t.Fatal("fresh account must start unverified")
	}

	code := lastMailedCode(t, recorder)

	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	updated, err := provider.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if !updated.EmailVerified {
		t.Fatal("expected account to be marked verified")
	}

	// Verification codes are single-use too.
	if err := engine.VerifyEmail(ctx, "alice@example.com", code); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on reused code, got %v", err)
	}
}

func TestVerifyEmailWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Verification.Enabled = true
	engine, _, recorder := newTestEngine(t, rdb, cfg)

	registerTestAccount(t, engine, "alice@example.com", "Alice", "Password1")
	code := lastMailedCode(t, recorder)

	if err := engine.VerifyEmail(ctx, "alice@example.com", wrongCode(code)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	// The right code still works after a failed guess.
	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyEmail after wrong guess failed: %v", err)
	}
}

func TestResendVerificationCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Verification.Enabled = true
	engine, _, recorder := newTestEngine(t, rdb, cfg)

	registerTestAccount(t, engine, "alice@example.com", "Alice", "Password1")
	firstCode := lastMailedCode(t, recorder)

	if err := engine.ResendVerificationCode(ctx, "alice@example.com"); !errors.Is(err, ErrResendTooSoon) {
		t.Fatalf("expected ErrResendTooSoon inside cooldown, got %v", err)
	}

	advanceEngineClock(engine, mr, cfg.Reset.ResendCooldown+time.Second)

	if err := engine.ResendVerificationCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ResendVerificationCode failed: %v", err)
	}
	secondCode := lastMailedCode(t, recorder)

	if firstCode != secondCode {
		if err := engine.VerifyEmail(ctx, "alice@example.com", firstCode); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("expected old verification code rejected, got %v", err)
		}
	}
	if err := engine.VerifyEmail(ctx, "alice@example.com", secondCode); err != nil {
		t.Fatalf("verify with resent code failed: %v", err)
	}
}

func TestResendVerificationUnknownEmailIsSilent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Verification.Enabled = true
	engine, _, recorder := newTestEngine(t, rdb, cfg)

	if err := engine.ResendVerificationCode(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}
	if msgs := recorder.Messages(); len(msgs) != 0 {
		t.Fatalf("expected no mail, got %d messages", len(msgs))
	}
}
