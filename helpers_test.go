package privauth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/privora/privauth/mail"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// testConfig keeps argon2 at the hard minimums so builds stay fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningKey = []byte("test-signing-key-0123456789abcdef")
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Verification.Enabled = false
	cfg.RecoveryThrottle.EnableIdentifierThrottle = false
	cfg.RecoveryThrottle.EnableIPThrottle = false
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, cfg Config) (*Engine, *memoryProvider, *mail.Recorder) {
	t.Helper()

	provider := newMemoryProvider()
	recorder := &mail.Recorder{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(provider).
		WithMailer(recorder).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, provider, recorder
}

func registerTestAccount(t *testing.T, engine *Engine, email, name, pass string) AccountSummary {
	t.Helper()

	result, err := engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Name:     name,
		Password: pass,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result.Account
}

var codePattern = regexp.MustCompile(`\b(\d{4,10})\b`)

// lastMailedCode pulls the OTP out of the most recent recorded message.
func lastMailedCode(t *testing.T, recorder *mail.Recorder) string {
	t.Helper()

	msg, ok := recorder.Last()
	if !ok {
		t.Fatal("expected a recorded mail message")
	}
	match := codePattern.FindStringSubmatch(msg.Body)
	if match == nil {
		t.Fatalf("no code found in mail body: %q", msg.Body)
	}
	return match[1]
}

func wrongCode(code string) string {
	if code == "" {
		return "000000"
	}
	replacement := byte('0')
	if code[0] == '0' {
		replacement = '1'
	}
	return string(replacement) + code[1:]
}

// memoryProvider is an in-memory AccountProvider for tests.
type memoryProvider struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail map[string]string

	// failAll simulates a database outage.
	failAll bool
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:    map[string]Account{},
		byEmail: map[string]string{},
	}
}

var errProviderDown = errors.New("provider down")

func (p *memoryProvider) GetByEmail(_ context.Context, email string) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return Account{}, errProviderDown
	}
	id, ok := p.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) GetByID(_ context.Context, id string) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return Account{}, errProviderDown
	}
	account, ok := p.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (p *memoryProvider) Create(_ context.Context, account Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errProviderDown
	}
	if _, ok := p.byEmail[account.Email]; ok {
		return ErrAccountExists
	}
	p.byID[account.ID] = account
	p.byEmail[account.Email] = account.ID
	return nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errProviderDown
	}
	account, ok := p.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = newHash
	p.byID[id] = account
	return nil
}

func (p *memoryProvider) MarkEmailVerified(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errProviderDown
	}
	account, ok := p.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.EmailVerified = true
	p.byID[id] = account
	return nil
}

func (p *memoryProvider) setOutage(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAll = down
}

func (p *memoryProvider) passwordHashOf(t *testing.T, email string) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[email]
	if !ok {
		t.Fatalf("no account for %s", email)
	}
	return p.byID[id].PasswordHash
}

// advance moves both the engine clock and the challenge store clocks, since
// miniredis does not tick TTLs on its own.
func advanceEngineClock(engine *Engine, mr *miniredis.Miniredis, d time.Duration) {
	mr.FastForward(d)
	base := time.Now()
	shifted := func() time.Time { return base.Add(d) }
	engine.now = shifted
	engine.resetStore.Now = shifted
	if engine.verifyStore != nil {
		engine.verifyStore.Now = shifted
	}
}
