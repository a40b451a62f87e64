package privauth

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/privora/privauth/internal/audit"
	"github.com/privora/privauth/internal/limiters"
	"github.com/privora/privauth/internal/stores"
	"github.com/privora/privauth/jwt"
	"github.com/privora/privauth/mail"
	"github.com/privora/privauth/password"
)

// Builder assembles an Engine. Redis, an AccountProvider, and a JWT signing
// key are required; everything else has a sensible default.
//
//	engine, err := privauth.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithAccountProvider(provider).
//		WithMailer(mailer).
//		Build()
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	provider  AccountProvider
	mailer    mail.Mailer
	auditSink AuditSink
}

func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the default configuration wholesale. Call it before the
// other With* methods if both are used.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountProvider(provider AccountProvider) *Builder {
	b.provider = provider
	return b
}

// WithMailer sets the outbound mail transport. Without one, codes are issued
// and auditable but never delivered; useful in tests.
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink enables the async audit stream. A nil sink with auditing
// enabled falls back to a NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, fmt.Errorf("build engine: redis client is required")
	}
	if b.provider == nil {
		return nil, fmt.Errorf("build engine: account provider is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		SessionTTL: b.config.JWT.SessionTTL,
		SigningKey: b.config.JWT.SigningKey,
		Issuer:     b.config.JWT.Issuer,
		Leeway:     b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	// Hashed once up front; login verifies against it when the email is
	// unknown so both failure paths do comparable work.
	dummyHash, err := hasher.Hash("privauth-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	engine := &Engine{
		config:       b.config,
		provider:     b.provider,
		passwordHash: hasher,
		jwtManager:   jwtManager,
		resetStore:   stores.NewChallengeStore(b.redis, b.config.Reset.RedisPrefix),
		mailer:       b.mailer,
		dummyHash:    dummyHash,
		now:          time.Now,
	}

	if b.config.Verification.Enabled {
		engine.verifyStore = stores.NewChallengeStore(b.redis, b.config.Verification.RedisPrefix)
	}

	if b.config.RecoveryThrottle.EnableIdentifierThrottle || b.config.RecoveryThrottle.EnableIPThrottle {
		engine.recoveryLimiter = limiters.NewRecoveryLimiter(b.redis, limiters.RecoveryConfig{
			EnableIdentifierThrottle: b.config.RecoveryThrottle.EnableIdentifierThrottle,
			EnableIPThrottle:         b.config.RecoveryThrottle.EnableIPThrottle,
			Window:                   b.config.RecoveryThrottle.Window,
			MaxRequests:              b.config.RecoveryThrottle.MaxRequests,
		})
	}

	if b.config.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NoOpSink{}
		}
		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: b.config.Audit.BufferSize,
		}, sink)
	}

	return engine, nil
}
