// Package stores holds the redis-backed ledgers owned by the engine. Records
// are binary-encoded and every conditional update runs under WATCH so that
// concurrent requests for the same account serialize: at most one live
// challenge exists per account, attempt counters never lose increments, and
// consumption is a one-way transition.
package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/privora/privauth/internal"
)

const challengeRecordVersionV1 = 1

// Physical redis TTLs outlive the logical expiry so an expired challenge is
// still distinguishable from one that never existed.
const expiredRetention = time.Hour

var (
	ErrChallengeNotFound = errors.New("otp challenge not found")
	ErrCodeMismatch      = errors.New("otp code mismatch")
	ErrCodeExpired       = errors.New("otp challenge expired")
	ErrAttemptsExceeded  = errors.New("otp attempts exceeded")
	ErrResendTooSoon     = errors.New("otp resend too soon")
	ErrProofRequired     = errors.New("otp proof required")
	ErrProofMismatch     = errors.New("otp proof mismatch")
	ErrRedisUnavailable  = errors.New("otp redis unavailable")
)

// ChallengeRecord is one outstanding code for one account. The code itself is
// stored only as a hash.
type ChallengeRecord struct {
	AccountID string
	CodeHash  [32]byte
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore keeps the per-account challenge, its consumed-proof marker,
// and the last-issue timestamp used for resend throttling.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string

	// Now is the clock used for logical expiry and cooldown checks.
	// Overridable in tests.
	Now func() time.Time
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		Now:    time.Now,
	}
}

func (s *ChallengeStore) challengeKey(accountID string) string {
	return s.prefix + ":c:" + accountID
}

func (s *ChallengeStore) proofKey(accountID string) string {
	return s.prefix + ":p:" + accountID
}

func (s *ChallengeStore) issueKey(accountID string) string {
	return s.prefix + ":i:" + accountID
}

// Issue writes a fresh challenge for the account, replacing any live one and
// discarding any unconsumed proof. The single-key write makes replacement
// atomic with respect to concurrent verifies.
func (s *ChallengeStore) Issue(ctx context.Context, accountID string, codeHash [32]byte, ttl time.Duration) error {
	now := s.Now()
	record := &ChallengeRecord{
		AccountID: accountID,
		CodeHash:  codeHash,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Attempts:  0,
	}

	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.challengeKey(accountID), encoded, ttl+expiredRetention)
		pipe.Set(ctx, s.issueKey(accountID), now.Unix(), 24*time.Hour)
		pipe.Del(ctx, s.proofKey(accountID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Reissue behaves like Issue but only when a recovery is already in flight
// (an issue timestamp exists) and the cooldown since the last issue has
// elapsed. The WATCH on the issue timestamp makes two concurrent resends
// race-free: one wins, the other observes the new timestamp and fails TooSoon.
func (s *ChallengeStore) Reissue(ctx context.Context, accountID string, codeHash [32]byte, ttl, cooldown time.Duration) error {
	const maxRetries = 4
	issueKey := s.issueKey(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			lastIssued, err := tx.Get(ctx, issueKey).Int64()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrChallengeNotFound
				}
				return err
			}

			now := s.Now()
			if now.Sub(time.Unix(lastIssued, 0)) < cooldown {
				return ErrResendTooSoon
			}

			record := &ChallengeRecord{
				AccountID: accountID,
				CodeHash:  codeHash,
				IssuedAt:  now.Unix(),
				ExpiresAt: now.Add(ttl).Unix(),
				Attempts:  0,
			}
			encoded, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.challengeKey(accountID), encoded, ttl+expiredRetention)
				pipe.Set(ctx, issueKey, now.Unix(), 24*time.Hour)
				pipe.Del(ctx, s.proofKey(accountID))
				return nil
			})
			return err
		}, issueKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrResendTooSoon):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return nil
	}

	return ErrResendTooSoon
}

// Verify checks providedHash against the live challenge. A mismatch
// increments the attempt counter in place and fails CodeMismatch; once the
// counter has reached maxAttempts every further verify fails AttemptsExceeded
// until the challenge expires, correct code or not. On match the challenge is
// deleted and a proof marker is written, so a second verify with the same
// code fails NotFound.
func (s *ChallengeStore) Verify(ctx context.Context, accountID string, providedHash [32]byte, maxAttempts int) error {
	const maxRetries = 4
	key := s.challengeKey(accountID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrChallengeNotFound
				}
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := s.Now()
			if now.Unix() > record.ExpiresAt {
				return ErrCodeExpired
			}
			if int(record.Attempts) >= maxAttempts {
				return ErrAttemptsExceeded
			}

			if !internal.HashEqual(record.CodeHash, providedHash) {
				record.Attempts++
				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				retention := time.Until(time.Unix(record.ExpiresAt, 0).Add(expiredRetention))
				if retention <= 0 {
					return ErrCodeExpired
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, retention)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			proof := &ChallengeRecord{
				AccountID: accountID,
				CodeHash:  record.CodeHash,
				IssuedAt:  now.Unix(),
				ExpiresAt: record.ExpiresAt,
			}
			encodedProof, err := encodeChallengeRecord(proof)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Set(ctx, s.proofKey(accountID), encodedProof, time.Until(time.Unix(record.ExpiresAt, 0))+expiredRetention)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrChallengeNotFound),
				errors.Is(err, ErrCodeMismatch),
				errors.Is(err, ErrCodeExpired),
				errors.Is(err, ErrAttemptsExceeded):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return nil
	}

	return ErrChallengeNotFound
}

// ConsumeProof redeems the marker written by a successful Verify. The caller
// must present the same code hash; anything else leaves the marker in place
// so the genuinely verified code still works. On success the marker is
// deleted and the account ID of the consumed challenge is returned.
func (s *ChallengeStore) ConsumeProof(ctx context.Context, accountID string, providedHash [32]byte) (string, error) {
	const maxRetries = 4
	key := s.proofKey(accountID)

	for i := 0; i < maxRetries; i++ {
		var consumed string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrProofRequired
				}
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			if s.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrProofRequired
			}

			if !internal.HashEqual(record.CodeHash, providedHash) {
				return ErrProofMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record.AccountID
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrProofRequired), errors.Is(err, ErrProofMismatch):
				return "", err
			default:
				return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return consumed, nil
	}

	return "", ErrProofRequired
}

// Live reports whether an unconsumed, unexpired challenge exists for the
// account. Used by invariant tests and introspection, not by the flows.
func (s *ChallengeStore) Live(ctx context.Context, accountID string) (bool, error) {
	data, err := s.redis.Get(ctx, s.challengeKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return false, err
	}
	return s.Now().Unix() <= record.ExpiresAt, nil
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("challenge record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
