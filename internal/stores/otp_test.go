package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/privora/privauth/internal"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *ChallengeStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewChallengeStore(client, "tst")
}

func freezeClock(store *ChallengeStore) (func(time.Duration), time.Time) {
	base := time.Now()
	offset := time.Duration(0)
	store.Now = func() time.Time { return base.Add(offset) }
	return func(d time.Duration) { offset += d }, base
}

func TestChallengeIssueAndVerify(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	live, err := store.Live(ctx, "acct-1")
	if err != nil || !live {
		t.Fatalf("expected live challenge, live=%v err=%v", live, err)
	}

	if err := store.Verify(ctx, "acct-1", hash, 5); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// Consumed: gone from the challenge key.
	if err := store.Verify(ctx, "acct-1", hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after consumption, got %v", err)
	}
}

func TestChallengeVerifyUnknownAccount(t *testing.T) {
	_, store := newTestStore(t)

	err := store.Verify(context.Background(), "ghost", internal.HashCode("123456"), 5)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeAttemptCounterPersists(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	good := internal.HashCode("123456")
	bad := internal.HashCode("654321")

	if err := store.Issue(ctx, "acct-1", good, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Every wrong guess up to and including the ceiling reports a mismatch.
	const maxAttempts = 5
	for i := 1; i <= maxAttempts; i++ {
		if err := store.Verify(ctx, "acct-1", bad, maxAttempts); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
	}

	// With the counter at the ceiling, further guesses fail AttemptsExceeded.
	if err := store.Verify(ctx, "acct-1", bad, maxAttempts); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded past ceiling, got %v", err)
	}

	// Ceiling is sticky; the correct code no longer helps.
	if err := store.Verify(ctx, "acct-1", good, maxAttempts); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded for correct code after ceiling, got %v", err)
	}
}

func TestChallengeLogicalExpiry(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	advance, _ := freezeClock(store)

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	advance(11 * time.Minute)
	mr.FastForward(11 * time.Minute)

	// Physical key survives past the logical TTL, so expiry is reported as
	// such rather than as not-found.
	if err := store.Verify(ctx, "acct-1", hash, 5); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	// Once the retention window lapses the record is really gone.
	advance(expiredRetention)
	mr.FastForward(expiredRetention)
	if err := store.Verify(ctx, "acct-1", hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after retention, got %v", err)
	}
}

func TestChallengeIssueReplacesAndClearsProof(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	first := internal.HashCode("111111")
	if err := store.Issue(ctx, "acct-1", first, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Verify(ctx, "acct-1", first, 5); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// A new issue discards the unconsumed proof of the previous round.
	second := internal.HashCode("222222")
	if err := store.Issue(ctx, "acct-1", second, 10*time.Minute); err != nil {
		t.Fatalf("reissue failed: %v", err)
	}

	if _, err := store.ConsumeProof(ctx, "acct-1", first); !errors.Is(err, ErrProofRequired) {
		t.Fatalf("expected stale proof discarded, got %v", err)
	}

	// And the first code is dead against the new challenge.
	if err := store.Verify(ctx, "acct-1", first, 5); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch for replaced code, got %v", err)
	}
}

func TestReissueCooldown(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	advance, _ := freezeClock(store)

	hash := internal.HashCode("111111")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	next := internal.HashCode("222222")
	err := store.Reissue(ctx, "acct-1", next, 10*time.Minute, 30*time.Second)
	if !errors.Is(err, ErrResendTooSoon) {
		t.Fatalf("expected ErrResendTooSoon, got %v", err)
	}

	advance(31 * time.Second)

	if err := store.Reissue(ctx, "acct-1", next, 10*time.Minute, 30*time.Second); err != nil {
		t.Fatalf("Reissue after cooldown failed: %v", err)
	}

	if err := store.Verify(ctx, "acct-1", next, 5); err != nil {
		t.Fatalf("Verify with reissued code failed: %v", err)
	}
}

func TestReissueWithoutPriorIssue(t *testing.T) {
	_, store := newTestStore(t)

	err := store.Reissue(context.Background(), "ghost", internal.HashCode("111111"), 10*time.Minute, 30*time.Second)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestConsumeProofSingleUse(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Verify(ctx, "acct-1", hash, 5); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	accountID, err := store.ConsumeProof(ctx, "acct-1", hash)
	if err != nil {
		t.Fatalf("ConsumeProof failed: %v", err)
	}
	if accountID != "acct-1" {
		t.Fatalf("expected consumed account acct-1, got %q", accountID)
	}

	if _, err := store.ConsumeProof(ctx, "acct-1", hash); !errors.Is(err, ErrProofRequired) {
		t.Fatalf("expected ErrProofRequired on second consume, got %v", err)
	}
}

func TestConsumeProofMismatchLeavesMarker(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	good := internal.HashCode("123456")
	bad := internal.HashCode("654321")

	if err := store.Issue(ctx, "acct-1", good, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Verify(ctx, "acct-1", good, 5); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if _, err := store.ConsumeProof(ctx, "acct-1", bad); !errors.Is(err, ErrProofMismatch) {
		t.Fatalf("expected ErrProofMismatch, got %v", err)
	}

	// The genuine proof still redeems.
	if _, err := store.ConsumeProof(ctx, "acct-1", good); err != nil {
		t.Fatalf("ConsumeProof after mismatch failed: %v", err)
	}
}

func TestConsumeProofWithoutVerify(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := store.ConsumeProof(ctx, "acct-1", hash); !errors.Is(err, ErrProofRequired) {
		t.Fatalf("expected ErrProofRequired without a prior verify, got %v", err)
	}
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const workers = 4
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- store.Verify(ctx, "acct-1", hash, 5)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrChallengeNotFound) {
			t.Fatalf("expected nil or ErrChallengeNotFound, got %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one successful verify, got %d", success)
	}
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	record := &ChallengeRecord{
		AccountID: "acct-1",
		CodeHash:  internal.HashCode("123456"),
		IssuedAt:  1700000000,
		ExpiresAt: 1700000600,
		Attempts:  3,
	}

	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeChallengeRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.AccountID != record.AccountID ||
		decoded.CodeHash != record.CodeHash ||
		decoded.IssuedAt != record.IssuedAt ||
		decoded.ExpiresAt != record.ExpiresAt ||
		decoded.Attempts != record.Attempts {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, record)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	record := &ChallengeRecord{AccountID: "a", CodeHash: internal.HashCode("1")}
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	encoded[0] = 99

	if _, err := decodeChallengeRecord(encoded); err == nil {
		t.Fatal("expected version error")
	}
}

func TestRedisOutageSurfacesUnavailable(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	hash := internal.HashCode("123456")
	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.Close()

	if err := store.Issue(ctx, "acct-1", hash, 10*time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on issue, got %v", err)
	}
	if err := store.Verify(ctx, "acct-1", hash, 5); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on verify, got %v", err)
	}
	if _, err := store.ConsumeProof(ctx, "acct-1", hash); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on consume, got %v", err)
	}
}
