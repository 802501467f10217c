package goRecover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestVerifyEmailEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("192.0.2.10")

	if err := env.engine.Signup(ctx, "u@x.com", "long-enough-pw", "u"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := codeFrom(t, env.mail.next(t))

	if err := env.engine.VerifyEmail(ctx, "u@x.com", code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	env.provider.mu.Lock()
	calls := append([]SelectorToken(nil), env.provider.confirmCalls...)
	env.provider.mu.Unlock()
	if len(calls) != 1 || calls[0] != (SelectorToken{Selector: "sel1", Token: "tok1"}) {
		t.Fatalf("expected ConfirmEmail(sel1, tok1) once, got %+v", calls)
	}

	if err := env.engine.VerifyEmail(ctx, "u@x.com", code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected consumed code rejected, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricVerifyEmailSuccess] != 1 || snap.Counters[MetricVerifyEmailFailure] != 1 {
		t.Fatalf("unexpected verify counters: %+v", snap.Counters)
	}
}

func TestVerifyEmailRejectsCodeOfAnotherAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("192.0.2.11")

	if err := env.engine.Signup(ctx, "a@x.com", "long-enough-pw", "a"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := codeFrom(t, env.mail.next(t))

	if err := env.engine.VerifyEmail(ctx, "b@x.com", code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected ErrInvalidOrExpiredCode, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricCodeMismatch]; got != 1 {
		t.Fatalf("expected mismatch counter, got %d", got)
	}

	if _, err := env.engine.codes.FindByCode(context.Background(), code); err != nil {
		t.Fatalf("mismatched attempt must not consume code: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, "a@x.com", code); err != nil {
		t.Fatalf("owner verify failed: %v", err)
	}
}

func TestVerifyEmailCollidingCodesResolvePerAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("192.0.2.12")

	env.provider.mu.Lock()
	pairA := env.provider.issue("a@x.com", false)
	pairB := env.provider.issue("b@x.com", false)
	env.provider.mu.Unlock()

	if err := env.engine.codes.Put(ctx, "a@x.com", "111111", pairA.Selector, pairA.Token); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	env.clock.Advance(time.Second)
	if err := env.engine.codes.Put(ctx, "b@x.com", "111111", pairB.Selector, pairB.Token); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if err := env.engine.VerifyEmail(ctx, "a@x.com", "111111"); err != nil {
		t.Fatalf("older holder of the code rejected: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, "b@x.com", "111111"); err != nil {
		t.Fatalf("newer holder of the code rejected: %v", err)
	}

	env.provider.mu.Lock()
	calls := append([]SelectorToken(nil), env.provider.confirmCalls...)
	env.provider.mu.Unlock()
	if len(calls) != 2 || calls[0] != pairA || calls[1] != pairB {
		t.Fatalf("expected ConfirmEmail with each address's own pair, got %+v", calls)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricCodeMismatch]; got != 0 {
		t.Fatalf("expected no mismatch, got %d", got)
	}
}

func TestVerifyEmailThrottlesFourthAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("198.51.100.7")

	for i := 0; i < 3; i++ {
		err := env.engine.VerifyEmail(ctx, "u@x.com", fmt.Sprintf("%06d", i))
		if !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("attempt %d: expected ErrInvalidOrExpiredCode, got %v", i+1, err)
		}
	}
	if err := env.engine.VerifyEmail(ctx, "u@x.com", "000009"); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}

	// Another address is still within budget.
	if err := env.engine.VerifyEmail(ipContext("198.51.100.8"), "u@x.com", "000009"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected other IP unaffected, got %v", err)
	}

	env.clock.Advance(61 * time.Second)
	if err := env.engine.VerifyEmail(ctx, "u@x.com", "000009"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected budget restored after window, got %v", err)
	}
}

func TestVerifyEmailThrottleSharedWithResetVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("198.51.100.20")

	for i := 0; i < 3; i++ {
		_ = env.engine.VerifyEmail(ctx, "u@x.com", "111111")
	}
	if _, err := env.engine.VerifyCodeForReset(ctx, "u@x.com", "111111"); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected shared budget exhausted, got %v", err)
	}
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("192.0.2.12")

	if err := env.engine.Signup(ctx, "late@x.com", "long-enough-pw", "late"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := codeFrom(t, env.mail.next(t))

	env.clock.Advance(5*time.Minute + time.Second)
	if err := env.engine.VerifyEmail(ctx, "late@x.com", code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected expired code rejected, got %v", err)
	}

	env.provider.mu.Lock()
	defer env.provider.mu.Unlock()
	if len(env.provider.confirmCalls) != 0 {
		t.Fatal("provider must not be called for an expired code")
	}
}

func TestVerifyEmailConcurrentExactlyOnce(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Throttle.Limit = 1000
	})
	ctx := ipContext("192.0.2.13")

	if err := env.engine.Signup(ctx, "race@x.com", "long-enough-pw", "race"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := codeFrom(t, env.mail.next(t))

	const workers = 16
	var (
		wg       sync.WaitGroup
		success  atomic.Int64
		rejected atomic.Int64
		start    = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := env.engine.VerifyEmail(ctx, "race@x.com", code)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrInvalidOrExpiredCode):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success.Load() != 1 || rejected.Load() != workers-1 {
		t.Fatalf("expected exactly one success, got %d success / %d rejected", success.Load(), rejected.Load())
	}
	env.provider.mu.Lock()
	defer env.provider.mu.Unlock()
	if len(env.provider.confirmCalls) != 1 {
		t.Fatalf("expected one ConfirmEmail call, got %d", len(env.provider.confirmCalls))
	}
}

func TestVerifyEmailProviderFailureLeavesCodeSpent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := ipContext("192.0.2.14")

	if err := env.engine.Signup(ctx, "p@x.com", "long-enough-pw", "p"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code := codeFrom(t, env.mail.next(t))

	env.provider.failOn("confirm", ErrTokenExpired)
	if err := env.engine.VerifyEmail(ctx, "p@x.com", code); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	env.provider.failOn("confirm", nil)
	if err := env.engine.VerifyEmail(ctx, "p@x.com", code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected code spent, got %v", err)
	}
}

func TestVerifyEmailStorageFault(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.Close()

	err := env.engine.VerifyEmail(ipContext("192.0.2.15"), "u@x.com", "123456")
	if !errors.Is(err, ErrStorage) || KindOf(err) != KindStorageError {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
