package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestProvider(t *testing.T, mutate func(*Config)) (*Provider, *clock) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)

	sessions, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("s", 32)),
		Now:           clk.Now,
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Now = clk.Now
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, hasher, sessions)
	require.NoError(t, err)
	return p, clk
}

func TestRegisterAndConfirm(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()

	pair, err := p.RegisterPendingUser(ctx, "Alice@Example.com", "long-password", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Selector)
	assert.NotEmpty(t, pair.Token)
	assert.False(t, p.Confirmed("alice@example.com"))

	_, err = p.LoginWithUsername(ctx, "alice", "long-password")
	assert.ErrorIs(t, err, goRecover.ErrEmailNotVerified)

	require.NoError(t, p.ConfirmEmail(ctx, pair.Selector, pair.Token))
	assert.True(t, p.Confirmed("alice@example.com"))

	assert.ErrorIs(t, p.ConfirmEmail(ctx, pair.Selector, pair.Token), goRecover.ErrTokenExpired)
}

func TestRegisterValidation(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()

	_, err := p.RegisterPendingUser(ctx, "not-an-email", "long-password", "x")
	assert.ErrorIs(t, err, goRecover.ErrInvalidEmail)

	_, err = p.RegisterPendingUser(ctx, "x@example.com", "short", "x")
	assert.ErrorIs(t, err, goRecover.ErrInvalidPassword)

	_, err = p.RegisterPendingUser(ctx, "x@example.com", "long-password", "x")
	require.NoError(t, err)

	_, err = p.RegisterPendingUser(ctx, "X@example.com", "long-password", "other")
	assert.ErrorIs(t, err, goRecover.ErrUserAlreadyExists)

	_, err = p.RegisterPendingUser(ctx, "y@example.com", "long-password", "X")
	assert.ErrorIs(t, err, goRecover.ErrUserAlreadyExists)
}

func TestConfirmRejectsBadPairs(t *testing.T) {
	p, clk := newTestProvider(t, nil)
	ctx := context.Background()

	pair, err := p.RegisterPendingUser(ctx, "b@example.com", "long-password", "b")
	require.NoError(t, err)

	assert.ErrorIs(t, p.ConfirmEmail(ctx, "nope", pair.Token), goRecover.ErrInvalidSelectorTokenPair)
	assert.ErrorIs(t, p.ConfirmEmail(ctx, pair.Selector, "nope"), goRecover.ErrInvalidSelectorTokenPair)
	assert.ErrorIs(t, p.CanResetPassword(ctx, pair.Selector, pair.Token), goRecover.ErrInvalidSelectorTokenPair)

	clk.Advance(25 * time.Hour)
	assert.ErrorIs(t, p.ConfirmEmail(ctx, pair.Selector, pair.Token), goRecover.ErrTokenExpired)
}

func TestResendConfirmationReplacesPair(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()

	_, err := p.ResendConfirmation(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, goRecover.ErrNoPriorConfirmationRequest)

	first, err := p.RegisterPendingUser(ctx, "r@example.com", "long-password", "r")
	require.NoError(t, err)
	second, err := p.ResendConfirmation(ctx, "r@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Selector, second.Selector)

	assert.ErrorIs(t, p.ConfirmEmail(ctx, first.Selector, first.Token), goRecover.ErrInvalidSelectorTokenPair)
	require.NoError(t, p.ConfirmEmail(ctx, second.Selector, second.Token))

	_, err = p.ResendConfirmation(ctx, "r@example.com")
	assert.ErrorIs(t, err, goRecover.ErrNoPriorConfirmationRequest)
}

func TestPerEmailThrottle(t *testing.T) {
	p, clk := newTestProvider(t, func(c *Config) {
		c.RequestInterval = time.Minute
		c.RequestBurst = 2
	})
	ctx := context.Background()

	_, err := p.RegisterPendingUser(ctx, "t@example.com", "long-password", "t")
	require.NoError(t, err)
	_, err = p.ResendConfirmation(ctx, "t@example.com")
	require.NoError(t, err)
	_, err = p.ResendConfirmation(ctx, "t@example.com")
	assert.ErrorIs(t, err, goRecover.ErrTooManyRequests)

	clk.Advance(time.Minute)
	_, err = p.ResendConfirmation(ctx, "t@example.com")
	assert.NoError(t, err)
}

func confirmedAccount(t *testing.T, p *Provider, email, username, pw string) {
	t.Helper()
	pair, err := p.RegisterPendingUser(context.Background(), email, pw, username)
	require.NoError(t, err)
	require.NoError(t, p.ConfirmEmail(context.Background(), pair.Selector, pair.Token))
}

func TestLoginAndLogoutEverywhere(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()
	confirmedAccount(t, p, "l@example.com", "lena", "long-password")
	require.NoError(t, p.SetRoles("l@example.com", "admin", "user"))

	_, err := p.LoginWithUsername(ctx, "nobody", "long-password")
	assert.ErrorIs(t, err, goRecover.ErrUnknownUser)
	_, err = p.LoginWithUsername(ctx, "lena", "wrong-password")
	assert.ErrorIs(t, err, goRecover.ErrInvalidPassword)

	id1, err := p.LoginWithUsername(ctx, "LENA", "long-password")
	require.NoError(t, err)
	assert.Equal(t, "lena", id1.Username)
	assert.Equal(t, "l@example.com", id1.Email)
	assert.Equal(t, []string{"admin", "user"}, id1.Roles)

	id2, err := p.LoginWithUsername(ctx, "lena", "long-password")
	require.NoError(t, err)

	_, err = p.ValidateSession(id2.SessionToken)
	require.NoError(t, err)

	require.NoError(t, p.LogoutEverywhere(ctx, id1.SessionToken))
	_, err = p.ValidateSession(id2.SessionToken)
	assert.ErrorIs(t, err, goRecover.ErrNotLoggedIn)
	assert.ErrorIs(t, p.LogoutEverywhere(ctx, id2.SessionToken), goRecover.ErrNotLoggedIn)
	assert.ErrorIs(t, p.LogoutEverywhere(ctx, "garbage"), goRecover.ErrNotLoggedIn)
}

func TestResetFlow(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()

	_, err := p.ForgotPassword(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, goRecover.ErrUnknownUser)
	_, err = p.ForgotPassword(ctx, "bad")
	assert.ErrorIs(t, err, goRecover.ErrInvalidEmail)

	_, err = p.RegisterPendingUser(ctx, "pending@example.com", "long-password", "pending")
	require.NoError(t, err)
	_, err = p.ForgotPassword(ctx, "pending@example.com")
	assert.ErrorIs(t, err, goRecover.ErrEmailNotVerified)

	confirmedAccount(t, p, "z@example.com", "zed", "old-password")
	session, err := p.LoginWithUsername(ctx, "zed", "old-password")
	require.NoError(t, err)

	pair, err := p.ForgotPassword(ctx, "z@example.com")
	require.NoError(t, err)
	require.NoError(t, p.CanResetPassword(ctx, pair.Selector, pair.Token))
	require.NoError(t, p.CanResetPassword(ctx, pair.Selector, pair.Token))

	assert.ErrorIs(t, p.ResetPassword(ctx, pair.Selector, pair.Token, "short"), goRecover.ErrInvalidPassword)
	require.NoError(t, p.ResetPassword(ctx, pair.Selector, pair.Token, "new-password"))
	assert.ErrorIs(t, p.ResetPassword(ctx, pair.Selector, pair.Token, "newer-password"), goRecover.ErrTokenExpired)

	_, err = p.LoginWithUsername(ctx, "zed", "old-password")
	assert.ErrorIs(t, err, goRecover.ErrInvalidPassword)
	_, err = p.LoginWithUsername(ctx, "zed", "new-password")
	assert.NoError(t, err)

	_, err = p.ValidateSession(session.SessionToken)
	assert.ErrorIs(t, err, goRecover.ErrNotLoggedIn, "reset must end old sessions")
}

func TestResetDisabled(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()
	confirmedAccount(t, p, "d@example.com", "d", "long-password")

	pair, err := p.ForgotPassword(ctx, "d@example.com")
	require.NoError(t, err)

	require.NoError(t, p.SetResetDisabled("d@example.com", true))
	_, err = p.ForgotPassword(ctx, "d@example.com")
	assert.ErrorIs(t, err, goRecover.ErrResetDisabled)
	assert.ErrorIs(t, p.CanResetPassword(ctx, pair.Selector, pair.Token), goRecover.ErrResetDisabled)
}

func TestConcurrentResetUsesPairOnce(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	ctx := context.Background()
	confirmedAccount(t, p, "c@example.com", "c", "long-password")
	pair, err := p.ForgotPassword(ctx, "c@example.com")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.ResetPassword(ctx, pair.Selector, pair.Token, "another-password"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestPurgeExpiredPairs(t *testing.T) {
	p, clk := newTestProvider(t, nil)
	ctx := context.Background()

	confirmedAccount(t, p, "e@example.com", "e", "long-password")
	_, err := p.RegisterPendingUser(ctx, "f@example.com", "long-password", "f")
	require.NoError(t, err)

	assert.Equal(t, 1, p.PurgeExpiredPairs())
	clk.Advance(25 * time.Hour)
	assert.Equal(t, 1, p.PurgeExpiredPairs())
}
