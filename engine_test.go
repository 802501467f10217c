package goRecover

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type resetCall struct {
	selector    string
	token       string
	newPassword string
}

// fakeProvider is a minimal identity provider: pairs are sequential,
// reset pairs are single use, and any op can be forced to fail.
type fakeProvider struct {
	mu sync.Mutex

	seq       int
	users     map[string]string // email -> username
	confirmed map[string]bool
	pairs     map[string]pairState // selector -> state

	confirmCalls []SelectorToken
	canCalls     []SelectorToken
	resetCalls   []resetCall
	logoutCalls  []string

	fail map[string]error
}

type pairState struct {
	token string
	email string
	reset bool
	used  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		users:     map[string]string{},
		confirmed: map[string]bool{},
		pairs:     map[string]pairState{},
		fail:      map[string]error{},
	}
}

func (p *fakeProvider) failOn(op string, err error) {
	p.mu.Lock()
	p.fail[op] = err
	p.mu.Unlock()
}

func (p *fakeProvider) issue(email string, reset bool) SelectorToken {
	p.seq++
	st := SelectorToken{Selector: fmt.Sprintf("sel%d", p.seq), Token: fmt.Sprintf("tok%d", p.seq)}
	p.pairs[st.Selector] = pairState{token: st.Token, email: email, reset: reset}
	return st
}

func (p *fakeProvider) check(selector, token string, reset bool) (pairState, error) {
	st, ok := p.pairs[selector]
	if !ok || st.token != token || st.reset != reset {
		return st, ErrInvalidSelectorTokenPair
	}
	if st.used {
		return st, ErrTokenExpired
	}
	return st, nil
}

func (p *fakeProvider) RegisterPendingUser(_ context.Context, email, password, username string) (SelectorToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail["register"]; err != nil {
		return SelectorToken{}, err
	}
	if len(password) < 8 {
		return SelectorToken{}, ErrInvalidPassword
	}
	if _, ok := p.users[email]; ok {
		return SelectorToken{}, ErrUserAlreadyExists
	}
	p.users[email] = username
	return p.issue(email, false), nil
}

func (p *fakeProvider) LoginWithUsername(_ context.Context, username, password string) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail["login"]; err != nil {
		return Identity{}, err
	}
	for email, u := range p.users {
		if u == username {
			if !p.confirmed[email] {
				return Identity{}, ErrEmailNotVerified
			}
			return Identity{Username: u, Email: email, Roles: []string{"user"}, SessionToken: "session-" + u}, nil
		}
	}
	return Identity{}, ErrUnknownUser
}

func (p *fakeProvider) LogoutEverywhere(_ context.Context, sessionToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logoutCalls = append(p.logoutCalls, sessionToken)
	if err := p.fail["logout"]; err != nil {
		return err
	}
	return nil
}

func (p *fakeProvider) ForgotPassword(_ context.Context, email string) (SelectorToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail["forgot"]; err != nil {
		return SelectorToken{}, err
	}
	if _, ok := p.users[email]; !ok {
		return SelectorToken{}, ErrUnknownUser
	}
	if !p.confirmed[email] {
		return SelectorToken{}, ErrEmailNotVerified
	}
	return p.issue(email, true), nil
}

func (p *fakeProvider) ResendConfirmation(_ context.Context, email string) (SelectorToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail["resend"]; err != nil {
		return SelectorToken{}, err
	}
	if _, ok := p.users[email]; !ok || p.confirmed[email] {
		return SelectorToken{}, ErrNoPriorConfirmationRequest
	}
	return p.issue(email, false), nil
}

func (p *fakeProvider) ConfirmEmail(_ context.Context, selector, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmCalls = append(p.confirmCalls, SelectorToken{Selector: selector, Token: token})
	if err := p.fail["confirm"]; err != nil {
		return err
	}
	st, err := p.check(selector, token, false)
	if err != nil {
		return err
	}
	st.used = true
	p.pairs[selector] = st
	p.confirmed[st.email] = true
	return nil
}

func (p *fakeProvider) CanResetPassword(_ context.Context, selector, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canCalls = append(p.canCalls, SelectorToken{Selector: selector, Token: token})
	if err := p.fail["can_reset"]; err != nil {
		return err
	}
	_, err := p.check(selector, token, true)
	return err
}

func (p *fakeProvider) ResetPassword(_ context.Context, selector, token, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCalls = append(p.resetCalls, resetCall{selector: selector, token: token, newPassword: newPassword})
	if err := p.fail["reset"]; err != nil {
		return err
	}
	st, err := p.check(selector, token, true)
	if err != nil {
		return err
	}
	if len(newPassword) < 8 {
		return ErrInvalidPassword
	}
	st.used = true
	p.pairs[selector] = st
	return nil
}

func (p *fakeProvider) markConfirmed(email string) {
	p.mu.Lock()
	p.confirmed[email] = true
	p.mu.Unlock()
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMail struct {
	ch  chan sentMail
	err error
}

func newFakeMail() *fakeMail {
	return &fakeMail{ch: make(chan sentMail, 64)}
}

func (m *fakeMail) Send(_ context.Context, address, subject, body string) error {
	m.ch <- sentMail{to: address, subject: subject, body: body}
	return m.err
}

func (m *fakeMail) next(t *testing.T) sentMail {
	t.Helper()
	select {
	case msg := <-m.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected a verification mail")
		return sentMail{}
	}
}

var mailCodePattern = regexp.MustCompile(`code is (\d+)\.`)

// codeFrom extracts the digits of the default mail body.
func codeFrom(t *testing.T, msg sentMail) string {
	t.Helper()
	m := mailCodePattern.FindStringSubmatch(msg.body)
	if m == nil {
		t.Fatalf("unexpected mail body %q", msg.body)
	}
	return m[1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type testEnv struct {
	engine   *Engine
	provider *fakeProvider
	mail     *fakeMail
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
}

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	provider := newFakeProvider()
	mail := newFakeMail()

	cfg := DefaultConfig()
	cfg.Capability.Key = testKey()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(provider).
		WithMailSender(mail).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, provider: provider, mail: mail, mr: mr, rdb: rdb, clock: clock}
}

func ipContext(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Capability.Key = testKey()

	if _, err := New().WithConfig(cfg).WithIdentityProvider(newFakeProvider()).WithMailSender(newFakeMail()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithMailSender(newFakeMail()).Build(); err == nil {
		t.Fatal("expected error without identity provider")
	}
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithIdentityProvider(newFakeProvider()).Build(); err == nil {
		t.Fatal("expected error without mail sender")
	}
	if _, err := New().WithRedis(rdb).WithIdentityProvider(newFakeProvider()).WithMailSender(newFakeMail()).Build(); err == nil {
		t.Fatal("expected error without capability key")
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithIdentityProvider(newFakeProvider()).WithMailSender(newFakeMail())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderCopiesCapabilityKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	key := testKey()

	e, err := New().
		WithCapabilityKey(key).
		WithRedis(rdb).
		WithIdentityProvider(newFakeProvider()).
		WithMailSender(newFakeMail()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	key[0] ^= 0xff
	if e.config.Capability.Key[0] == key[0] {
		t.Fatal("engine shares caller's key slice")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if err := e.VerifyEmail(context.Background(), "u@x.com", "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Login(context.Background(), "alice", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if got := e.MetricsSnapshot(); len(got.Counters) != 0 {
		t.Fatal("expected empty snapshot for nil engine")
	}
}
