package memory

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/password"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config tunes the reference provider.
type Config struct {
	// ConfirmationTTL bounds how long a signup confirmation pair stays usable.
	ConfirmationTTL time.Duration
	// ResetTTL bounds how long a password reset pair stays usable.
	ResetTTL time.Duration
	// RequestInterval and RequestBurst throttle signup, resend and
	// forgot-password requests per email address.
	RequestInterval time.Duration
	RequestBurst    int
	DefaultRoles    []string
	Now             func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ConfirmationTTL: 24 * time.Hour,
		ResetTTL:        6 * time.Hour,
		RequestInterval: 20 * time.Second,
		RequestBurst:    3,
		DefaultRoles:    []string{"user"},
	}
}

type pairKind uint8

const (
	pairConfirm pairKind = iota + 1
	pairReset
)

type user struct {
	id             string
	email          string
	username       string
	passwordHash   string
	confirmed      bool
	resetDisabled  bool
	roles          []string
	sessionVersion uint32
}

// pair stores only the digest of its token.
type pair struct {
	userID    string
	kind      pairKind
	tokenHash [32]byte
	expiresAt time.Time
	used      bool
}

// Provider is an in-memory goRecover.IdentityProvider. It owns accounts,
// argon2id password hashes, signed session tokens and the selector/token
// pairs behind verification codes. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	cfg      Config
	now      func() time.Time
	hasher   *password.Argon2
	sessions *jwt.Manager
	validate *validator.Validate

	users      map[string]*user
	byEmail    map[string]string
	byUsername map[string]string
	pairs      map[string]*pair
	limiters   map[string]*rate.Limiter
}

// New returns a provider hashing with hasher and issuing sessions with
// sessions.
func New(cfg Config, hasher *password.Argon2, sessions *jwt.Manager) (*Provider, error) {
	if hasher == nil || sessions == nil {
		return nil, errors.New("memory provider requires a hasher and a session manager")
	}
	if cfg.ConfirmationTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("memory provider TTLs must be > 0")
	}
	if cfg.RequestInterval < 0 || (cfg.RequestInterval > 0 && cfg.RequestBurst < 1) {
		return nil, errors.New("memory provider throttle needs interval >= 0 and burst >= 1")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{
		cfg:        cfg,
		now:        now,
		hasher:     hasher,
		sessions:   sessions,
		validate:   validator.New(),
		users:      map[string]*user{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
		pairs:      map[string]*pair{},
		limiters:   map[string]*rate.Limiter{},
	}, nil
}

func (p *Provider) RegisterPendingUser(_ context.Context, email, pw, username string) (goRecover.SelectorToken, error) {
	email = normalize(email)
	username = strings.TrimSpace(username)
	if err := p.checkEmail(email); err != nil {
		return goRecover.SelectorToken{}, err
	}
	if err := p.hasher.CheckPolicy(pw); err != nil {
		return goRecover.SelectorToken{}, goRecover.ErrInvalidPassword
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byEmail[email]; ok {
		return goRecover.SelectorToken{}, goRecover.ErrUserAlreadyExists
	}
	if username != "" {
		if _, ok := p.byUsername[strings.ToLower(username)]; ok {
			return goRecover.SelectorToken{}, goRecover.ErrUserAlreadyExists
		}
	}
	if !p.allow(email) {
		return goRecover.SelectorToken{}, goRecover.ErrTooManyRequests
	}

	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return goRecover.SelectorToken{}, err
	}

	u := &user{
		id:           uuid.NewString(),
		email:        email,
		username:     username,
		passwordHash: hash,
		roles:        append([]string(nil), p.cfg.DefaultRoles...),
	}
	p.users[u.id] = u
	p.byEmail[email] = u.id
	if username != "" {
		p.byUsername[strings.ToLower(username)] = u.id
	}

	return p.issuePair(u.id, pairConfirm, p.cfg.ConfirmationTTL)
}

func (p *Provider) LoginWithUsername(_ context.Context, username, pw string) (goRecover.Identity, error) {
	p.mu.Lock()
	u, ok := p.userByUsername(username)
	var hash string
	if ok {
		hash = u.passwordHash
	}
	p.mu.Unlock()
	if !ok {
		return goRecover.Identity{}, goRecover.ErrUnknownUser
	}

	// Hashing runs outside the lock.
	match, err := p.hasher.Verify(pw, hash)
	if err != nil && !errors.Is(err, password.ErrTooLong) {
		return goRecover.Identity{}, err
	}
	if !match {
		return goRecover.Identity{}, goRecover.ErrInvalidPassword
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !u.confirmed {
		return goRecover.Identity{}, goRecover.ErrEmailNotVerified
	}
	if upgrade, _ := p.hasher.NeedsUpgrade(u.passwordHash); upgrade && u.passwordHash == hash {
		if rehashed, err := p.hasher.Hash(pw); err == nil {
			u.passwordHash = rehashed
		}
	}

	token, err := p.sessions.Issue(u.id, u.username, u.sessionVersion)
	if err != nil {
		return goRecover.Identity{}, err
	}
	return goRecover.Identity{
		UserID:       u.id,
		Username:     u.username,
		Email:        u.email,
		Roles:        append([]string(nil), u.roles...),
		SessionToken: token,
	}, nil
}

// LogoutEverywhere bumps the session version of the token's owner, which
// invalidates every token issued before.
func (p *Provider) LogoutEverywhere(_ context.Context, sessionToken string) error {
	claims, err := p.sessions.Parse(sessionToken)
	if err != nil {
		return goRecover.ErrNotLoggedIn
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[claims.UID]
	if !ok || u.sessionVersion != claims.Version {
		return goRecover.ErrNotLoggedIn
	}
	u.sessionVersion++
	return nil
}

// ValidateSession reports whether sessionToken is still live.
func (p *Provider) ValidateSession(sessionToken string) (string, error) {
	claims, err := p.sessions.Parse(sessionToken)
	if err != nil {
		return "", goRecover.ErrNotLoggedIn
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[claims.UID]
	if !ok || u.sessionVersion != claims.Version {
		return "", goRecover.ErrNotLoggedIn
	}
	return u.id, nil
}

func (p *Provider) ForgotPassword(_ context.Context, email string) (goRecover.SelectorToken, error) {
	email = normalize(email)
	if err := p.checkEmail(email); err != nil {
		return goRecover.SelectorToken{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.userByEmail(email)
	switch {
	case !ok:
		return goRecover.SelectorToken{}, goRecover.ErrUnknownUser
	case !u.confirmed:
		return goRecover.SelectorToken{}, goRecover.ErrEmailNotVerified
	case u.resetDisabled:
		return goRecover.SelectorToken{}, goRecover.ErrResetDisabled
	}
	if !p.allow(email) {
		return goRecover.SelectorToken{}, goRecover.ErrTooManyRequests
	}

	return p.issuePair(u.id, pairReset, p.cfg.ResetTTL)
}

// ResendConfirmation replaces the pending confirmation pairs of email with
// a fresh one.
func (p *Provider) ResendConfirmation(_ context.Context, email string) (goRecover.SelectorToken, error) {
	email = normalize(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.userByEmail(email)
	if !ok || u.confirmed || !p.hasLivePair(u.id, pairConfirm) {
		return goRecover.SelectorToken{}, goRecover.ErrNoPriorConfirmationRequest
	}
	if !p.allow(email) {
		return goRecover.SelectorToken{}, goRecover.ErrTooManyRequests
	}

	p.dropPairs(u.id, pairConfirm)
	return p.issuePair(u.id, pairConfirm, p.cfg.ConfirmationTTL)
}

func (p *Provider) ConfirmEmail(_ context.Context, selector, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.checkPair(selector, token, pairConfirm)
	if err != nil {
		return err
	}
	u, ok := p.users[pr.userID]
	if !ok {
		return goRecover.ErrInvalidSelectorTokenPair
	}
	if u.confirmed {
		return goRecover.ErrUserAlreadyExists
	}

	pr.used = true
	u.confirmed = true
	return nil
}

func (p *Provider) CanResetPassword(_ context.Context, selector, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, err := p.checkPair(selector, token, pairReset)
	if err != nil {
		return err
	}
	if u, ok := p.users[pr.userID]; !ok || u.resetDisabled {
		return goRecover.ErrResetDisabled
	}
	return nil
}

// ResetPassword sets a new password and ends every session of the user.
// The pair is single use.
func (p *Provider) ResetPassword(ctx context.Context, selector, token, newPassword string) error {
	if err := p.CanResetPassword(ctx, selector, token); err != nil {
		return err
	}
	if err := p.hasher.CheckPolicy(newPassword); err != nil {
		return goRecover.ErrInvalidPassword
	}
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check under the lock: a concurrent reset may have used the pair.
	pr, err := p.checkPair(selector, token, pairReset)
	if err != nil {
		return err
	}
	u, ok := p.users[pr.userID]
	if !ok || u.resetDisabled {
		return goRecover.ErrResetDisabled
	}

	pr.used = true
	u.passwordHash = hash
	u.sessionVersion++
	return nil
}

/*
====================================
ADMINISTRATION
====================================
*/

// SetResetDisabled toggles password resets for the account of email.
func (p *Provider) SetResetDisabled(email string, disabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.userByEmail(normalize(email))
	if !ok {
		return goRecover.ErrUnknownUser
	}
	u.resetDisabled = disabled
	return nil
}

// SetRoles replaces the roles reported at login.
func (p *Provider) SetRoles(email string, roles ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.userByEmail(normalize(email))
	if !ok {
		return goRecover.ErrUnknownUser
	}
	u.roles = append([]string(nil), roles...)
	return nil
}

// Confirmed reports whether email belongs to a confirmed account.
func (p *Provider) Confirmed(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.userByEmail(normalize(email))
	return ok && u.confirmed
}

// PurgeExpiredPairs drops used and expired pairs and returns how many
// were removed.
func (p *Provider) PurgeExpiredPairs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for sel, pr := range p.pairs {
		if pr.used || now.After(pr.expiresAt) {
			delete(p.pairs, sel)
			n++
		}
	}
	return n
}

/*
====================================
HELPERS (caller holds p.mu)
====================================
*/

func (p *Provider) issuePair(userID string, kind pairKind, ttl time.Duration) (goRecover.SelectorToken, error) {
	selector, err := internal.NewSecret(16)
	if err != nil {
		return goRecover.SelectorToken{}, err
	}
	token, err := internal.NewSecret(32)
	if err != nil {
		return goRecover.SelectorToken{}, err
	}
	p.pairs[selector] = &pair{
		userID:    userID,
		kind:      kind,
		tokenHash: internal.HashSecret(token),
		expiresAt: p.now().Add(ttl),
	}
	return goRecover.SelectorToken{Selector: selector, Token: token}, nil
}

func (p *Provider) checkPair(selector, token string, kind pairKind) (*pair, error) {
	pr, ok := p.pairs[selector]
	if !ok || pr.kind != kind {
		return nil, goRecover.ErrInvalidSelectorTokenPair
	}
	got := internal.HashSecret(token)
	if subtle.ConstantTimeCompare(got[:], pr.tokenHash[:]) != 1 {
		return nil, goRecover.ErrInvalidSelectorTokenPair
	}
	if pr.used || p.now().After(pr.expiresAt) {
		return nil, goRecover.ErrTokenExpired
	}
	return pr, nil
}

func (p *Provider) hasLivePair(userID string, kind pairKind) bool {
	now := p.now()
	for _, pr := range p.pairs {
		if pr.userID == userID && pr.kind == kind && !pr.used && !now.After(pr.expiresAt) {
			return true
		}
	}
	return false
}

func (p *Provider) dropPairs(userID string, kind pairKind) {
	for sel, pr := range p.pairs {
		if pr.userID == userID && pr.kind == kind {
			delete(p.pairs, sel)
		}
	}
}

func (p *Provider) allow(email string) bool {
	if p.cfg.RequestInterval == 0 {
		return true
	}
	lim, ok := p.limiters[email]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.cfg.RequestInterval), p.cfg.RequestBurst)
		p.limiters[email] = lim
	}
	return lim.AllowN(p.now(), 1)
}

func (p *Provider) userByEmail(email string) (*user, bool) {
	id, ok := p.byEmail[email]
	if !ok {
		return nil, false
	}
	u, ok := p.users[id]
	return u, ok
}

func (p *Provider) userByUsername(username string) (*user, bool) {
	id, ok := p.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, false
	}
	u, ok := p.users[id]
	return u, ok
}

func (p *Provider) checkEmail(email string) error {
	if err := p.validate.Var(email, "required,email,max=254"); err != nil {
		return goRecover.ErrInvalidEmail
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ goRecover.IdentityProvider = (*Provider)(nil)
