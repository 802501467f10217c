package stores

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCodeNotFound     = errors.New("verification code not found")
	ErrStoreUnavailable = errors.New("verification code store unavailable")
)

// VerificationCode binds a human-readable OTP to the identity provider's
// selector/token pair for one confirmation or reset attempt.
type VerificationCode struct {
	Code      string    `db:"code"`
	Email     string    `db:"email"`
	Selector  string    `db:"selector"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
}

// CodeStore persists verification codes. Implementations must make
// DeleteByCodeAndEmail an atomic conditional delete: when two callers race
// on the same row, exactly one of them observes a non-zero count.
type CodeStore interface {
	Put(ctx context.Context, email, code, selector, token string) error
	SweepExpired(ctx context.Context) (int64, error)
	FindByCode(ctx context.Context, code string) (VerificationCode, error)
	// FindByCodeAndEmail returns the newest live row for code issued to
	// email. Colliding codes held by other addresses are never returned.
	FindByCodeAndEmail(ctx context.Context, code, email string) (VerificationCode, error)
	DeleteByEmail(ctx context.Context, email string) (int64, error)
	DeleteByCodeAndEmail(ctx context.Context, code, email string) (int64, error)
}

// Options is shared by every CodeStore implementation.
type Options struct {
	// TTL is how long a code stays valid after Put.
	TTL time.Duration
	// Now is the time source. Defaults to time.Now.
	Now func() time.Time
}

const DefaultCodeTTL = 5 * time.Minute

func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultCodeTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
