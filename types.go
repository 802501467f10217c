package goRecover

import "context"

// SelectorToken is the opaque credential pair an identity provider issues
// for one confirmation or reset attempt.
type SelectorToken struct {
	Selector string
	Token    string
}

// Identity is what the identity provider reports for a successful login.
type Identity struct {
	UserID       string
	Username     string
	Email        string
	Roles        []string
	SessionToken string
}

// LoginResult is the reply shape of [Engine.Login].
type LoginResult struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	SessionToken string   `json:"sessionToken,omitempty"`
}

// IdentityProvider owns accounts, password hashing, sessions and the
// selector/token pairs bound to verification codes. Implementations report
// failures with the package error sentinels (wrapping is allowed); any
// other error is treated as an upstream fault.
//
// The provider is the security boundary for selector/token pairs: it
// enforces their expiry and one-time use. The Engine never re-implements
// either.
type IdentityProvider interface {
	// RegisterPendingUser creates an unconfirmed account and returns the
	// confirmation pair.
	RegisterPendingUser(ctx context.Context, email, password, username string) (SelectorToken, error)
	LoginWithUsername(ctx context.Context, username, password string) (Identity, error)
	// LogoutEverywhere ends every session of the user owning sessionToken.
	LogoutEverywhere(ctx context.Context, sessionToken string) error
	// ForgotPassword checks reset eligibility and returns a reset pair.
	ForgotPassword(ctx context.Context, email string) (SelectorToken, error)
	// ResendConfirmation reissues the confirmation pair of a pending account.
	ResendConfirmation(ctx context.Context, email string) (SelectorToken, error)
	ConfirmEmail(ctx context.Context, selector, token string) error
	// CanResetPassword checks a reset pair without consuming it.
	CanResetPassword(ctx context.Context, selector, token string) error
	ResetPassword(ctx context.Context, selector, token, newPassword string) error
}

// MailSender delivers one message. Delivery is best effort: the Engine
// logs failures and never reports them to the caller of a flow.
type MailSender interface {
	Send(ctx context.Context, address, subject, body string) error
}
