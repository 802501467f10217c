package goRecover

import (
	"context"
	"strings"
)

// Login delegates credential checks to the identity provider and shapes
// its answer.
func (e *Engine) Login(ctx context.Context, username, password string) (result *LoginResult, err error) {
	username = strings.TrimSpace(username)
	defer e.finish(ctx, flowLogin, username, e.clockNow(), &err)
	if e == nil || e.provider == nil {
		return nil, ErrEngineNotReady
	}

	var id Identity
	err = e.callProvider(ctx, flowLogin, "login_with_username", func(pctx context.Context) error {
		var perr error
		id, perr = e.provider.LoginWithUsername(pctx, username, password)
		return perr
	})
	if err != nil {
		return nil, err
	}

	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	return &LoginResult{
		Username:     id.Username,
		Email:        id.Email,
		Roles:        roles,
		SessionToken: id.SessionToken,
	}, nil
}

// Logout ends every session of the user owning sessionToken. An empty
// token reports ErrNotLoggedIn without calling the provider.
func (e *Engine) Logout(ctx context.Context, sessionToken string) (err error) {
	defer e.finish(ctx, flowLogout, "", e.clockNow(), &err)
	if e == nil || e.provider == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(sessionToken) == "" {
		return ErrNotLoggedIn
	}

	return e.callProvider(ctx, flowLogout, "logout_everywhere", func(pctx context.Context) error {
		return e.provider.LogoutEverywhere(pctx, sessionToken)
	})
}
