package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gvafram3/parcel-console/internal/model"
)

// ErrBadCredentials is returned by Login when the backend refuses the email/password pair.
var ErrBadCredentials = errors.New("invalid email or password")

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is what a successful sign-in hands back.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      model.User `json:"user"`
}

// Login exchanges credentials for a bearer token. It does not need a session.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, c.anon, http.MethodPost, c.resolve(nil, "auth", "login"), loginRequest{Email: email, Password: password}, &res)
	if errors.Is(err, ErrUnauthorized) {
		return LoginResult{}, ErrBadCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, fmt.Errorf("login response carried no token")
	}
	return res, nil
}

// Logout revokes the current token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, c.authed, http.MethodPost, c.resolve(nil, "auth", "logout"), nil, nil)
}
