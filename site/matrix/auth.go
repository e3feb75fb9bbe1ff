package matrix

import (
	"context"
	"net/http"
	"strings"

	"github.com/RunningKuma/matrix-on-vscode/codec"
	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
)

const loginPath = "/api/users/login"

// AuthResult is the outcome of a login exchange.
type AuthResult struct {
	// Data is the decoded response body, Undefined when it was empty.
	Data jsonv.Value
	// Cookies holds the raw Set-Cookie header values.
	Cookies []string
}

// Cookie joins the name=value part of every Set-Cookie entry into a value
// suitable for a Cookie request header. It is empty when the server set no
// cookies.
func (r AuthResult) Cookie() string {
	var pairs []string
	for _, raw := range r.Cookies {
		for _, c := range (&http.Response{Header: http.Header{"Set-Cookie": {raw}}}).Cookies() {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	return strings.Join(pairs, "; ")
}

// Username returns the account name reported by the login endpoint, if any.
func (r AuthResult) Username() string {
	return optString(r.Data, []jsonv.Accessor{
		jsonv.Path("data", "username"),
		jsonv.Key("username"),
		jsonv.Path("data", "nickname"),
		jsonv.Key("nickname"),
	})
}

// LoginWithCookie validates an existing session cookie against the login
// endpoint.
func (c *Client) LoginWithCookie(ctx context.Context, cookie string) (AuthResult, error) {
	c.log.Info().Msg("logging in with cookie")
	resp, err := c.do(ctx, "login", http.MethodGet, loginPath, cookie, nil)
	if err != nil {
		return AuthResult{}, err
	}
	return c.authResult(resp), nil
}

// LoginWithCredentials performs the password login: a GET to obtain the
// initial cookies, then a POST whose body is the bare aes-256-gcm sealed
// credentials ("iv.ciphertext", both base64).
func (c *Client) LoginWithCredentials(ctx context.Context, username, password string) (AuthResult, error) {
	c.log.Info().Str("username", username).Msg("logging in with credentials")

	if _, err := c.do(ctx, "login", http.MethodGet, loginPath, "", nil); err != nil {
		return AuthResult{}, err
	}

	creds := map[string]string{"username": username, "password": password}
	sealed, ok := c.codec.Encode(codec.AESGCM, creds)
	if !ok {
		return AuthResult{}, errors.NewError("matrix.LoginWithCredentials", "cannot encode credentials", nil)
	}

	resp, err := c.do(ctx, "login", http.MethodPost, loginPath, "", strings.NewReader(sealed))
	if err != nil {
		return AuthResult{}, err
	}
	return c.authResult(resp), nil
}

func (c *Client) authResult(resp response) AuthResult {
	return AuthResult{
		Data:    c.decodePayload("login", resp.body),
		Cookies: resp.header.Values("Set-Cookie"),
	}
}
