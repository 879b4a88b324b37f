package api

import (
	"context"
	"net/http"

	"artai-go/internal/artai"
)

type loginBody struct {
	Ident    string `json:"ident"`
	Password string `json:"password"`
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token. No bearer token is sent.
func (c *Client) Login(ctx context.Context, ident, password string) (*artai.AuthResult, error) {
	r := postJSON("/login", loginBody{Ident: ident, Password: password})
	r.anonymous = true
	var out artai.AuthResult
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	if err := requireUser("POST /login", &out.User); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns a token for it.
func (c *Client) Register(ctx context.Context, username, email, password string) (*artai.AuthResult, error) {
	r := postJSON("/register", registerBody{Username: username, Email: email, Password: password})
	r.anonymous = true
	var out artai.AuthResult
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	if err := requireUser("POST /register", &out.User); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) (*artai.Message, error) {
	var out artai.Message
	if err := c.do(ctx, post("/logout"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// requireUser fails a successful response that carried no account. The
// server never assigns id 0.
func requireUser(op string, u *artai.User) error {
	if u.ID == 0 {
		return artai.NewError(artai.KindDecode, op, http.StatusOK, "response carried no user", nil)
	}
	return nil
}

type userEnvelope struct {
	Message string     `json:"message,omitempty"`
	User    artai.User `json:"user"`
	Token   string     `json:"token,omitempty"`
}

// GetUser returns the account the current token belongs to.
func (c *Client) GetUser(ctx context.Context) (*artai.User, error) {
	var out userEnvelope
	if err := c.do(ctx, get("/user", nil), &out); err != nil {
		return nil, err
	}
	if err := requireUser("GET /user", &out.User); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// UpdateUser sends only the fields set in patch. The second result is the
// rotated token when the server issued one.
func (c *Client) UpdateUser(ctx context.Context, patch artai.ProfilePatch) (*artai.User, string, error) {
	var out userEnvelope
	if err := c.do(ctx, postJSON("/user", patch), &out); err != nil {
		return nil, "", err
	}
	if err := requireUser("POST /user", &out.User); err != nil {
		return nil, "", err
	}
	return &out.User, out.Token, nil
}
