// Package api is a client for the charging platform's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zsprackett/chargewatch/internal/events"
)

// ErrUnauthorized is returned for HTTP 401. Callers treat it as a logout.
var ErrUnauthorized = errors.New("api: unauthorized")

// TokenSource supplies the bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// StatusError is a non-2xx response other than 401. Detail is the server's
// {"detail": "..."} message and is empty when the body carried none.
type StatusError struct {
	Code   int
	Body   string
	Detail string
}

func (e *StatusError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("API returned %d: %s", e.Code, msg)
}

type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SignIn exchanges credentials for an access token. It sends no bearer.
func (c *Client) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	var out SignInResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", signInRequest{Email: email, Password: password}, &out, false); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("sign-in response carried no access token")
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var out Dashboard
	if err := c.do(ctx, http.MethodGet, "/admin/dashboard", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.do(ctx, http.MethodGet, "/charging/sessions/active", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartCharging(ctx context.Context, chargePointID events.Identifier) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/charging/start", startRequest{ChargePointID: chargePointID}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StopCharging(ctx context.Context, sessionID events.Identifier) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/charging/stop", stopRequest{SessionID: sessionID}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, ok := "", false
		if c.tokens != nil {
			token, ok = c.tokens.Token()
		}
		if !ok {
			return ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data)), Detail: detail(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// detail extracts the server's {"detail": "..."} message when present.
func detail(body []byte) string {
	var d struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &d) != nil {
		return ""
	}
	return d.Detail
}
