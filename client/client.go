package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
)

// Default API paths.
const (
	DefaultWhoAmIPath       = "/api/auth/whoami"
	DefaultLogoutPath       = "/api/auth/logout"
	DefaultSubscriptionPath = "/api/subscriptions/"
)

// ErrStatus wraps every unexpected response status.
var ErrStatus = errors.New("unexpected response status")

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// Config locates the collaborator endpoints.
type Config struct {
	BaseURL          string
	WhoAmIPath       string
	LogoutPath       string
	SubscriptionPath string
}

// Client calls the application API on behalf of a visitor. It implements
// session.Identity and subscription.Fetcher; Logout matches
// subscription.LogoutFunc.
type Client struct {
	base   *url.URL
	config Config
	http   *http.Client
}

// New returns a Client for cfg. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if cfg.WhoAmIPath == "" {
		cfg.WhoAmIPath = DefaultWhoAmIPath
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = DefaultLogoutPath
	}
	if cfg.SubscriptionPath == "" {
		cfg.SubscriptionPath = DefaultSubscriptionPath
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, config: cfg, http: httpClient}, nil
}

// WhoAmI implements session.Identity. A 401 maps to session.ErrUnauthenticated;
// the body is decoded as-is and validated by the caller.
func (c *Client) WhoAmI(ctx context.Context) (session.Principal, error) {
	resp, err := c.do(ctx, http.MethodGet, c.config.WhoAmIPath)
	if err != nil {
		return session.Principal{}, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return session.Principal{}, session.ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return session.Principal{}, fmt.Errorf("%w: whoami returned %s", ErrStatus, resp.Status)
	}

	var p session.Principal
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&p); err != nil {
		return session.Principal{}, fmt.Errorf("%w: decode whoami response: %v", session.ErrMalformedPrincipal, err)
	}
	return p, nil
}

// GetSubscription implements subscription.Fetcher.
func (c *Client) GetSubscription(ctx context.Context, userID string) (subscription.Record, error) {
	if userID == "" {
		return subscription.Record{}, errors.New("empty user id")
	}
	resp, err := c.do(ctx, http.MethodGet, c.config.SubscriptionPath+url.PathEscape(userID))
	if err != nil {
		return subscription.Record{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return subscription.Record{}, fmt.Errorf("%w: subscription returned %s", ErrStatus, resp.Status)
	}

	var rec subscription.Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&rec); err != nil {
		return subscription.Record{}, fmt.Errorf("decode subscription response: %w", err)
	}
	return rec, nil
}

// Logout ends the visitor's session. A 4xx answer means there was nothing to
// end and is not an error.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, c.config.LogoutPath)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: logout returned %s", ErrStatus, resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string) (*http.Response, error) {
	u := c.base.JoinPath(p)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for _, ck := range CookiesFromContext(ctx) {
		req.AddCookie(ck)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	_ = resp.Body.Close()
}
