// Package tovala implements the client for the Tovala cloud API: login with
// host fallback, session/token management, and the user-scoped oven reads.
// The API is not publicly documented, so the read path keeps a defensive
// endpoint-candidate layer around the confirmed paths.
package tovala

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultHosts is the ordered list of API hosts. Beta is preferred; prod is
// the fallback. The first host that accepts a login is pinned for the session.
var DefaultHosts = []string{
	"https://api.beta.tovala.com",
	"https://api.tovala.com",
}

const (
	loginPath = "/v0/getToken"

	appIDHeader = "X-Tovala-AppID"
	appID       = "MAPP"

	userAgent  = "tovala-go-home/0.1"
	originURL  = "https://my.tovala.com"
	refererURL = "https://my.tovala.com/"

	requestTimeout  = 10 * time.Second
	tokenSafety     = 60 * time.Second
	defaultTokenTTL = time.Hour

	maxBodySize = 1 << 20
)

// cookStatusCandidates are tried in order until one stops returning 404.
// The first entry is the confirmed production path; the rest are kept as a
// fallback layer in case the undocumented API changes shape again.
var cookStatusCandidates = []string{
	"/v0/users/%d/ovens/%s/cook/status",
	"/v0/users/%d/ovens/%s/status",
	"/v0/users/%d/ovens/%s",
}

// Config holds client credentials and connection settings.
type Config struct {
	Email    string
	Password string
	Token    string // optional pre-supplied bearer token
	Hosts    []string
}

// Session is the client's live authentication context, exported so the
// supervisor can persist it across restarts.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Host      string    `json:"host"`
	UserID    int64     `json:"user_id,omitempty"`
}

// Client talks to the Tovala cloud API. Session fields are guarded by mu so
// the client can be shared between the poller and the web handlers.
type Client struct {
	http   *http.Client
	logger *slog.Logger

	email    string
	password string
	hosts    []string

	mu         sync.Mutex
	token      string
	tokenExp   time.Time
	host       string
	userID     int64
	statusPath string // cook-status candidate that worked for this session
}

// NewClient creates a Client. Credentials are validated lazily at the first
// Authenticate call so a misconfigured account surfaces as AuthError, not a
// constructor failure.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger.With("component", "tovala"),
		email:    cfg.Email,
		password: cfg.Password,
		hosts:    hosts,
		token:    cfg.Token,
	}
}

// Session returns a copy of the current session, or false if the client has
// not authenticated yet.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.host == "" {
		return Session{}, false
	}
	return Session{Token: c.token, ExpiresAt: c.tokenExp, Host: c.host, UserID: c.userID}, true
}

// RestoreSession seeds the client with a previously persisted session. An
// expired session is ignored; the next Authenticate performs a fresh login.
func (c *Client) RestoreSession(s Session) {
	if s.Token == "" || time.Now().After(s.ExpiresAt) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = s.Token
	c.tokenExp = s.ExpiresAt
	c.host = s.Host
	c.userID = s.UserID
	c.statusPath = ""
}

// UserID returns the user id derived from the current token, or 0 if unknown.
func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Host returns the API host pinned by the current session, if any.
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Authenticate ensures the client holds a usable bearer token. It is a cheap
// no-op while the token is more than 60 seconds from expiry.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	now := time.Now()

	if c.token != "" && !c.tokenExp.IsZero() && now.Before(c.tokenExp.Add(-tokenSafety)) {
		return nil
	}
	if c.token == "" && (c.email == "" || c.password == "") {
		return &AuthError{Msg: "missing credentials"}
	}

	// A pre-supplied token comes without an expiry. The client cannot
	// validate it cheaply, so trust it for a default window, pin the first
	// host, and let the first real read surface any failure.
	if c.token != "" && c.tokenExp.IsZero() {
		c.tokenExp = now.Add(defaultTokenTTL)
		if c.host == "" {
			c.host = c.hosts[0]
		}
		if c.userID == 0 {
			uid, err := UserIDFromToken(c.token)
			if err != nil {
				c.logger.Warn("decode user id from supplied token", "err", err)
			} else {
				c.userID = uid
			}
		}
		return nil
	}

	if c.email == "" || c.password == "" {
		// Token-only client whose trust window ran out. There is nothing
		// to log in with, so this account needs re-authentication.
		return &AuthError{Msg: "token expired and no credentials to renew it"}
	}

	var lastErr error
	for _, host := range c.hosts {
		data, status, err := c.postLogin(ctx, host)
		if err != nil {
			lastErr = err
			continue
		}
		// Checked in priority order: a 429 is host-independent policy and a
		// 401/403 means the credentials are wrong everywhere, so neither is
		// worth retrying on another host.
		switch {
		case status == http.StatusTooManyRequests:
			return &RateLimitedError{Host: host}
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &AuthError{Msg: fmt.Sprintf("credentials rejected (HTTP %d)", status)}
		case status >= 400:
			lastErr = &APIError{Msg: "login " + host, Status: status}
			continue
		}

		token := firstString(data, "token", "accessToken", "jwt")
		if token == "" {
			lastErr = &AuthError{Msg: "no token in login response from " + host}
			continue
		}

		c.token = token
		c.tokenExp = now.Add(expiryFrom(data))
		c.host = host
		c.statusPath = ""

		uid, err := UserIDFromToken(token)
		if err != nil {
			// Not fatal at login time, but user-scoped reads will fail
			// fast with "no user id" until the vendor fixes the token.
			c.logger.Warn("decode user id from token", "err", err)
			c.userID = 0
		} else {
			c.userID = uid
		}

		c.logger.Info("logged in", "host", host, "user_id", c.userID,
			"token_expires", c.tokenExp.Format(time.RFC3339))
		return nil
	}

	if lastErr != nil {
		return &APIError{Msg: "login failed on all hosts", Err: lastErr}
	}
	return &APIError{Msg: "login failed: no hosts configured"}
}

// postLogin issues one login request against host. A non-nil error means a
// network-level failure; HTTP statuses are returned for the caller to triage.
func (c *Client) postLogin(ctx context.Context, host string) (map[string]any, int, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
		"type":     "user",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal login body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+loginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", originURL)
	req.Header.Set("Referer", refererURL)
	req.Header.Set(appIDHeader, appID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("login %s: %w", host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, nil
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, 0, fmt.Errorf("decode login response from %s: %w", host, err)
	}
	return data, resp.StatusCode, nil
}

// ListOvens returns the user's ovens. An unrecognized response shape degrades
// to an empty list rather than breaking the polling cycle.
func (c *Client) ListOvens(ctx context.Context) ([]map[string]any, error) {
	uid, err := c.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.getJSON(ctx, fmt.Sprintf("/v0/users/%d/ovens", uid))
	if err != nil {
		return nil, err
	}
	return ovensFromPayload(data), nil
}

// CookStatus fetches the raw cook-status payload for one oven. An empty oven
// id returns an empty snapshot without a network call so callers may poll
// before discovery has produced a device.
func (c *Client) CookStatus(ctx context.Context, ovenID string) (map[string]any, error) {
	if ovenID == "" {
		return map[string]any{}, nil
	}
	uid, err := c.requireUserID(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cached := c.statusPath
	c.mu.Unlock()

	candidates := cookStatusCandidates
	if cached != "" {
		candidates = []string{cached}
	}

	var lastErr error
	for _, tmpl := range candidates {
		path := fmt.Sprintf(tmpl, uid, url.PathEscape(ovenID))
		data, err := c.getJSON(ctx, path)
		if errors.Is(err, ErrNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.statusPath = tmpl
		c.mu.Unlock()
		if m, ok := data.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{}, nil
	}

	if cached != "" {
		// The cached path went stale; re-probe the full list once.
		c.mu.Lock()
		c.statusPath = ""
		c.mu.Unlock()
		return c.CookStatus(ctx, ovenID)
	}
	return nil, &APIError{Msg: "no cook status endpoint for oven " + ovenID, Err: lastErr}
}

func (c *Client) requireUserID(ctx context.Context) (int64, error) {
	if err := c.Authenticate(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	uid := c.userID
	c.mu.Unlock()
	if uid == 0 {
		return 0, &APIError{Msg: "no user id"}
	}
	return uid, nil
}

// getJSON performs one authenticated GET. 404 maps to ErrNotFound; any other
// failure maps to APIError with the cause chained.
func (c *Client) getJSON(ctx context.Context, path string) (any, error) {
	c.mu.Lock()
	if err := c.authenticateLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	host, token := c.host, c.token
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+path, nil)
	if err != nil {
		return nil, &APIError{Msg: "create request " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(appIDHeader, appID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Msg: "get " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if resp.StatusCode == http.StatusNotFound {
		return nil, &APIError{Msg: path, Status: resp.StatusCode, Err: ErrNotFound}
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Msg: path + ": " + truncate(string(body), 200), Status: resp.StatusCode}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// Some endpoints answer with an empty or non-JSON body on success.
		return map[string]any{}, nil
	}
	return data, nil
}

// ovensFromPayload accepts either a bare JSON array or the older object shape
// with an "ovens" wrapper key. Anything else degrades to no ovens.
func ovensFromPayload(data any) []map[string]any {
	if m, ok := data.(map[string]any); ok {
		if inner, ok := m["ovens"]; ok {
			data = inner
		}
	}
	arr, ok := data.([]any)
	if !ok {
		return []map[string]any{}
	}
	ovens := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			ovens = append(ovens, m)
		}
	}
	return ovens
}

// OvenID extracts the id field from an oven record, tolerating both string
// and numeric ids.
func OvenID(oven map[string]any) string {
	switch v := oven["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func expiryFrom(data map[string]any) time.Duration {
	switch v := data["expiresIn"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultTokenTTL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
