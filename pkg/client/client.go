package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Session is returned by CreateSession.
type Session struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Policy    string    `json:"policy"`
}

// Review is the payload for Submit and Check.
type Review struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id,omitempty"`
	Review    string `json:"review"`
}

// Payload mirrors the ledger payload of a record.
type Payload struct {
	UserID    string  `json:"User_ID"`
	ProductID string  `json:"Product_ID,omitempty"`
	Review    string  `json:"Review,omitempty"`
	Timestamp float64 `json:"Timestamp,omitempty"`
}

// Record is a sealed ledger record.
type Record struct {
	Sequence     int       `json:"sequence"`
	CreatedAt    time.Time `json:"created_at"`
	Payload      Payload   `json:"payload"`
	PreviousSeal string    `json:"previous_seal"`
	Seal         string    `json:"seal"`
}

// Verdict is the scoring oracle's thresholded result.
type Verdict struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SubmitResult is the outcome of Submit. A rejected submission is not an
// error: Accepted is false and Decision/Message explain why.
type SubmitResult struct {
	Accepted bool     `json:"accepted"`
	Decision string   `json:"decision"`
	Message  string   `json:"message,omitempty"`
	Record   *Record  `json:"record,omitempty"`
	Verdict  *Verdict `json:"verdict,omitempty"`
}

// LedgerOverview summarises a ledger.
type LedgerOverview struct {
	Records int    `json:"records"`
	Root    string `json:"root"`
	Policy  string `json:"policy"`
}

// VerifyResult is the outcome of a ledger integrity check.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Client talks to a reviewd server.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the request timeout. A client supplied through
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
		return nil
	}
}

// WithSessionToken attaches an existing session token to every request.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the session token currently in use.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// CreateSession starts a session on the server and adopts its token for
// subsequent calls.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.call(ctx, http.MethodPost, "/api/v1/sessions", nil, &s); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = s.Token
	c.mu.Unlock()
	return &s, nil
}

// EndSession discards the current session and its ledger.
func (c *Client) EndSession(ctx context.Context) error {
	if err := c.call(ctx, http.MethodDelete, "/api/v1/sessions/current", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// Submit sends a review through the ledger gate.
func (c *Client) Submit(ctx context.Context, r Review) (*SubmitResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/reviews", r)
	if err != nil {
		return nil, err
	}
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated, http.StatusConflict, http.StatusUnprocessableEntity:
		var res SubmitResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("decode submit response: %w", err)
		}
		return &res, nil
	default:
		return nil, apiError(status, body)
	}
}

// Check reports whether the ledger policy would reject r as a duplicate.
func (c *Client) Check(ctx context.Context, r Review) (bool, error) {
	var resp struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/reviews/check", r, &resp); err != nil {
		return false, err
	}
	return resp.Duplicate, nil
}

// Reviews lists the accepted records of the current ledger.
func (c *Client) Reviews(ctx context.Context) ([]Record, error) {
	var resp struct {
		Reviews []Record `json:"reviews"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/reviews", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reviews, nil
}

// Ledger returns an overview of the current ledger.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var o LedgerOverview
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Record fetches a single record by sequence number.
func (c *Client) Record(ctx context.Context, seq int) (*Record, error) {
	var r Record
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/records/"+strconv.Itoa(seq), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Verify asks the server to walk the current ledger.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var v VerifyResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ── internals ─────────────────────────────────────────────────────────────────

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	status, body, err := c.doStatusBody(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, apiError(status, body)
	}
	return body, nil
}

// doStatusBody returns (statusCode, body, error) without failing on 4xx
// responses. The caller interprets the status code.
func (c *Client) doStatusBody(req *http.Request) (int, []byte, error) {
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// APIError is returned for non-2xx responses the client does not interpret.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: status, Message: msg}
}
