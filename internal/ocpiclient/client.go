// Package ocpiclient calls the endpoints a remote party advertises, with correlation headers,
// a retry policy and envelope decoding.
package ocpiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

var (
	ErrNoRemoteEndpoint = errors.New("remote party advertises no endpoint for module")
	ErrNoCredential     = errors.New("remote party has no usable outgoing credential")
)

// TransportError means no HTTP response was obtained, after all retries.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means the remote party answered, but not with a success envelope.
type StatusError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("remote answered HTTP %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("remote answered HTTP %d status_code %d: %s", e.HTTPStatus, e.Code, e.Message)
}

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a client. Zero values fall back to the defaults below.
type Options struct {
	// Token overrides the token of the party's outgoing credential.
	Token     string
	UserAgent string
	// From is our own identity, sent in the routing headers.
	From           models.PartyIdentity
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	TLSConfig      *tls.Config
	Doer           Doer
	Observers      []Observer
	Logger         *zap.Logger
}

const (
	DefaultUserAgent      = "cpo-ocpi-client/" + ocpi.Version
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Doer == nil {
		o.Doer = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     o.TLSConfig,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Client talks to one remote party.
type Client struct {
	token string
	opts  Options

	mu    sync.RWMutex
	party models.RemoteParty
	cred  models.OutgoingCredential
}

func New(party models.RemoteParty, opts Options) (*Client, error) {
	cred, ok := party.UsableOutgoing()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, party.ID)
	}
	opts = opts.withDefaults()
	if opts.Token != "" {
		cred.Token = opts.Token
	}
	return &Client{token: cred.Token, opts: opts, party: party.Clone(), cred: cred}, nil
}

func (c *Client) Party() models.PartyIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.party.ID
}

// ResolveEndpoint returns the URL the party advertises for module. An empty version means the
// selected version of our credential.
func (c *Client) ResolveEndpoint(module models.ModuleID, version string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if version == "" {
		version = c.cred.SelectedVersion
	}
	ep, ok := c.party.FindEndpoint(version, module)
	if !ok || ep.URL == "" {
		return "", false
	}
	return ep.URL, true
}

// Response is a decoded success envelope.
type Response[T any] struct {
	Data          T
	StatusCode    int
	StatusMessage string
	Timestamp     time.Time
	HTTPStatus    int
	Header        http.Header
	RequestID     string
	CorrelationID string
}

type callConfig struct {
	requestID     string
	correlationID string
}

// CallOption adjusts a single call.
type CallOption func(*callConfig)

// WithRequestID sets the X-Request-ID header instead of generating one.
func WithRequestID(id string) CallOption {
	return func(c *callConfig) { c.requestID = id }
}

// WithCorrelationID continues an existing conversation instead of starting a new one.
func WithCorrelationID(id string) CallOption {
	return func(c *callConfig) { c.correlationID = id }
}

type call struct {
	module models.ModuleID
	method string
	url    string
	body   any
	to     models.PartyIdentity
}

// resolve joins the module endpoint with path segments.
func (c *Client) resolve(module models.ModuleID, segments ...string) (string, error) {
	base, ok := c.ResolveEndpoint(module, "")
	if !ok {
		return "", fmt.Errorf("%w %s (party %s)", ErrNoRemoteEndpoint, module, c.Party())
	}
	return joinURL(base, segments...), nil
}

func joinURL(base string, segments ...string) string {
	u := strings.TrimRight(base, "/")
	for _, s := range segments {
		if s == "" {
			continue
		}
		u += "/" + url.PathEscape(s)
	}
	return u
}

func do[T any](ctx context.Context, c *Client, cl call, opts []CallOption) (*Response[T], error) {
	cfg := callConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.requestID == "" {
		cfg.requestID = uuid.NewString()
	}
	if cfg.correlationID == "" {
		cfg.correlationID = uuid.NewString()
	}

	var payload []byte
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", cl.module, err)
		}
		payload = raw
	}

	start := time.Now()
	status, header, body, attempts, err := c.execute(ctx, cl, cfg, payload)
	info := CallInfo{
		Party:         c.Party(),
		Module:        cl.module,
		Method:        cl.method,
		URL:           cl.url,
		RequestID:     cfg.requestID,
		CorrelationID: cfg.correlationID,
		Attempts:      attempts,
		HTTPStatus:    status,
		Duration:      time.Since(start),
	}
	if err != nil {
		info.Err = err
		c.notify(info)
		return nil, err
	}

	resp, err := decode[T](status, body)
	if resp != nil {
		resp.Header = header
		resp.RequestID = cfg.requestID
		resp.CorrelationID = cfg.correlationID
		info.StatusCode = resp.StatusCode
	}
	info.Err = err
	var se *StatusError
	if errors.As(err, &se) {
		info.StatusCode = se.Code
	}
	c.notify(info)
	return resp, err
}

// execute runs the attempts. Transport errors and 5xx answers are retried; caller
// cancellation ends the loop at once.
func (c *Client) execute(ctx context.Context, cl call, cfg callConfig, payload []byte) (int, http.Header, []byte, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.opts.RetryDelay); err != nil {
				break
			}
		}
		attempts++
		status, header, body, err := c.attempt(ctx, cl, cfg, payload)
		if err == nil && status < 500 {
			return status, header, body, attempts, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("HTTP %d", status)
			if attempt == c.opts.MaxRetries {
				// the last 5xx answer is returned as is so its envelope can be decoded
				return status, header, body, attempts, nil
			}
		} else {
			lastErr = err
		}
		c.opts.Logger.Debug("outbound attempt failed",
			zap.String("module", string(cl.module)), zap.String("url", cl.url),
			zap.Int("attempt", attempts), zap.Error(lastErr))
		if ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}
	return 0, nil, nil, attempts, &TransportError{Method: cl.method, URL: cl.url, Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, cl call, cfg callConfig, payload []byte) (int, http.Header, []byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, cl.method, cl.url, body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set(ocpi.HeaderRequestID, cfg.requestID)
	req.Header.Set(ocpi.HeaderCorrelationID, cfg.correlationID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.opts.From.IsZero() {
		req.Header.Set(ocpi.HeaderFromCountryCode, c.opts.From.CountryCode)
		req.Header.Set(ocpi.HeaderFromPartyID, c.opts.From.PartyID)
	}
	to := cl.to
	if to.IsZero() {
		to = c.Party()
	}
	req.Header.Set(ocpi.HeaderToCountryCode, to.CountryCode)
	req.Header.Set(ocpi.HeaderToPartyID, to.PartyID)

	resp, err := c.opts.Doer.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, err
	}
	return resp.StatusCode, resp.Header, b, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decode[T any](status int, body []byte) (*Response[T], error) {
	var env ocpi.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.StatusCode == 0 {
		return nil, &StatusError{HTTPStatus: status, Message: snippet(body)}
	}
	if !env.Success() {
		return nil, &StatusError{HTTPStatus: status, Code: env.StatusCode, Message: env.StatusMessage}
	}
	resp := &Response[T]{
		StatusCode:    env.StatusCode,
		StatusMessage: env.StatusMessage,
		Timestamp:     env.Timestamp,
		HTTPStatus:    status,
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &resp.Data); err != nil {
			return nil, fmt.Errorf("decode envelope data: %w", err)
		}
	}
	return resp, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}

func (c *Client) notify(info CallInfo) {
	for _, o := range c.opts.Observers {
		o(info)
	}
}
