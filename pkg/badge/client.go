package badge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUserAgent is sent with every client request.
const DefaultUserAgent = "anchorbadge-client/1.0"

// ClientError is a non-2xx answer from the issuer.
type ClientError struct {
	Status  int
	Code    string
	Message string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("issuer returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("issuer returned %d: %s", e.Status, e.Message)
}

// Client talks to an issuer's public endpoints on behalf of a verifier.
// Requests are retried on connection errors and 5xx answers.
type Client struct {
	baseURL   string
	http      *retryablehttp.Client
	userAgent string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryMax sets the number of retries per request.
func WithRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the issuer at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      rc,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublicKey fetches the issuer's signing key description.
func (c *Client) PublicKey(ctx context.Context) (*PublicKeyInfo, error) {
	var info PublicKeyInfo
	if err := c.do(ctx, http.MethodGet, "/v1/public-key", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// JWKSURL returns the issuer's JWKS location.
func (c *Client) JWKSURL() string {
	return c.baseURL + "/.well-known/jwks.json"
}

// Verify asks the issuer to verify b against its stored state.
func (c *Client) Verify(ctx context.Context, b *Badge) (*VerifyResult, error) {
	body, err := json.Marshal(VerifyRequest{Token: b.Token, Payload: b.Payload, Signature: b.Signature})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}
	var res VerifyResult
	if err := c.do(ctx, http.MethodPost, "/v1/badges/verify", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Revocations fetches revocations at or after since. A zero since fetches all.
func (c *Client) Revocations(ctx context.Context, since time.Time) ([]Revocation, error) {
	path := "/v1/revocations"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	var out struct {
		Revocations []Revocation `json:"revocations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Revocations, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rawBody any
	if body != nil {
		rawBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call issuer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func parseErrorResponse(status int, body []byte) error {
	var errResp struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &ClientError{Status: status, Code: errResp.Error, Message: errResp.Description}
	}
	return &ClientError{Status: status, Message: strings.TrimSpace(string(body))}
}
