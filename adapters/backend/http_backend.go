package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/layer-3/walletauth/ports"
)

const (
	DefaultChallengePath = "/api/auth/nonce"
	DefaultVerifyPath    = "/api/auth/verify"
	DefaultTimeout       = 10 * time.Second

	maxChallengeSize = 1024
)

// VerifyRequest is the body POSTed to the verify endpoint.
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// HTTPBackend implements ports.Backend against the relying party's HTTP API.
type HTTPBackend struct {
	client       *fasthttp.Client
	challengeURL string
	verifyURL    string
	timeout      time.Duration
}

// NewHTTPBackend creates a backend client for baseURL. Empty paths and a zero
// timeout fall back to the defaults.
func NewHTTPBackend(baseURL, challengePath, verifyPath string, timeout time.Duration) (*HTTPBackend, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if challengePath == "" {
		challengePath = DefaultChallengePath
	}
	if verifyPath == "" {
		verifyPath = DefaultVerifyPath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPBackend{
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			MaxIdleConnDuration: 10 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		challengeURL: base.JoinPath(challengePath).String(),
		verifyURL:    base.JoinPath(verifyPath).String(),
		timeout:      timeout,
	}, nil
}

// Challenge fetches a fresh nonce. The response body is the nonce.
func (b *HTTPBackend) Challenge(ctx context.Context) (string, error) {
	status, body, err := b.do(ctx, fasthttp.MethodGet, b.challengeURL, nil)
	if err != nil {
		return "", fmt.Errorf("challenge request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("challenge endpoint returned status %d", status)
	}
	if len(body) == 0 || len(body) > maxChallengeSize {
		return "", fmt.Errorf("challenge endpoint returned %d bytes", len(body))
	}
	return strings.TrimSpace(string(body)), nil
}

// Verify submits the signed message. A rejection by the relying party is a
// result with Success false, not an error; errors mean no usable answer was
// received.
func (b *HTTPBackend) Verify(ctx context.Context, message, signature string) (ports.VerifyResult, error) {
	payload, err := json.Marshal(VerifyRequest{Message: message, Signature: signature})
	if err != nil {
		return ports.VerifyResult{}, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	status, body, err := b.do(ctx, fasthttp.MethodPost, b.verifyURL, payload)
	if err != nil {
		return ports.VerifyResult{}, fmt.Errorf("verify request failed: %w", err)
	}
	if status >= 500 {
		return ports.VerifyResult{}, fmt.Errorf("verify endpoint returned status %d", status)
	}

	var res ports.VerifyResult
	if err := json.Unmarshal(body, &res); err != nil {
		return ports.VerifyResult{}, fmt.Errorf("invalid verify response: %w", err)
	}
	if status < 200 || status >= 300 {
		return ports.VerifyResult{Success: false}, nil
	}
	return res, nil
}

// do performs one request. If ctx ends first the request is left to finish
// on its own and its result is dropped.
func (b *HTTPBackend) do(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	type result struct {
		status int
		body   []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(uri)
		req.Header.SetMethod(method)
		if body != nil {
			req.Header.SetContentType("application/json")
			req.SetBody(body)
		}

		err := b.client.DoDeadline(req, resp, deadline)

		// Capture response before releasing
		r := result{err: err}
		if err == nil {
			r.status = resp.StatusCode()
			r.body = append([]byte(nil), resp.Body()...)
		}

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		done <- r
	}()

	select {
	case r := <-done:
		return r.status, r.body, r.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}
