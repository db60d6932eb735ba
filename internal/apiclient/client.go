// Package apiclient talks to the parcel backend's REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/gvafram3/parcel-console/internal/config"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	apiPrefix      = "api/v1"
)

// userAgentRoundTripper adds a User-Agent header.
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// unauthorizedSource marks a missing or unreadable token as ErrUnauthorized.
type unauthorizedSource struct {
	src oauth2.TokenSource
}

func (u unauthorizedSource) Token() (*oauth2.Token, error) {
	tok, err := u.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return tok, nil
}

// Client is the console's HTTP resource client. Calls made through it carry
// the session's bearer token; Login does not.
type Client struct {
	base   *url.URL
	anon   *http.Client
	authed *http.Client
	log    zerolog.Logger
}

// New builds a client for cfg. tokens supplies the bearer token per request.
// transport may be nil to use http.DefaultTransport.
func New(cfg config.APIConfig, tokens oauth2.TokenSource, transport http.RoundTripper, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := &userAgentRoundTripper{wrapped: transport, userAgent: cfg.UserAgent}
	return &Client{
		base: base,
		anon: &http.Client{Transport: ua, Timeout: timeout},
		authed: &http.Client{
			Transport: &oauth2.Transport{Source: unauthorizedSource{src: tokens}, Base: ua},
			Timeout:   timeout,
		},
		log: logger.With().Str("module", "apiclient").Logger(),
	}, nil
}

// resolve builds <base>/api/v1/<elems...>?<query>.
func (c *Client) resolve(query url.Values, elems ...string) string {
	parts := append([]string{apiPrefix}, elems...)
	u := c.base.JoinPath(parts...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one request and decodes a 2xx JSON answer into out (when non-nil).
func (c *Client) do(ctx context.Context, hc *http.Client, method, urlStr string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return ErrUnauthorized
		}
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
