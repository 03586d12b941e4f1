// Package realtime talks to the token and signaling endpoints of a realtime
// voice API over HTTP.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAPIBase = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini-realtime-preview"
	DefaultVoice   = "verse"

	maxErrorBody = 512
)

var (
	ErrMissingSecret = errors.New("response has no client_secret.value")
	ErrTokenExpired  = errors.New("token expired")
	ErrEmptyAnswer   = errors.New("empty answer body")
)

// StatusError is a non-2xx response from an endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func statusError(resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func ok(code int) bool { return code >= 200 && code < 300 }

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

// TokenClient fetches ephemeral credentials from the token endpoint.
type TokenClient struct {
	URL  string
	HTTP *http.Client
}

func (c *TokenClient) FetchToken(ctx context.Context) (*domain.EphemeralToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindTokenFetch, "build request", err)
	}
	resp, err := httpClient(c.HTTP).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return nil, domain.NewError(domain.KindTokenFetch, "fetch token", statusError(resp))
	}

	var sess domain.RealtimeSession
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, domain.NewError(domain.KindTokenFetch, "decode token", err)
	}
	tok, found := sess.Token()
	if !found {
		return nil, domain.NewError(domain.KindTokenFetch, "decode token", ErrMissingSecret)
	}
	log.Debug().Str("module", "realtime").Time("expires_at", tok.ExpiresAt).Msg("token fetched")
	return tok, nil
}

// SDPClient posts local offers to the signaling endpoint.
type SDPClient struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
	Now     func() time.Time
}

func (c *SDPClient) endpoint() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	if c.Model != "" {
		q := u.Query()
		q.Set("model", c.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *SDPClient) ExchangeSDP(ctx context.Context, offerSDP string, token *domain.EphemeralToken) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if token.Expired(now()) {
		return "", domain.NewError(domain.KindTokenFetch, "exchange sdp", ErrTokenExpired)
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return "", domain.NewError(domain.KindSdpAnswer, "build request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", domain.NewError(domain.KindSdpAnswer, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient(c.HTTP).Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange sdp: %w", err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return "", domain.NewError(domain.KindSdpAnswer, "exchange sdp", statusError(resp))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.KindSdpAnswer, "read answer", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", domain.NewError(domain.KindSdpAnswer, "read answer", ErrEmptyAnswer)
	}
	return string(body), nil
}
