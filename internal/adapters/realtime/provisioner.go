package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/voicelink/internal/app/fallback"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoAPIKey = errors.New("realtime api key not configured")

// Provisioner creates upstream realtime sessions, which carry the ephemeral
// client secret handed to the token endpoint's callers.
type Provisioner struct {
	APIBase        string
	APIKey         string
	Model          string
	FallbackModels []string
	Voice          string
	HTTP           *http.Client
}

type sessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

// Provision tries the primary model, then each fallback model, and returns
// the first upstream session object created.
func (p *Provisioner) Provision(ctx context.Context) (*domain.RealtimeSession, error) {
	if p.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	models := append([]string{p.Model}, p.FallbackModels...)
	strategies := make([]fallback.Strategy[*domain.RealtimeSession], 0, len(models))
	for _, m := range models {
		if m == "" {
			continue
		}
		model := m
		strategies = append(strategies, fallback.Strategy[*domain.RealtimeSession]{
			Name: model,
			Run: func(ctx context.Context) (*domain.RealtimeSession, error) {
				return p.create(ctx, model)
			},
		})
	}
	return fallback.Run(ctx, strategies...)
}

func (p *Provisioner) create(ctx context.Context, model string) (*domain.RealtimeSession, error) {
	body, err := json.Marshal(sessionRequest{Model: model, Voice: p.Voice})
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(p.APIBase, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(p.HTTP).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return nil, statusError(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var sess domain.RealtimeSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if _, found := sess.Token(); !found {
		return nil, ErrMissingSecret
	}
	sess.Raw = raw
	log.Info().Str("module", "realtime").Str("model", model).Str("session_id", sess.ID).Msg("realtime session created")
	return &sess, nil
}

// FetchToken provisions a session and returns its client secret, so a
// server-side session can skip the token endpoint round trip.
func (p *Provisioner) FetchToken(ctx context.Context) (*domain.EphemeralToken, error) {
	sess, err := p.Provision(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindTokenFetch, "provision session", err)
	}
	tok, _ := sess.Token()
	return tok, nil
}
