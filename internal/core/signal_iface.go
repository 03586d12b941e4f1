package core

import (
	"context"

	"github.com/dkeye/voicelink/internal/domain"
)

// TokenSource issues the short-lived negotiation credential.
type TokenSource interface {
	FetchToken(ctx context.Context) (*domain.EphemeralToken, error)
}

// Signaler sends the local offer and returns the remote answer SDP.
type Signaler interface {
	ExchangeSDP(ctx context.Context, offerSDP string, token *domain.EphemeralToken) (string, error)
}
