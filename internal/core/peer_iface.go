package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type PeerFactory interface {
	NewPeerLink(cfg webrtc.Configuration) (PeerLink, error)
}

// PeerLink is the transport connection to the remote peer.
type PeerLink interface {
	// AddTrack attaches a local track as outbound media.
	AddTrack(track webrtc.TrackLocal) error
	// OnRemoteStream sets a callback invoked when a remote audio track arrives.
	OnRemoteStream(func(RemoteStream))
	// OnStateChange sets a callback for peer connection state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
	// CreateOffer generates an offer, commits it as the local description and
	// returns the description once candidate gathering completes.
	CreateOffer(ctx context.Context) (string, error)
	// SetAnswer commits the remote answer.
	SetAnswer(sdp string) error
	// OpenControlChannel returns the ordered, reliable control channel
	// multiplexed over the link.
	OpenControlChannel() (ControlChannel, error)
	Close() error
}

// ControlChannel carries small JSON control messages after connection.
type ControlChannel interface {
	Label() string
	Send(data []byte) error
	OnMessage(func([]byte))
	OnOpen(func())
	OnClose(func())
	Close() error
}
