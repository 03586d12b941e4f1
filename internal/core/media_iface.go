package core

import (
	"context"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Capturer opens the local audio input device.
type Capturer interface {
	// Open acquires the device. Failures are domain.KindMediaAccess errors.
	Open(ctx context.Context, c domain.AudioConstraints) (AudioCapture, error)
}

// AudioCapture is an exclusively owned, opened capture device.
type AudioCapture interface {
	// Tracks returns the outbound audio tracks produced by the device.
	Tracks() []webrtc.TrackLocal
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop ends every track and releases the device. Safe to call twice.
	Stop() error
}

// RemoteStream is an inbound audio stream delivered by the remote peer.
type RemoteStream interface {
	ID() string
	StreamID() string
	Codec() string
	ReadRTP() (*rtp.Packet, error)
}

// AudioSink plays back a remote stream until ctx is done or the stream ends.
type AudioSink interface {
	Play(ctx context.Context, stream RemoteStream)
}
