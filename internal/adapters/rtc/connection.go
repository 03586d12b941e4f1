package rtc

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const ControlChannelLabel = "oai-events"

var ErrEmptyAnswer = errors.New("empty answer sdp")

// DefaultWebRTCConfig is the fixed discovery configuration of a session.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:global.stun.twilio.com:3478"}},
		},
		ICECandidatePoolSize: 10,
	}
}

// Factory creates pion-backed peer links. The control channel labelled
// ControlLabel is declared before the offer so the SDP carries an
// application section for it.
type Factory struct {
	API          *webrtc.API
	ControlLabel string
}

func NewFactory() *Factory {
	return &Factory{ControlLabel: ControlChannelLabel}
}

func (f *Factory) NewPeerLink(cfg webrtc.Configuration) (core.PeerLink, error) {
	api := f.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	link := &PeerLink{pc: pc, id: uuid.NewString(), label: f.ControlLabel}

	if f.ControlLabel != "" {
		ordered := true
		dc, err := pc.CreateDataChannel(f.ControlLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		link.declared = dc
	}
	link.bind()
	return link, nil
}

type PeerLink struct {
	pc       *webrtc.PeerConnection
	id       string
	label    string
	declared *webrtc.DataChannel

	mu       sync.Mutex
	onRemote func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

func (l *PeerLink) bind() {
	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("link", l.id).Str("ice_state", s.String()).Msg("ICE state")
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("link", l.id).Str("peer_connection_state", s.String()).Msg("Peer state")
		l.mu.Lock()
		fn := l.onState
		l.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("link", l.id).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		l.mu.Lock()
		fn := l.onRemote
		l.mu.Unlock()
		if fn != nil {
			fn(&remoteStream{track: track})
		}
	})
}

func (l *PeerLink) AddTrack(track webrtc.TrackLocal) error {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (l *PeerLink) OnRemoteStream(fn func(core.RemoteStream)) {
	l.mu.Lock()
	l.onRemote = fn
	l.mu.Unlock()
}

func (l *PeerLink) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *PeerLink) CreateOffer(ctx context.Context) (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}

	gatherComplete := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := l.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return local.SDP, nil
}

func (l *PeerLink) SetAnswer(sdp string) error {
	if strings.TrimSpace(sdp) == "" {
		return ErrEmptyAnswer
	}
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// OpenControlChannel returns the channel declared with the offer. Links
// created without a control label get one now, which needs a renegotiation
// before it can open.
func (l *PeerLink) OpenControlChannel() (core.ControlChannel, error) {
	if l.declared != nil {
		return &controlChannel{dc: l.declared}, nil
	}
	label := l.label
	if label == "" {
		label = ControlChannelLabel
	}
	ordered := true
	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &controlChannel{dc: dc}, nil
}

func (l *PeerLink) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.pc.Close()
		if l.closeErr != nil {
			log.Error().Err(l.closeErr).Str("module", "webrtc").Str("link", l.id).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("link", l.id).Msg("closed")
		}
	})
	return l.closeErr
}

// PeerConnection exposes the underlying connection for diagnostics.
func (l *PeerLink) PeerConnection() *webrtc.PeerConnection { return l.pc }
