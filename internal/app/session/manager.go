// Package session drives one peer-to-peer audio session through its
// lifecycle: capture, negotiation, connected, teardown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errPeerFailed = errors.New("peer connection state failed")

// Deps are the collaborators a session is composed from.
type Deps struct {
	Capturer core.Capturer
	Peers    core.PeerFactory
	Tokens   core.TokenSource
	Signaler core.Signaler
}

type Options struct {
	WebRTC webrtc.Configuration
	Audio  domain.AudioConstraints
}

// Manager owns a single session. Every owned handle is reachable only
// through the manager; observers get read-only notifications.
//
// Each Connect and Disconnect starts a new epoch. Steps and callbacks of a
// superseded epoch detect it and stop touching the session.
type Manager struct {
	deps   Deps
	opts   Options
	events *Emitter
	logger zerolog.Logger

	// emitMu orders state mutations with their notifications. Resources are
	// never released while it is held.
	emitMu sync.Mutex

	mu         sync.Mutex
	state      domain.ConnectionState
	epoch      uint64
	cancel     context.CancelFunc
	capture    core.AudioCapture
	link       core.PeerLink
	control    core.ControlChannel
	remote     core.RemoteStream
	sink       core.AudioSink
	sinkCancel context.CancelFunc
}

func NewManager(deps Deps, opts Options) *Manager {
	if opts.Audio == (domain.AudioConstraints{}) {
		opts.Audio = domain.DefaultAudioConstraints()
	}
	return &Manager{
		deps:   deps,
		opts:   opts,
		events: NewEmitter(),
		logger: log.With().Str("module", "session").Logger(),
		state:  domain.StateUninitialized,
	}
}

func (m *Manager) Events() *Emitter { return m.events }

func (m *Manager) ConnectionState() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect acquires the capture device and negotiates the session. It fails
// fast with domain.ErrSessionBusy while another session is active. On any
// failure every acquired resource is released, observers get the error
// followed by Disconnected, and the error is returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Busy() {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w (state %s)", domain.ErrSessionBusy, st)
	}
	m.epoch++
	epoch := m.epoch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancel = cancel
	m.state = domain.StateInitializing
	m.mu.Unlock()

	m.logger.Info().Uint64("epoch", epoch).Msg("connect")
	m.transition(epoch, domain.StateInitializing, nil)

	if err := m.negotiate(ctx, epoch); err != nil {
		return m.fail(epoch, err)
	}
	m.logger.Info().Uint64("epoch", epoch).Msg("connected")
	return nil
}

func (m *Manager) negotiate(ctx context.Context, epoch uint64) error {
	capture, err := m.deps.Capturer.Open(ctx, m.opts.Audio)
	if err != nil {
		if !errors.Is(err, domain.ErrMediaAccess) {
			err = domain.NewError(domain.KindMediaAccess, "open capture", err)
		}
		return err
	}
	if !m.adopt(epoch, func() { m.capture = capture }) {
		_ = capture.Stop()
		return domain.ErrConnectAborted
	}

	link, err := m.deps.Peers.NewPeerLink(m.opts.WebRTC)
	if err != nil {
		return fmt.Errorf("create peer link: %w", err)
	}
	for _, track := range capture.Tracks() {
		if err := link.AddTrack(track); err != nil {
			_ = link.Close()
			return fmt.Errorf("add track: %w", err)
		}
	}
	link.OnRemoteStream(func(s core.RemoteStream) { m.handleRemoteStream(epoch, s) })
	link.OnStateChange(func(s webrtc.PeerConnectionState) { m.handlePeerState(epoch, s) })

	if !m.transition(epoch, domain.StateNegotiating, func() { m.link = link }) {
		_ = link.Close()
		return domain.ErrConnectAborted
	}

	offer, err := link.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if m.stale(epoch) {
		return domain.ErrConnectAborted
	}

	token, err := m.deps.Tokens.FetchToken(ctx)
	if err != nil {
		return err
	}
	if m.stale(epoch) {
		return domain.ErrConnectAborted
	}

	answer, err := m.deps.Signaler.ExchangeSDP(ctx, offer, token)
	if err != nil {
		return err
	}
	if m.stale(epoch) {
		return domain.ErrConnectAborted
	}

	if err := link.SetAnswer(answer); err != nil {
		return domain.NewError(domain.KindSdpAnswer, "set remote description", err)
	}
	if m.stale(epoch) {
		return domain.ErrConnectAborted
	}

	control, err := link.OpenControlChannel()
	if err != nil {
		return fmt.Errorf("open control channel: %w", err)
	}
	m.bindControl(epoch, control)

	if !m.transition(epoch, domain.StateConnected, func() { m.control = control }) {
		return domain.ErrConnectAborted
	}
	return nil
}

// Disconnect releases every owned resource and moves to Disconnected. It is
// safe from any state and cancels an in-flight Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	h := m.detachLocked()
	m.mu.Unlock()

	h.release(m.logger)
	m.transition(epoch, domain.StateDisconnected, nil)
	m.logger.Info().Uint64("epoch", epoch).Msg("disconnected")
}

// SetAudioEnabled mutes or unmutes the outbound audio without renegotiating.
func (m *Manager) SetAudioEnabled(enabled bool) {
	m.mu.Lock()
	capture := m.capture
	m.mu.Unlock()
	if capture == nil {
		return
	}
	capture.SetEnabled(enabled)
	m.logger.Debug().Bool("enabled", enabled).Msg("audio enabled")
}

// SetRemoteAudioSink routes remote audio to sink, including a stream that
// already arrived.
func (m *Manager) SetRemoteAudioSink(sink core.AudioSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sinkCancel != nil {
		m.sinkCancel()
		m.sinkCancel = nil
	}
	m.sink = sink
	if m.remote != nil {
		m.playLocked(m.remote)
	}
}

// SendMessage JSON-encodes v onto the control channel.
func (m *Manager) SendMessage(v any) error {
	m.mu.Lock()
	control := m.control
	state := m.state
	m.mu.Unlock()
	if control == nil || state != domain.StateConnected {
		return domain.ErrNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	return control.Send(b)
}

func (m *Manager) playLocked(s core.RemoteStream) {
	if m.sink == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.sinkCancel = cancel
	go m.sink.Play(ctx, s)
}

func (m *Manager) stale(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch != epoch
}

// adopt runs mutate if epoch is still current.
func (m *Manager) adopt(epoch uint64, mutate func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	mutate()
	return true
}

// transition applies mutate and moves to state if epoch is still current,
// then notifies observers.
func (m *Manager) transition(epoch uint64, state domain.ConnectionState, mutate func()) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	if mutate != nil {
		mutate()
	}
	m.state = state
	m.mu.Unlock()

	m.events.emitState(state)
	return true
}

func (m *Manager) fail(epoch uint64, cause error) error {
	if errors.Is(cause, domain.ErrConnectAborted) {
		m.logger.Info().Uint64("epoch", epoch).Msg("connect aborted")
		return cause
	}
	err := domain.Normalize(cause)
	if !m.teardown(epoch, err) {
		m.logger.Info().Err(err).Uint64("epoch", epoch).Msg("connect superseded")
		return fmt.Errorf("%w: %v", domain.ErrConnectAborted, err)
	}
	m.logger.Error().Err(err).Str("kind", string(domain.KindOf(err))).Uint64("epoch", epoch).Msg("connect failed")
	return err
}

// teardown releases the session of epoch and reports err immediately
// followed by Disconnected. It returns false if epoch was superseded.
func (m *Manager) teardown(epoch uint64, err error) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	h := m.detachLocked()
	m.mu.Unlock()

	h.release(m.logger)

	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.epoch++
	m.state = domain.StateDisconnected
	m.mu.Unlock()

	m.events.emitError(err)
	m.events.emitState(domain.StateDisconnected)
	return true
}

func (m *Manager) handleRemoteStream(epoch uint64, s core.RemoteStream) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.epoch != epoch || m.link == nil {
		m.mu.Unlock()
		return
	}
	m.remote = s
	if m.sinkCancel != nil {
		m.sinkCancel()
	}
	m.playLocked(s)
	m.mu.Unlock()

	m.logger.Info().Str("stream_id", s.StreamID()).Str("codec", s.Codec()).Msg("remote stream")
	m.events.emitStream(s)
}

func (m *Manager) handlePeerState(epoch uint64, s webrtc.PeerConnectionState) {
	if s != webrtc.PeerConnectionStateFailed {
		return
	}
	// Tear down off the transport's callback goroutine.
	go func() {
		if m.ConnectionState() != domain.StateConnected {
			return
		}
		if m.teardown(epoch, domain.NewError(domain.KindPeerLink, "peer connection", errPeerFailed)) {
			m.logger.Warn().Uint64("epoch", epoch).Msg("peer link failed")
		}
	}()
}

func (m *Manager) bindControl(epoch uint64, ch core.ControlChannel) {
	label := ch.Label()
	ch.OnOpen(func() {
		m.logger.Info().Str("label", label).Msg("control channel opened")
	})
	ch.OnClose(func() {
		m.logger.Info().Str("label", label).Msg("control channel closed")
	})
	ch.OnMessage(func(b []byte) { m.handleControlMessage(epoch, b) })
}

// handleControlMessage reports malformed messages as non-fatal errors; the
// session stays connected.
func (m *Manager) handleControlMessage(epoch uint64, b []byte) {
	var msg Message
	err := json.Unmarshal(b, &msg)

	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.stale(epoch) {
		return
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("malformed control message")
		m.events.emitError(domain.NewError(domain.KindDataChannelMessage, "decode control message", err))
		return
	}
	msg.Raw = json.RawMessage(b)
	m.events.emitMessage(msg)
}

// handles are the owned resources of one session, detached for release
// outside the manager's locks.
type handles struct {
	cancel     context.CancelFunc
	sinkCancel context.CancelFunc
	control    core.ControlChannel
	link       core.PeerLink
	capture    core.AudioCapture
}

func (m *Manager) detachLocked() handles {
	h := handles{
		cancel:     m.cancel,
		sinkCancel: m.sinkCancel,
		control:    m.control,
		link:       m.link,
		capture:    m.capture,
	}
	m.cancel = nil
	m.sinkCancel = nil
	m.control = nil
	m.link = nil
	m.capture = nil
	m.remote = nil
	return h
}

func (h handles) release(logger zerolog.Logger) {
	if h.cancel != nil {
		h.cancel()
	}
	if h.sinkCancel != nil {
		h.sinkCancel()
	}
	if h.control != nil {
		if err := h.control.Close(); err != nil {
			logger.Warn().Err(err).Msg("close control channel")
		}
	}
	if h.link != nil {
		if err := h.link.Close(); err != nil {
			logger.Warn().Err(err).Msg("close peer link")
		}
	}
	if h.capture != nil {
		if err := h.capture.Stop(); err != nil {
			logger.Warn().Err(err).Msg("stop capture")
		}
	}
}
