package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type fakeCapture struct {
	enabled atomic.Bool
	stops   atomic.Int32
	toggles []bool
	mu      sync.Mutex
}

func newFakeCapture() *fakeCapture {
	c := &fakeCapture{}
	c.enabled.Store(true)
	return c
}

func (c *fakeCapture) Tracks() []webrtc.TrackLocal { return nil }

func (c *fakeCapture) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.toggles = append(c.toggles, enabled)
	c.mu.Unlock()
	c.enabled.Store(enabled)
}

func (c *fakeCapture) Enabled() bool { return c.enabled.Load() }

func (c *fakeCapture) Stop() error {
	c.stops.Add(1)
	return nil
}

func (c *fakeCapture) stopped() bool { return c.stops.Load() > 0 }

type fakeCapturer struct {
	err     error
	capture *fakeCapture
	opens   atomic.Int32
	// entered and release make Open block until released, ignoring ctx.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCapturer) Open(ctx context.Context, _ domain.AudioConstraints) (core.AudioCapture, error) {
	f.opens.Add(1)
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.capture, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	sent      [][]byte
	onMessage func([]byte)
	closes    atomic.Int32
}

func (c *fakeChannel) Label() string { return "oai-events" }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *fakeChannel) OnOpen(func())  {}
func (c *fakeChannel) OnClose(func()) {}

func (c *fakeChannel) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeChannel) deliver(b []byte) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	fn(b)
}

func (c *fakeChannel) closed() bool { return c.closes.Load() > 0 }

type fakeLink struct {
	offer     string
	offerErr  error
	answerErr error
	control   *fakeChannel

	// remoteOnAnswer delivers a remote stream while the answer is committed.
	remoteOnAnswer core.RemoteStream

	mu       sync.Mutex
	answer   string
	onRemote func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
	closes   atomic.Int32
}

func (l *fakeLink) AddTrack(webrtc.TrackLocal) error { return nil }

func (l *fakeLink) OnRemoteStream(fn func(core.RemoteStream)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRemote = fn
}

func (l *fakeLink) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *fakeLink) CreateOffer(ctx context.Context) (string, error) {
	if l.offerErr != nil {
		return "", l.offerErr
	}
	return l.offer, ctx.Err()
}

func (l *fakeLink) SetAnswer(sdp string) error {
	if l.answerErr != nil {
		return l.answerErr
	}
	l.mu.Lock()
	l.answer = sdp
	l.mu.Unlock()
	if l.remoteOnAnswer != nil {
		l.fireRemote(l.remoteOnAnswer)
	}
	return nil
}

func (l *fakeLink) OpenControlChannel() (core.ControlChannel, error) {
	return l.control, nil
}

func (l *fakeLink) Close() error {
	l.closes.Add(1)
	return nil
}

func (l *fakeLink) closed() bool { return l.closes.Load() > 0 }

func (l *fakeLink) fireRemote(s core.RemoteStream) {
	l.mu.Lock()
	fn := l.onRemote
	l.mu.Unlock()
	fn(s)
}

func (l *fakeLink) fireState(s webrtc.PeerConnectionState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	fn(s)
}

type fakeFactory struct {
	link    *fakeLink
	created atomic.Int32
}

func (f *fakeFactory) NewPeerLink(webrtc.Configuration) (core.PeerLink, error) {
	f.created.Add(1)
	return f.link, nil
}

type fakeTokens struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) FetchToken(ctx context.Context) (*domain.EphemeralToken, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EphemeralToken{Value: "ek_test"}, nil
}

type fakeSignaler struct {
	answer string
	err    error
	// entered and release make ExchangeSDP block until released or ctx is done.
	entered chan struct{}
	release chan struct{}

	offer string
	token string
}

func (f *fakeSignaler) ExchangeSDP(ctx context.Context, offerSDP string, token *domain.EphemeralToken) (string, error) {
	f.offer = offerSDP
	f.token = token.Value
	if f.entered != nil {
		close(f.entered)
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeStream struct{ id string }

func (s fakeStream) ID() string       { return s.id }
func (s fakeStream) StreamID() string { return "assistant" }
func (s fakeStream) Codec() string    { return webrtc.MimeTypeOpus }

func (s fakeStream) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

type fakeSink struct {
	played chan core.RemoteStream
}

func (s *fakeSink) Play(ctx context.Context, stream core.RemoteStream) {
	s.played <- stream
}

var errPermissionDenied = errors.New("permission denied")
