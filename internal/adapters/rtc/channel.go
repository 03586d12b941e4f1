package rtc

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type controlChannel struct {
	dc *webrtc.DataChannel
}

func (c *controlChannel) Label() string { return c.dc.Label() }

// Send writes data as a text message; the remote side expects JSON text.
func (c *controlChannel) Send(data []byte) error { return c.dc.SendText(string(data)) }

func (c *controlChannel) OnMessage(fn func([]byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		// Copy because pion reuses internal buffers.
		fn(append([]byte(nil), msg.Data...))
	})
}

func (c *controlChannel) OnOpen(fn func())  { c.dc.OnOpen(fn) }
func (c *controlChannel) OnClose(fn func()) { c.dc.OnClose(fn) }
func (c *controlChannel) Close() error      { return c.dc.Close() }

type remoteStream struct {
	track *webrtc.TrackRemote
}

func (s *remoteStream) ID() string       { return s.track.ID() }
func (s *remoteStream) StreamID() string { return s.track.StreamID() }
func (s *remoteStream) Codec() string    { return s.track.Codec().MimeType }

func (s *remoteStream) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}
