// Package media implements capture devices and playback sinks on top of
// pion's sample tracks and Ogg containers.
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrDeviceBusy = errors.New("capture device busy")
	ErrNoDevice   = errors.New("no capture device")
)

// SourceFunc opens the sample source backing a capture.
type SourceFunc func(c domain.AudioConstraints) (SampleSource, error)

// Device is an exclusive audio input. Only one capture can hold it at a time.
type Device struct {
	Name   string
	Source SourceFunc

	mu   sync.Mutex
	held bool
}

func NewSilenceDevice() *Device {
	return &Device{
		Name:   "silence",
		Source: func(domain.AudioConstraints) (SampleSource, error) { return SilenceSource{}, nil },
	}
}

func NewOggDevice(path string) *Device {
	return &Device{
		Name: path,
		Source: func(domain.AudioConstraints) (SampleSource, error) {
			return OpenOggSource(path)
		},
	}
}

func (d *Device) Open(ctx context.Context, c domain.AudioConstraints) (core.AudioCapture, error) {
	if err := c.Validate(); err != nil {
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", err)
	}
	if d.Source == nil {
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", ErrNoDevice)
	}

	d.mu.Lock()
	if d.held {
		d.mu.Unlock()
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", ErrDeviceBusy)
	}
	d.held = true
	d.mu.Unlock()

	src, err := d.Source(c)
	if err != nil {
		d.release()
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", err)
	}

	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio-"+id, "capture-"+id,
	)
	if err != nil {
		_ = src.Close()
		d.release()
		return nil, domain.NewError(domain.KindMediaAccess, "open capture", err)
	}

	logger := log.With().Str("module", "media").Str("device", d.Name).Str("capture", id).Logger()
	pumpCtx, cancel := context.WithCancel(context.Background())
	capture := &Capture{
		device:      d,
		track:       track,
		source:      src,
		constraints: c,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger,
	}
	go capture.pump(pumpCtx)

	logger.Info().Int("sample_rate", c.SampleRate).Int("channels", c.ChannelCount).Msg("capture opened")
	return capture, nil
}

func (d *Device) release() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}

// Held reports whether a capture currently owns the device.
func (d *Device) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

// Capture is an opened device streaming Opus samples into a local track.
type Capture struct {
	device      *Device
	track       *webrtc.TrackLocalStaticSample
	source      SampleSource
	constraints domain.AudioConstraints
	state       trackState

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

func (c *Capture) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{c.track} }

func (c *Capture) Settings() domain.AudioConstraints { return c.constraints }

func (c *Capture) State() TrackState { return c.state.Get() }

func (c *Capture) SetEnabled(enabled bool) {
	if enabled {
		c.state.Set(TrackStateLive)
	} else {
		c.state.Set(TrackStateMuted)
	}
}

func (c *Capture) Enabled() bool { return c.state.Get() == TrackStateLive }

func (c *Capture) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.state.v.Store(int32(TrackStateEnded))
		c.cancel()
		<-c.done
		err = c.source.Close()
		c.device.release()
		c.logger.Info().Msg("capture stopped")
	})
	return err
}

// pump paces samples onto the track, substituting silence while muted.
func (c *Capture) pump(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := c.source.NextSample()
		if err != nil {
			c.logger.Error().Err(err).Msg("capture source read error, sending silence")
			sample = media.Sample{Data: OpusSilence, Duration: FrameDuration}
		}
		switch c.state.Get() {
		case TrackStateEnded:
			return
		case TrackStateMuted:
			sample = media.Sample{Data: OpusSilence, Duration: sample.Duration}
		case TrackStateLive:
		}
		// Writes before the track is bound to a sender are dropped by pion.
		if err := c.track.WriteSample(sample); err != nil {
			c.logger.Debug().Err(err).Msg("write sample")
		}
	}
}
