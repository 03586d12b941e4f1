package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// RTPWriter consumes RTP packets of a remote stream.
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// OggRecorder plays remote streams into Ogg/Opus files under Dir.
type OggRecorder struct {
	Dir string

	mu    sync.Mutex
	files []string
}

func NewOggRecorder(dir string) *OggRecorder {
	return &OggRecorder{Dir: dir}
}

// Files returns the paths written so far.
func (r *OggRecorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

func (r *OggRecorder) Play(ctx context.Context, stream core.RemoteStream) {
	logger := log.With().Str("module", "media.recorder").Str("stream_id", stream.StreamID()).Logger()

	if !strings.EqualFold(stream.Codec(), "audio/opus") {
		logger.Warn().Str("codec", stream.Codec()).Msg("unsupported codec, not recording")
		return
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		logger.Error().Err(err).Msg("create record dir")
		return
	}
	path := filepath.Join(r.Dir, fmt.Sprintf("%s-%s.ogg", sanitize(stream.StreamID()), sanitize(stream.ID())))
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("open ogg writer")
		return
	}
	r.mu.Lock()
	r.files = append(r.files, path)
	r.mu.Unlock()

	logger.Info().Str("path", path).Msg("recording remote stream")
	Copy(ctx, stream, w)
}

// Copy reads RTP packets from stream and forwards them to w until ctx is
// done or either side fails. w is closed on return.
func Copy(ctx context.Context, stream core.RemoteStream, w RTPWriter) {
	logger := log.With().Str("module", "media.copy").Str("stream_id", stream.StreamID()).Logger()
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error().Err(err).Msg("close writer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("copy ctx done")
			return
		default:
		}
		pkt, err := stream.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("remote stream ended")
			return
		}
		if err := w.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, stopping")
			return
		}
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "stream"
	}
	return s
}
