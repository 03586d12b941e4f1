package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const FrameDuration = 20 * time.Millisecond

// OpusSilence is a single 20 ms Opus frame of silence.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleSource yields encoded Opus samples, one per frame.
type SampleSource interface {
	NextSample() (media.Sample, error)
	Close() error
}

// SilenceSource produces silence forever.
type SilenceSource struct{}

func (SilenceSource) NextSample() (media.Sample, error) {
	return media.Sample{Data: OpusSilence, Duration: FrameDuration}, nil
}

func (SilenceSource) Close() error { return nil }

var (
	opusTags = []byte("OpusTags")

	ErrNoAudio = errors.New("ogg file has no audio pages")
)

// OggSource plays an Ogg/Opus file in a loop.
type OggSource struct {
	f           *os.File
	reader      *oggreader.OggReader
	channels    uint8
	lastGranule uint64
	// yielded is set once a data page was returned since the last rewind.
	yielded bool
}

func OpenOggSource(path string) (*OggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &OggSource{f: f}
	if err := s.rewind(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := s.NextSample(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := s.rewind(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *OggSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, header, err := oggreader.NewWith(s.f)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}
	s.reader = reader
	s.channels = header.Channels
	s.lastGranule = 0
	s.yielded = false
	return nil
}

// Channels reports the channel count declared by the file header.
func (s *OggSource) Channels() uint8 { return s.channels }

func (s *OggSource) NextSample() (media.Sample, error) {
	for {
		page, header, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if !s.yielded {
				return media.Sample{}, ErrNoAudio
			}
			if err := s.rewind(); err != nil {
				return media.Sample{}, err
			}
			continue
		}
		if err != nil {
			return media.Sample{}, err
		}
		if bytes.HasPrefix(page, opusTags) {
			s.lastGranule = header.GranulePosition
			continue
		}

		var count uint64
		if header.GranulePosition > s.lastGranule {
			count = header.GranulePosition - s.lastGranule
		}
		s.lastGranule = header.GranulePosition
		duration := time.Duration(float64(count)/48000*1000) * time.Millisecond
		if duration <= 0 {
			duration = FrameDuration
		}
		s.yielded = true
		return media.Sample{Data: page, Duration: duration}, nil
	}
}

func (s *OggSource) Close() error { return s.f.Close() }
