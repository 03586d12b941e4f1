package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIsExclusive(t *testing.T) {
	d := NewSilenceDevice()

	first, err := d.Open(context.Background(), domain.DefaultAudioConstraints())
	require.NoError(t, err)
	assert.True(t, d.Held())

	_, err = d.Open(context.Background(), domain.DefaultAudioConstraints())
	assert.ErrorIs(t, err, domain.ErrMediaAccess)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, first.Stop())
	require.NoError(t, first.Stop())
	assert.False(t, d.Held())

	second, err := d.Open(context.Background(), domain.DefaultAudioConstraints())
	require.NoError(t, err)
	require.NoError(t, second.Stop())
}

func TestDeviceOpenFailures(t *testing.T) {
	_, err := (&Device{Name: "none"}).Open(context.Background(), domain.DefaultAudioConstraints())
	assert.ErrorIs(t, err, domain.ErrMediaAccess)
	assert.ErrorIs(t, err, ErrNoDevice)

	c := domain.DefaultAudioConstraints()
	c.SampleRate = 44100
	_, err = NewSilenceDevice().Open(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrMediaAccess)
	assert.ErrorIs(t, err, domain.ErrUnsupportedConstraints)

	missing := NewOggDevice(filepath.Join(t.TempDir(), "missing.ogg"))
	_, err = missing.Open(context.Background(), domain.DefaultAudioConstraints())
	assert.ErrorIs(t, err, domain.ErrMediaAccess)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, missing.Held())
}

func TestCaptureEnableToggle(t *testing.T) {
	capture, err := NewSilenceDevice().Open(context.Background(), domain.DefaultAudioConstraints())
	require.NoError(t, err)
	c := capture.(*Capture)

	assert.True(t, c.Enabled())
	assert.Len(t, c.Tracks(), 1)
	assert.Equal(t, domain.DefaultAudioConstraints(), c.Settings())

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	assert.Equal(t, TrackStateMuted, c.State())

	c.SetEnabled(true)
	assert.Equal(t, TrackStateLive, c.State())

	require.NoError(t, c.Stop())
	c.SetEnabled(true)
	assert.Equal(t, TrackStateEnded, c.State())
}

func writeOgg(t *testing.T, path string, packets int) {
	t.Helper()
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < packets; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: OpusSilence,
		}))
	}
	require.NoError(t, w.Close())
}

func TestOggSourceLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.ogg")
	writeOgg(t, path, 3)

	src, err := OpenOggSource(path)
	require.NoError(t, err)
	defer src.Close()
	assert.EqualValues(t, 2, src.Channels())

	for i := 0; i < 10; i++ {
		s, err := src.NextSample()
		require.NoError(t, err)
		assert.Equal(t, OpusSilence, s.Data)
		assert.Greater(t, s.Duration, time.Duration(0))
	}
}

func TestOggSourceRejectsFileWithoutAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ogg")
	writeOgg(t, path, 0)

	_, err := OpenOggSource(path)
	assert.ErrorIs(t, err, ErrNoAudio)

	d := NewOggDevice(path)
	_, err = d.Open(context.Background(), domain.DefaultAudioConstraints())
	assert.ErrorIs(t, err, domain.ErrMediaAccess)
	assert.ErrorIs(t, err, ErrNoAudio)
	assert.False(t, d.Held())
}

func TestCaptureStopsWhenSourceLosesAudio(t *testing.T) {
	dir := t.TempDir()
	headers := filepath.Join(dir, "headers.ogg")
	writeOgg(t, headers, 0)
	info, err := os.Stat(headers)
	require.NoError(t, err)

	path := filepath.Join(dir, "in.ogg")
	writeOgg(t, path, 3)
	src, err := OpenOggSource(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()))

	_, err = src.NextSample()
	assert.ErrorIs(t, err, ErrNoAudio)

	d := &Device{
		Name:   path,
		Source: func(domain.AudioConstraints) (SampleSource, error) { return src, nil },
	}
	capture, err := d.Open(context.Background(), domain.DefaultAudioConstraints())
	require.NoError(t, err)
	time.Sleep(3 * FrameDuration)

	stopped := make(chan error, 1)
	go func() { stopped <- capture.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("capture stop hung on a source without audio")
	}
	assert.False(t, d.Held())
}

type fakeStream struct {
	mu      sync.Mutex
	packets []*rtp.Packet
	codec   string
}

func (s *fakeStream) ID() string       { return "track/1" }
func (s *fakeStream) StreamID() string { return "assistant" }
func (s *fakeStream) Codec() string    { return s.codec }

func (s *fakeStream) ReadRTP() (*rtp.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

type collectWriter struct {
	got    []*rtp.Packet
	closed bool
	fail   error
}

func (w *collectWriter) WriteRTP(p *rtp.Packet) error {
	if w.fail != nil {
		return w.fail
	}
	w.got = append(w.got, p)
	return nil
}

func (w *collectWriter) Close() error { w.closed = true; return nil }

func TestCopyForwardsUntilStreamEnds(t *testing.T) {
	stream := &fakeStream{codec: "audio/opus", packets: []*rtp.Packet{{Payload: []byte{1}}, {Payload: []byte{2}}}}
	w := &collectWriter{}

	Copy(context.Background(), stream, w)
	assert.Len(t, w.got, 2)
	assert.True(t, w.closed)

	stream = &fakeStream{codec: "audio/opus", packets: []*rtp.Packet{{Payload: []byte{1}}, {Payload: []byte{2}}}}
	w = &collectWriter{fail: errors.New("disk full")}
	Copy(context.Background(), stream, w)
	assert.Empty(t, w.got)
	assert.True(t, w.closed)
}

func TestOggRecorderWritesFile(t *testing.T) {
	dir := t.TempDir()
	rec := NewOggRecorder(dir)
	packets := make([]*rtp.Packet, 0, 5)
	for i := 0; i < 5; i++ {
		packets = append(packets, &rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: OpusSilence,
		})
	}

	rec.Play(context.Background(), &fakeStream{codec: "audio/opus", packets: packets})

	files := rec.Files()
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "assistant-track_1.ogg"), files[0])

	src, err := OpenOggSource(files[0])
	require.NoError(t, err)
	defer src.Close()
	s, err := src.NextSample()
	require.NoError(t, err)
	assert.Equal(t, OpusSilence, s.Data)

	rec.Play(context.Background(), &fakeStream{codec: "audio/PCMU"})
	assert.Len(t, rec.Files(), 1)
}
