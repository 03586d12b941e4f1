// Package orch assembles session managers from configuration: capture
// device, peer links, token source, signaler and the recording sink.
package orch

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dkeye/voicelink/internal/adapters/media"
	"github.com/dkeye/voicelink/internal/adapters/realtime"
	"github.com/dkeye/voicelink/internal/adapters/rtc"
	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Config      *config.Config
	HTTP        *http.Client
	Peers       core.PeerFactory
	Provisioner *realtime.Provisioner
}

func New(cfg *config.Config) *Orchestrator {
	client := &http.Client{Timeout: cfg.Realtime.HTTPTimeout}
	return &Orchestrator{
		Config: cfg,
		HTTP:   client,
		Peers:  rtc.NewFactory(),
		Provisioner: &realtime.Provisioner{
			APIBase:        cfg.Realtime.APIBase,
			APIKey:         cfg.Realtime.APIKey,
			Model:          cfg.Realtime.Model,
			FallbackModels: cfg.Realtime.FallbackModels,
			Voice:          cfg.Realtime.Voice,
			HTTP:           client,
		},
	}
}

// Tokens returns the configured token endpoint client, or the provisioner
// itself when no token_url is set.
func (o *Orchestrator) Tokens() core.TokenSource {
	if o.Config.Realtime.TokenURL != "" {
		return &realtime.TokenClient{URL: o.Config.Realtime.TokenURL, HTTP: o.HTTP}
	}
	return o.Provisioner
}

func (o *Orchestrator) Signaler() core.Signaler {
	return &realtime.SDPClient{
		BaseURL: strings.TrimRight(o.Config.Realtime.APIBase, "/") + "/realtime",
		Model:   o.Config.Realtime.Model,
		HTTP:    o.HTTP,
	}
}

// Capturer returns a fresh capture device: the configured Ogg/Opus file, or
// silence.
func (o *Orchestrator) Capturer() *media.Device {
	if src := o.Config.Audio.Source; src != "" {
		return media.NewOggDevice(src)
	}
	return media.NewSilenceDevice()
}

// NewManager builds a session manager with its own capture device. Remote
// audio is recorded under record_path/<name> when recording is configured.
func (o *Orchestrator) NewManager(name string) *session.Manager {
	m := session.NewManager(session.Deps{
		Capturer: o.Capturer(),
		Peers:    o.Peers,
		Tokens:   o.Tokens(),
		Signaler: o.Signaler(),
	}, session.Options{
		WebRTC: rtc.DefaultWebRTCConfig(),
		Audio:  o.Config.Audio.Constraints,
	})
	if dir := o.Config.Audio.RecordPath; dir != "" {
		m.SetRemoteAudioSink(media.NewOggRecorder(filepath.Join(dir, name)))
	}
	log.Debug().Str("module", "orch").Str("name", name).Msg("session manager built")
	return m
}

// Registry returns a client registry whose managers come from o.
func (o *Orchestrator) Registry() *app.Registry {
	return app.NewRegistry(func(id app.ClientID) *session.Manager {
		return o.NewManager(string(id))
	})
}
