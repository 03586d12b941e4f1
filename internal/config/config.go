package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Realtime Realtime `mapstructure:"realtime"`
	Audio    Audio    `mapstructure:"audio"`
	Limits   Limits   `mapstructure:"limits"`
}

type Realtime struct {
	APIBase        string        `mapstructure:"api_base"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	FallbackModels []string      `mapstructure:"fallback_models"`
	Voice          string        `mapstructure:"voice"`
	TokenURL       string        `mapstructure:"token_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

type Audio struct {
	Constraints domain.AudioConstraints `mapstructure:"constraints"`
	// Source is an Ogg/Opus file looped as the capture input. Empty means silence.
	Source     string `mapstructure:"source"`
	RecordPath string `mapstructure:"record_path"`
}

type Limits struct {
	ConnectPerMinute int `mapstructure:"connect_per_minute"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")

	v.SetDefault("realtime.api_base", "https://api.openai.com/v1")
	v.SetDefault("realtime.model", "gpt-4o-mini-realtime-preview")
	v.SetDefault("realtime.fallback_models", []string{})
	v.SetDefault("realtime.voice", "verse")
	v.SetDefault("realtime.token_url", "")
	v.SetDefault("realtime.http_timeout", "15s")

	d := domain.DefaultAudioConstraints()
	v.SetDefault("audio.constraints.sample_rate", d.SampleRate)
	v.SetDefault("audio.constraints.channel_count", d.ChannelCount)
	v.SetDefault("audio.constraints.echo_cancellation", d.EchoCancellation)
	v.SetDefault("audio.constraints.noise_suppression", d.NoiseSuppression)
	v.SetDefault("audio.constraints.auto_gain_control", d.AutoGainControl)
	v.SetDefault("audio.source", "")
	v.SetDefault("audio.record_path", "")

	v.SetDefault("limits.connect_per_minute", 6)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the
// defaults. VOICELINK_* environment variables override file values, and
// OPENAI_API_KEY fills realtime.api_key.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("voicelink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("realtime.api_key", "VOICELINK_REALTIME_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Audio.Constraints.Validate(); err != nil {
		return nil, fmt.Errorf("audio.constraints: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("model", cfg.Realtime.Model).
		Msg("config ready")
	return &cfg, nil
}
