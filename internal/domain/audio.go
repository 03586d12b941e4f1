package domain

import (
	"errors"
	"fmt"
)

const (
	DefaultSampleRate   = 24000
	DefaultChannelCount = 1
)

var ErrUnsupportedConstraints = errors.New("unsupported audio constraints")

// AudioConstraints describe how the local capture device is opened.
type AudioConstraints struct {
	SampleRate       int  `mapstructure:"sample_rate" json:"sampleRate"`
	ChannelCount     int  `mapstructure:"channel_count" json:"channelCount"`
	EchoCancellation bool `mapstructure:"echo_cancellation" json:"echoCancellation"`
	NoiseSuppression bool `mapstructure:"noise_suppression" json:"noiseSuppression"`
	AutoGainControl  bool `mapstructure:"auto_gain_control" json:"autoGainControl"`
}

func DefaultAudioConstraints() AudioConstraints {
	return AudioConstraints{
		SampleRate:       DefaultSampleRate,
		ChannelCount:     DefaultChannelCount,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Validate accepts only what an Opus encoder can be opened with.
func (c AudioConstraints) Validate() error {
	switch c.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedConstraints, c.SampleRate)
	}
	if c.ChannelCount != 1 && c.ChannelCount != 2 {
		return fmt.Errorf("%w: channel count %d", ErrUnsupportedConstraints, c.ChannelCount)
	}
	return nil
}
