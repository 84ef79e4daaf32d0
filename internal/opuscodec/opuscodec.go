// Package opuscodec wraps gopkg.in/hraban/opus.v2 encode/decode for the
// audio pipeline: PCM float32 frames in, Opus bytes out (and back), at a
// fixed sample rate and channel count per session.
package opuscodec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/zfogg/ascii-chat/internal/errs"
)

// Application selects the Opus encoder's target use case.
type Application int

const (
	AppVoIP Application = iota
	AppAudio
	AppRestrictedLowDelay
)

func (a Application) toOpus() opus.Application {
	switch a {
	case AppAudio:
		return opus.AppAudio
	case AppRestrictedLowDelay:
		return opus.AppRestrictedLowDelay
	default:
		return opus.AppVoIP
	}
}

// Config configures both the encoder and decoder for a session.
type Config struct {
	SampleRate  int
	Channels    int
	Application Application
	BitrateBps  int
}

// DefaultConfig returns the mixer's default codec settings: 48kHz stereo,
// voice profile, 128 kbps.
func DefaultConfig() Config {
	return Config{
		SampleRate:  48000,
		Channels:    2,
		Application: AppVoIP,
		BitrateBps:  128000,
	}
}

// Codec holds a paired Opus encoder/decoder for one audio stream.
type Codec struct {
	cfg     Config
	encoder *opus.Encoder
	decoder *opus.Decoder
}

// New builds an encoder and decoder per cfg, enabling DTX and in-band FEC
// the way a conferencing client should to tolerate packet loss.
func New(cfg Config) (*Codec, error) {
	if cfg.BitrateBps < 0 {
		return nil, fmt.Errorf("opuscodec: negative bitrate %d: %w", cfg.BitrateBps, errs.ErrInvalidParameter)
	}
	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, cfg.Application.toOpus())
	if err != nil {
		return nil, fmt.Errorf("opuscodec: new encoder: %w", errs.ErrResource)
	}
	if cfg.BitrateBps > 0 {
		if err := enc.SetBitrate(cfg.BitrateBps); err != nil {
			return nil, fmt.Errorf("opuscodec: set bitrate: %w", errs.ErrInvalidParameter)
		}
	}
	_ = enc.SetDTX(true)
	_ = enc.SetInBandFEC(true)

	dec, err := opus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("opuscodec: new decoder: %w", errs.ErrResource)
	}

	return &Codec{cfg: cfg, encoder: enc, decoder: dec}, nil
}

// Encode compresses one frame of interleaved float32 PCM samples into Opus
// bytes. The per-channel sample count (len(pcm) / Channels) must be one of
// Opus's supported frame sizes for the configured sample rate (e.g. 960
// samples per channel = 20ms at 48kHz, i.e. 1920 floats for stereo).
func (c *Codec) Encode(pcm []float32) ([]byte, error) {
	out := make([]byte, 4000) // generous upper bound for a single Opus frame
	n, err := c.encoder.EncodeFloat32(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("opuscodec: encode: %w", errs.ErrProtocol)
	}
	return out[:n], nil
}

// Decode expands an Opus packet back to float32 PCM. frameSamples is the
// expected number of samples (per channel) in the output buffer; pass the
// same value used at encode time.
func (c *Codec) Decode(packet []byte, frameSamples int) ([]float32, error) {
	out := make([]float32, frameSamples*c.cfg.Channels)
	n, err := c.decoder.DecodeFloat32(packet, out)
	if err != nil {
		return nil, fmt.Errorf("opuscodec: decode: %w", errs.ErrProtocol)
	}
	return out[:n*c.cfg.Channels], nil
}

// DecodePLC synthesizes a replacement frame for a lost packet using Opus's
// built-in packet-loss concealment (nil packet signals loss to the decoder).
func (c *Codec) DecodePLC(frameSamples int) ([]float32, error) {
	out := make([]float32, frameSamples*c.cfg.Channels)
	n, err := c.decoder.DecodeFloat32(nil, out)
	if err != nil {
		return nil, fmt.Errorf("opuscodec: plc decode: %w", errs.ErrProtocol)
	}
	return out[:n*c.cfg.Channels], nil
}
