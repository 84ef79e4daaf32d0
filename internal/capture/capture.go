// Package capture provides local webcam and microphone capture for the
// client: raw video frames in to internal/asciirender, raw PCM samples in
// to internal/opuscodec. Device selection falls back from video+audio to
// video-only to audio-only to receive-only as devices become unavailable.
package capture

import (
	"fmt"
	"image"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"

	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/logging"
)

var log = logging.New("capture")

// VideoFrame is one captured image plus its wall-clock timestamp.
type VideoFrame struct {
	Image     image.Image
	CapturedAt time.Time
}

// VideoSource yields successive camera frames.
type VideoSource interface {
	ReadFrame() (VideoFrame, error)
	Close() error
}

// AudioSource yields successive microphone PCM chunks.
type AudioSource interface {
	ReadSamples() ([]float32, error)
	Close() error
}

// Capabilities reports which sources were actually opened, since either
// camera or mic (or both) may be unavailable on the host.
type Capabilities struct {
	HasVideo bool
	HasAudio bool
}

// Devices opens the local camera and microphone, falling back from
// video+audio to video-only to audio-only to (receive-only) none, so a
// busy/missing mic never blocks video capture and vice versa.
func Devices(maxWidth, maxHeight int) (VideoSource, AudioSource, Capabilities, error) {
	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		log.Warnf("no media devices enumerated")
	}

	type attempt struct {
		video bool
		audio bool
		label string
	}
	attempts := []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	}

	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				c.Width = prop.IntRanged{Max: maxWidth}
				c.Height = prop.IntRanged{Max: maxHeight}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warnf("GetUserMedia (%s) failed: %v", a.label, err)
			continue
		}

		var vs VideoSource
		var as AudioSource
		for _, track := range stream.GetTracks() {
			switch t := track.(type) {
			case *mediadevices.VideoTrack:
				vs = newVideoTrackSource(t)
			case *mediadevices.AudioTrack:
				as = newAudioTrackSource(t)
			}
		}

		caps := Capabilities{HasVideo: vs != nil, HasAudio: as != nil}
		log.Infof("local media captured (%s): video=%v audio=%v", a.label, caps.HasVideo, caps.HasAudio)
		return vs, as, caps, nil
	}

	return nil, nil, Capabilities{}, fmt.Errorf("capture: no usable camera or microphone: %w", errs.ErrResource)
}

type videoTrackSource struct {
	reader mediadevices.VideoReadCloser
}

func newVideoTrackSource(t *mediadevices.VideoTrack) *videoTrackSource {
	reader := t.NewReader(false)
	return &videoTrackSource{reader: reader}
}

func (s *videoTrackSource) ReadFrame() (VideoFrame, error) {
	img, release, err := s.reader.Read()
	if err != nil {
		return VideoFrame{}, fmt.Errorf("capture: read video frame: %w", errs.ErrResource)
	}
	defer release()

	bounds := img.Bounds()
	cloned := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cloned.Set(x, y, img.At(x, y))
		}
	}
	return VideoFrame{Image: cloned, CapturedAt: time.Now()}, nil
}

func (s *videoTrackSource) Close() error {
	return s.reader.Close()
}

type audioTrackSource struct {
	reader mediadevices.AudioReadCloser
}

func newAudioTrackSource(t *mediadevices.AudioTrack) *audioTrackSource {
	reader := t.NewReader(false)
	return &audioTrackSource{reader: reader}
}

func (s *audioTrackSource) ReadSamples() ([]float32, error) {
	chunk, release, err := s.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("capture: read audio chunk: %w", errs.ErrResource)
	}
	defer release()

	info := chunk.ChunkInfo()
	out := make([]float32, 0, info.Len*info.Channels)
	for i := 0; i < info.Len; i++ {
		for ch := 0; ch < info.Channels; ch++ {
			switch samples := chunk.(type) {
			case *wave.Float32Interleaved:
				out = append(out, samples.Data[i*info.Channels+ch])
			case *wave.Int16Interleaved:
				out = append(out, float32(samples.Data[i*info.Channels+ch])/32768.0)
			}
		}
	}
	return out, nil
}

func (s *audioTrackSource) Close() error {
	return s.reader.Close()
}
