package opuscodec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const frameSamples = 960 // per-channel, 20ms @ 48kHz
const channels = 2       // DefaultConfig is stereo

// stereoSineWave returns n interleaved stereo samples (2n floats), the same
// tone duplicated across both channels.
func stereoSineWave(n int, freqHz, sampleRate float64) []float32 {
	out := make([]float32, n*channels)
	for i := 0; i < n; i++ {
		s := float32(0.3 * math.Sin(2*math.Pi*freqHz*float64(i)/sampleRate))
		out[i*channels] = s
		out[i*channels+1] = s
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	pcm := stereoSineWave(frameSamples, 440, 48000)
	packet, err := c.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, packet)

	out, err := c.Decode(packet, frameSamples)
	require.NoError(t, err)
	require.Len(t, out, frameSamples*channels)
}

func TestDecodePLCProducesConcealedFrame(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	pcm := stereoSineWave(frameSamples, 440, 48000)
	_, err = c.Encode(pcm)
	require.NoError(t, err)

	out, err := c.DecodePLC(frameSamples)
	require.NoError(t, err)
	require.Len(t, out, frameSamples*channels)
}

func TestNewRejectsInvalidBitrate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BitrateBps = -5
	_, err := New(cfg)
	require.Error(t, err)
}
