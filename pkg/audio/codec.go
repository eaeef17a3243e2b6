package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedFrame is returned when PCM bytes cannot be split into whole
// int16 samples for the declared channel count.
var ErrMalformedFrame = errors.New("audio: malformed pcm frame")

// FloatToInt16 quantises a float sample to int16. Values outside [-1, 1] are
// clamped. The scale is 32768 so that k/32768 maps back to k exactly.
func FloatToInt16(s float32) int16 {
	v := math.Round(float64(s) * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Int16ToFloat is the inverse of [FloatToInt16].
func Int16ToFloat(s int16) float32 {
	return float32(s) / 32768
}

// EncodePCM16 converts float samples to little-endian int16 PCM bytes.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}

// DecodePCM16 converts little-endian int16 PCM bytes to float samples.
// An odd byte count is reported as [ErrMalformedFrame].
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrMalformedFrame, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = Int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out, nil
}

// EncodeFrame packages capture samples (already at [InputSampleRate]) as a
// wire blob.
func EncodeFrame(samples []float32) Blob {
	return Blob{
		MIMEType: InputMIMEType,
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
	}
}

// DecodeBase64 decodes the payload of an inbound audio message.
func DecodeBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return raw, nil
}

// DecodeFrame turns wire PCM recorded at sourceRate with the given channel
// count into mono float samples at targetRate. Only the first channel is kept
// for multi-channel input.
func DecodeFrame(pcm []byte, sourceRate, targetRate, channels int) ([]float32, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d channels", ErrMalformedFrame, len(pcm), channels)
	}
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}
	if channels > 1 {
		mono := make([]float32, len(samples)/channels)
		for i := range mono {
			mono[i] = samples[i*channels]
		}
		samples = mono
	}
	return ResampleFloat(samples, sourceRate, targetRate), nil
}

// ParseRate extracts the sample rate from a mime type such as
// "audio/pcm;rate=24000". It returns fallback when no rate is present.
func ParseRate(mimeType string, fallback int) int {
	for part := range strings.SplitSeq(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != "rate" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
