package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter turns int16 PCM arriving in an arbitrary format into mono float
// samples at Target. It logs the first format mismatch at debug level and
// warns on the first malformed frame. Create one per stream; not safe for concurrent use.
type Converter struct {
	Target         int
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert decodes pcm recorded in src. Malformed frames yield nil.
func (c *Converter) Convert(pcm []byte, src Format) []float32 {
	if src.SampleRate != c.Target || src.Channels != 1 {
		c.warnedMismatch.Do(func() {
			slog.Debug("audio format mismatch: converting",
				"from", src.String(),
				"to", formatString(c.Target, 1),
			)
		})
	}
	if src.Channels == 2 && len(pcm)%4 == 0 {
		// Average both channels instead of dropping one.
		pcm = StereoToMono(pcm)
		src.Channels = 1
	}
	out, err := DecodeFrame(pcm, src.SampleRate, c.Target, src.Channels)
	if err != nil {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: dropping malformed frame",
				"bytes", len(pcm),
				"format", src.String(),
				"err", err,
			)
		})
		return nil
	}
	return out
}

// ResampleFloat resamples mono float samples from srcRate to dstRate using
// linear interpolation. Equal rates return the input unchanged.
func ResampleFloat(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}
	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
