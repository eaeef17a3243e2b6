// Package audio holds the wire codec, sample-rate conversion and device
// abstractions shared by the tutor's capture and playback pipelines.
//
// Samples inside the process are mono float32 in [-1, 1]. On the wire to the
// live model they are little-endian int16 PCM, base64-encoded and tagged with
// a mime type that carries the sample rate.
package audio

import (
	"fmt"
	"time"
)

const (
	// InputSampleRate is the fixed rate the live model expects for microphone audio.
	InputSampleRate = 16000

	// OutputSampleRate is the fixed rate of audio synthesised by the live model
	// and by the TTS providers.
	OutputSampleRate = 24000

	// CaptureBlockSize is the number of samples per capture block sent upstream.
	CaptureBlockSize = 4096
)

// InputMIMEType is the mime tag attached to every outbound audio frame.
var InputMIMEType = fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// Blob is one encoded audio frame ready for transmission.
type Blob struct {
	MIMEType string `json:"mimeType"`
	// Data is base64 encoded little-endian int16 PCM.
	Data string `json:"data"`
}

// Duration returns how long n mono samples last at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
