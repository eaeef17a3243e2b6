package audio_test

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

func TestEncodeDecode_RoundTripIsExact(t *testing.T) {
	t.Parallel()
	samples := make([]float32, 0, 65536)
	for k := -32768; k <= 32767; k++ {
		samples = append(samples, float32(k)/32768)
	}

	blob := audio.EncodeFrame(samples)
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", blob.MIMEType)
	}
	raw, err := audio.DecodeBase64(blob.Data)
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	got, err := audio.DecodeFrame(raw, audio.InputSampleRate, audio.InputSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("len = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
}

func TestFloatToInt16_Clamps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want int16
	}{
		{1, 32767},
		{1.5, 32767},
		{-1, -32768},
		{-2, -32768},
		{0, 0},
		{0.5, 16384},
	}
	for _, tt := range tests {
		if got := audio.FloatToInt16(tt.in); got != tt.want {
			t.Errorf("FloatToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodePCM16_LittleEndian(t *testing.T) {
	t.Parallel()
	got := audio.EncodePCM16([]float32{float32(0x0102) / 32768})
	if len(got) != 2 || got[0] != 0x02 || got[1] != 0x01 {
		t.Errorf("EncodePCM16 = %v, want [2 1]", got)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeFrame([]byte{1, 2, 3}, 24000, 24000, 1); !errors.Is(err, audio.ErrMalformedFrame) {
		t.Errorf("odd bytes: err = %v, want ErrMalformedFrame", err)
	}
	if _, err := audio.DecodeFrame([]byte{1, 2}, 24000, 24000, 2); !errors.Is(err, audio.ErrMalformedFrame) {
		t.Errorf("channel misalignment: err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeFrame_ResamplesAndKeepsFirstChannel(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{8192, -1, 16384, -1})
	got, err := audio.DecodeFrame(pcm, 12000, 24000, 2)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	want := []float32{0.25, 0.375, 0.5, 0.5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeBase64("!!not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	raw, err := audio.DecodeBase64(base64.StdEncoding.EncodeToString([]byte{9, 0}))
	if err != nil || len(raw) != 2 {
		t.Errorf("DecodeBase64 = %v, %v", raw, err)
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()
	if got := audio.Duration(24000, 24000); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := audio.Duration(4096, 16000); got != 256*time.Millisecond {
		t.Errorf("Duration = %v, want 256ms", got)
	}
	if got := audio.Duration(10, 0); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}

func TestParseRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"", 24000},
	}
	for _, tt := range tests {
		if got := audio.ParseRate(tt.mime, 24000); got != tt.want {
			t.Errorf("ParseRate(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}
