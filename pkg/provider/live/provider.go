// Package live defines the Provider interface for real-time speech models.
//
// A live provider holds one bidirectional stream per session: microphone
// frames go up as encoded [audio.Blob] values, and everything the model sends
// back arrives on a single typed [Event] channel in arrival order. One server
// message may produce several events (audio, then transcripts, then
// turn-complete, then interrupted); their relative order is preserved.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"fmt"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// EventKind tags the variant carried by an [Event].
type EventKind int

const (
	// EventAudio carries one base64 PCM chunk of synthesised speech.
	EventAudio EventKind = iota
	// EventInputTranscript carries a fragment of the user's recognised speech.
	EventInputTranscript
	// EventOutputTranscript carries a fragment of the model's spoken text.
	EventOutputTranscript
	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete
	// EventInterrupted signals that the user barged in and pending playback
	// must be cancelled.
	EventInterrupted
	// EventError carries a transport or server error.
	EventError
	// EventClosed is the last event of a session.
	EventClosed
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a tagged union of everything a live session can report. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Audio is base64 little-endian int16 PCM (EventAudio).
	Audio string
	// MIMEType describes Audio, e.g. "audio/pcm;rate=24000" (EventAudio).
	MIMEType string

	// Text is the transcript fragment (EventInputTranscript, EventOutputTranscript).
	Text string

	// Err is the failure (EventError).
	Err error
}

// Config is the one-time configuration sent when a session opens.
type Config struct {
	// Instruction is the full system instruction for the model.
	Instruction string

	// Voice is the provider-specific prebuilt voice name.
	Voice string

	// LanguageCode is the BCP-47 language used for input transcription.
	LanguageCode string
}

// Session is an open live stream. Callers must call Close when done.
type Session interface {
	// SendAudio transmits one encoded microphone frame.
	SendAudio(ctx context.Context, frame audio.Blob) error

	// Events returns the channel of inbound events. It is closed after the
	// session ends; an EventClosed is delivered first when possible.
	Events() <-chan Event

	// Close terminates the stream. Idempotent.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect establishes the stream and sends the session configuration.
	Connect(ctx context.Context, cfg Config) (Session, error)
}
