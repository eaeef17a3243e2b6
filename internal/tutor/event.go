package tutor

import (
	"errors"
	"fmt"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// EventKind tags the variant carried by an [Event].
type EventKind int

const (
	// EventOpen is sent once the remote stream is open and capture is live.
	EventOpen EventKind = iota
	// EventMessage carries a transcript snapshot of the current turn.
	EventMessage
	// EventGoal reports a completed scenario goal. Each goal is reported at
	// most once per session.
	EventGoal
	// EventError carries a setup or transport failure.
	EventError
	// EventClosed is the last event before the channel closes.
	EventClosed
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventGoal:
		return "goal"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a tagged union of everything a [Session] reports. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// User and AI are the accumulated transcripts of the current turn
	// (EventMessage). AI never contains goal markers.
	User string
	AI   string
	// Final is true for the single message closing a turn (EventMessage).
	Final bool

	// Goal is the verbatim goal text (EventGoal).
	Goal string

	// Err is the failure (EventError). Setup failures are a *SessionError.
	Err error
}

// User-facing messages for setup failures.
const (
	MsgPermissionDenied = "Microphone permission denied. Please allow microphone access in your browser settings."
	msgAudioSetup       = "Audio setup failed: "
	msgStartFailed      = "Failed to start session: "
)

// ErrClosed is returned by WaitReady when the session was closed before
// setup finished.
var ErrClosed = errors.New("tutor: session closed")

// SessionError is a failure with a message suitable for showing to the
// learner.
type SessionError struct {
	Msg string
	Err error
}

func (e *SessionError) Error() string { return e.Msg }

func (e *SessionError) Unwrap() error { return e.Err }

// UserMessage returns the message to show for err: the learner-facing text
// of a *SessionError, or err's own text otherwise.
func UserMessage(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Msg
	}
	return err.Error()
}

func permissionOrSetupError(err error) *SessionError {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return &SessionError{Msg: MsgPermissionDenied, Err: err}
	}
	return &SessionError{Msg: msgAudioSetup + err.Error(), Err: err}
}
