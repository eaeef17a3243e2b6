// Package tutor implements the live conversation session: it captures the
// microphone, streams frames to a live speech model, plays the model's audio
// back gaplessly, accumulates both transcripts per turn and extracts
// goal-completion markers from the tutor's speech.
//
// A [Controller] holds the collaborators shared across sessions. Each call to
// [Controller.Start] or [Controller.Open] returns a [Session] that owns its
// own output graph, capture stream and remote stream, and reports everything
// on a single typed [Event] channel.
package tutor

import "strings"

// Speaker identifies who produced a [Turn].
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// Turn is one final utterance in the dialogue.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// NonEmpty returns the turns whose text is not blank, preserving order.
func NonEmpty(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) != "" {
			out = append(out, t)
		}
	}
	return out
}
