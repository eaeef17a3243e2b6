package feedback

import (
	"strings"

	"github.com/MrWong99/speakeasy/internal/tutor"
	"github.com/MrWong99/speakeasy/pkg/provider/text"
)

// SchemaName names the report schema for APIs that require one.
const SchemaName = "conversation_feedback"

const promptHead = `You are an expert English language tutor. Analyze the following conversation from an English learner. The learner's speech should be in English only.
Provide feedback on the learner's performance. Focus on:
1.  **Intonation & Phrasing**: Based on word choice and structure, comment on their likely intonation, politeness, and naturalness.
2.  **Grammar**: Identify up to 3 specific grammatical errors. For each, show the original text, the correction, and a simple explanation. If there are no errors, say so.
3.  **Pronunciation**: Based on the learner's likely pronunciation from their word choices, identify 3-5 key words or short phrases that might be challenging. For each, provide a numerical score out of 100 on pronunciation accuracy and a brief, specific tip for improvement (e.g., "Focus on the 'r' sound in 'world'"). If pronunciation seems excellent, provide positive feedback on a few words.
4.  **Speaking Rate**: Estimate the learner's average words per minute (WPM) based on the flow and structure of their sentences. Provide a numerical WPM estimate and a brief comment on their likely speaking pace (e.g., "Your pace seems natural," "You might be speaking a bit quickly, which can affect clarity," or "Try to speak a little faster to sound more fluent.").
5.  **Vocabulary**: Identify 3-5 key vocabulary words or idioms from the conversation that are intermediate to advanced (B2-C1 level). For each, provide the word, a simple definition, and an example sentence based on how the user could have used it in the conversation.
6.  **Suggestions**: Give 2-3 actionable suggestions for how they can improve their English speaking skills based on this specific conversation.

CONVERSATION:
`

const promptTail = "\n\nProvide your feedback in a structured JSON format."

// FormatTranscript renders turns as "Learner: ..." and "Tutor: ..." lines.
func FormatTranscript(turns []tutor.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		who := "Tutor"
		if t.Speaker == tutor.SpeakerUser {
			who = "Learner"
		}
		lines[i] = who + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt returns the full analysis prompt for turns.
func BuildPrompt(turns []tutor.Turn) string {
	return promptHead + FormatTranscript(turns) + promptTail
}

func str(desc string) *text.Schema {
	return &text.Schema{Type: text.TypeString, Description: desc}
}

func integer(desc string) *text.Schema {
	return &text.Schema{Type: text.TypeInteger, Description: desc}
}

// Schema returns the response schema of a [Report].
func Schema() *text.Schema {
	return &text.Schema{
		Type:  text.TypeObject,
		Order: []string{"intonation", "grammar", "pronunciation", "speakingRate", "vocabulary", "suggestions"},
		Properties: map[string]*text.Schema{
			"intonation": str("Feedback on the user's intonation and phrasing."),
			"grammar":    str("Feedback on the user's grammar, with corrections and explanations."),
			"pronunciation": {
				Type:        text.TypeArray,
				Description: "Feedback on specific word pronunciations.",
				Items: &text.Schema{
					Type:  text.TypeObject,
					Order: []string{"word", "score", "feedback"},
					Properties: map[string]*text.Schema{
						"word":     str("The word or phrase analyzed."),
						"score":    integer("A pronunciation score from 0 to 100."),
						"feedback": str("Specific feedback on how to improve the pronunciation."),
					},
					Required: []string{"word", "score", "feedback"},
				},
			},
			"speakingRate": {
				Type:        text.TypeObject,
				Description: "Feedback on the user's speaking rate.",
				Order:       []string{"wpm", "feedback"},
				Properties: map[string]*text.Schema{
					"wpm":      integer("Estimated words per minute."),
					"feedback": str("Qualitative feedback on the speaking pace."),
				},
				Required: []string{"wpm", "feedback"},
			},
			"vocabulary": {
				Type:        text.TypeArray,
				Description: "Key vocabulary words with definitions and examples.",
				Items: &text.Schema{
					Type:  text.TypeObject,
					Order: []string{"word", "definition", "example"},
					Properties: map[string]*text.Schema{
						"word":       str("The vocabulary word or idiom."),
						"definition": str("A simple definition."),
						"example":    str("An example sentence."),
					},
					Required: []string{"word", "definition", "example"},
				},
			},
			"suggestions": str("Actionable suggestions for improvement."),
		},
		Required: []string{"intonation", "grammar", "pronunciation", "speakingRate", "vocabulary", "suggestions"},
	}
}
