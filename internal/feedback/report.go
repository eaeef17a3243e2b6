// Package feedback turns a finished tutoring conversation into a structured
// report on intonation, grammar, pronunciation, speaking rate and
// vocabulary.
//
// The [Analyzer] formats the transcript into a fixed tutor prompt, asks a
// [text.Provider] for JSON matching [Schema], and validates the reply.
// Analysis never fails from the caller's point of view: any error becomes
// [FallbackReport].
package feedback

// Report is the structured result of one analysis.
type Report struct {
	Intonation    string              `json:"intonation"`
	Grammar       string              `json:"grammar"`
	Pronunciation []PronunciationItem `json:"pronunciation"`
	SpeakingRate  SpeakingRate        `json:"speakingRate"`
	Vocabulary    []VocabularyItem    `json:"vocabulary"`
	Suggestions   string              `json:"suggestions"`
}

// PronunciationItem scores one word or short phrase.
type PronunciationItem struct {
	Word     string `json:"word"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// SpeakingRate is the estimated pace in words per minute.
type SpeakingRate struct {
	WPM      int    `json:"wpm"`
	Feedback string `json:"feedback"`
}

// VocabularyItem is one word or idiom worth learning.
type VocabularyItem struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

// FallbackReport is shown when analysis fails for any reason.
func FallbackReport() Report {
	return Report{
		Intonation:    "Sorry, I couldn't analyze the intonation for this conversation.",
		Grammar:       "Sorry, I couldn't analyze the grammar for this conversation.",
		Suggestions:   "Failed to generate feedback due to an error. Please try another session.",
		Pronunciation: []PronunciationItem{},
		SpeakingRate: SpeakingRate{
			WPM:      0,
			Feedback: "Sorry, I couldn't analyze the speaking rate for this conversation.",
		},
		Vocabulary: []VocabularyItem{},
	}
}

// NothingRecordedReport is shown when the conversation has no non-empty
// turns.
func NothingRecordedReport() Report {
	return Report{
		Intonation:    "No conversation was recorded.",
		Grammar:       "No conversation was recorded.",
		Suggestions:   "Try speaking for a bit longer next time to get feedback!",
		Pronunciation: []PronunciationItem{},
		SpeakingRate:  SpeakingRate{WPM: 0, Feedback: "No conversation was recorded."},
		Vocabulary:    []VocabularyItem{},
	}
}
