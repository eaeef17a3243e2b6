package app

import (
	"fmt"
	"slices"

	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/internal/tutor"
)

// Status is the conversation status shown next to the talk button.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusConnecting Status = "CONNECTING"
	StatusListening  Status = "LISTENING"
	StatusAnalyzing  Status = "ANALYZING"
	StatusError      Status = "ERROR"
)

// View is the top-level screen.
type View string

const (
	ViewHome       View = "home"
	ViewScenarios  View = "scenarios"
	ViewVocabulary View = "vocabulary"
	ViewDesktop    View = "desktop"
	ViewHistory    View = "history"
)

// IsValid reports whether v is a known view.
func (v View) IsValid() bool {
	switch v {
	case ViewHome, ViewScenarios, ViewVocabulary, ViewDesktop, ViewHistory:
		return true
	}
	return false
}

// ParseView converts s to a [View].
func ParseView(s string) (View, error) {
	v := View(s)
	if !v.IsValid() {
		return "", fmt.Errorf("app: unknown view %q", s)
	}
	return v, nil
}

// ScenarioState is the step within the scenarios view.
type ScenarioState string

const (
	ScenarioSelection    ScenarioState = "selection"
	ScenarioConversation ScenarioState = "conversation"
	ScenarioFeedback     ScenarioState = "feedback"
)

// Transcription is the in-progress turn, before it is final.
type Transcription struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// State is everything the UI needs to render. Version increases with every
// change.
type State struct {
	Version       uint64             `json:"version"`
	View          View               `json:"view"`
	ScenarioState ScenarioState      `json:"scenarioState"`
	Status        Status             `json:"status"`
	Error         string             `json:"error,omitempty"`
	Scenario      *scenario.Scenario `json:"scenario,omitempty"`
	Conversation  []tutor.Turn       `json:"conversation"`
	Current       Transcription      `json:"currentTranscription"`
	AchievedGoals []string           `json:"achievedGoals"`
	Feedback      *feedback.Report   `json:"feedback,omitempty"`
	SessionID     string             `json:"sessionId,omitempty"`
}

// clone returns a deep copy safe to hand out.
func (s State) clone() State {
	out := s
	out.Conversation = slices.Clone(s.Conversation)
	if out.Conversation == nil {
		out.Conversation = []tutor.Turn{}
	}
	out.AchievedGoals = slices.Clone(s.AchievedGoals)
	if out.AchievedGoals == nil {
		out.AchievedGoals = []string{}
	}
	if s.Scenario != nil {
		sc := *s.Scenario
		sc.Goals = slices.Clone(sc.Goals)
		out.Scenario = &sc
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		fb.Pronunciation = slices.Clone(fb.Pronunciation)
		fb.Vocabulary = slices.Clone(fb.Vocabulary)
		out.Feedback = &fb
	}
	return out
}

// HasGoal reports whether goal was achieved.
func (s State) HasGoal(goal string) bool { return slices.Contains(s.AchievedGoals, goal) }
