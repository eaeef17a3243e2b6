package tutor

import (
	"fmt"
	"strings"
)

// EnglishOnlyDirective is appended to every scenario instruction.
const EnglishOnlyDirective = "IMPORTANT: You must only speak, understand, and respond in English. Do not attempt to use or translate other languages."

// paceClauseFormat is the pacing-encouragement clause; %d is the target WPM.
const paceClauseFormat = "The user has a specific goal to speak at a pace of around %d words per minute (WPM). " +
	"While your primary role is defined by the scenario, please subtly encourage this pace. " +
	"You don't need to mention the WPM target directly, but you can model a similar pace in your own speech. " +
	"This is a secondary objective to the main role-play."

// PaceClause returns the pacing instruction for the given words-per-minute
// target.
func PaceClause(wpm int) string {
	return fmt.Sprintf(paceClauseFormat, wpm)
}

// ComposeInstruction builds the system instruction sent to the live model:
// the scenario's base instruction, the English-only directive and, when
// targetWPM is positive, the pacing clause. Parts are separated by a blank
// line.
func ComposeInstruction(base string, targetWPM int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(EnglishOnlyDirective)
	if targetWPM > 0 {
		b.WriteString("\n\n")
		b.WriteString(PaceClause(targetWPM))
	}
	return b.String()
}
