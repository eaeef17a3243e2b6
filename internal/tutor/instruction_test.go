package tutor

import (
	"strings"
	"testing"
)

func TestComposeInstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wpm  int
		want string
	}{
		{
			name: "no pace target",
			wpm:  0,
			want: "You are a barista.\n\n" + EnglishOnlyDirective,
		},
		{
			name: "with pace target",
			wpm:  120,
			want: "You are a barista.\n\n" + EnglishOnlyDirective + "\n\n" + PaceClause(120),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ComposeInstruction("You are a barista.", tc.wpm); got != tc.want {
				t.Errorf("ComposeInstruction = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPaceClause_NamesTarget(t *testing.T) {
	t.Parallel()

	got := PaceClause(95)
	if !strings.Contains(got, "around 95 words per minute (WPM)") {
		t.Errorf("PaceClause(95) = %q, missing numeric target", got)
	}
}
