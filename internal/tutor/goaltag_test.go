package tutor

import (
	"slices"
	"testing"
)

func TestGoalScanner_ExtractsAndStrips(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	visible, goals := s.Feed(`...great! [GOAL_COMPLETE: "Ask for the price"] Anything else?`)

	if want := "...great!  Anything else?"; visible != want {
		t.Errorf("visible = %q, want %q", visible, want)
	}
	if !slices.Equal(goals, []string{"Ask for the price"}) {
		t.Errorf("goals = %q, want [Ask for the price]", goals)
	}
}

func TestGoalScanner_MarkerSplitAcrossFragments(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	var visible string
	var goals []string
	for _, frag := range []string{"Sure", "! [GOAL", `_COMPLETE: "Order a `, `drink"]`, " Coming up."} {
		v, g := s.Feed(frag)
		visible += v
		goals = append(goals, g...)
	}
	visible += s.Flush()

	if want := "Sure!  Coming up."; visible != want {
		t.Errorf("visible = %q, want %q", visible, want)
	}
	if !slices.Equal(goals, []string{"Order a drink"}) {
		t.Errorf("goals = %q, want [Order a drink]", goals)
	}
}

func TestGoalScanner_ReportsEachGoalOnce(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	_, first := s.Feed(`[GOAL_COMPLETE: "A"] and [GOAL_COMPLETE: "B"]`)
	_, second := s.Feed(`again [GOAL_COMPLETE: "A"]`)

	if !slices.Equal(first, []string{"A", "B"}) {
		t.Errorf("first = %q, want [A B]", first)
	}
	if len(second) != 0 {
		t.Errorf("second = %q, want none", second)
	}
	got := s.Reported()
	slices.Sort(got)
	if !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Reported = %q, want [A B]", got)
	}
}

func TestGoalScanner_PlainBracketsPassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no marker", "hello there", "hello there"},
		{"other bracket", "a [note] b", "a [note] b"},
		{"lowercase tag", `[goal_complete: "x"]`, `[goal_complete: "x"]`},
		{"open bracket at end", "see [", "see "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewGoalScanner()
			visible, goals := s.Feed(tc.in)
			if visible != tc.want {
				t.Errorf("visible = %q, want %q", visible, tc.want)
			}
			if len(goals) != 0 {
				t.Errorf("goals = %q, want none", goals)
			}
		})
	}
}

func TestGoalScanner_MalformedGoalStaysVisible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"empty goal", `ok [GOAL_COMPLETE: ""] done`},
		{"quoted goal", `ok [GOAL_COMPLETE: "Say "hi""] done`},
		{"quote without bracket", `ok [GOAL_COMPLETE: "Order" later`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewGoalScanner()
			visible, goals := s.Feed(tc.in)
			visible += s.Flush()
			if visible != tc.in {
				t.Errorf("visible = %q, want %q", visible, tc.in)
			}
			if len(goals) != 0 {
				t.Errorf("goals = %q, want none", goals)
			}
		})
	}
}

func TestGoalScanner_ClosingBracketInNextFragment(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	v1, g1 := s.Feed(`Nice. [GOAL_COMPLETE: "Pay"`)
	v2, g2 := s.Feed(`] Bye.`)

	if len(g1) != 0 {
		t.Errorf("goal reported before the marker closed: %q", g1)
	}
	if got, want := v1+v2, "Nice.  Bye."; got != want {
		t.Errorf("visible = %q, want %q", got, want)
	}
	if !slices.Equal(g2, []string{"Pay"}) {
		t.Errorf("goals = %q, want [Pay]", g2)
	}
}

func TestGoalScanner_FlushReleasesWithheldText(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	visible, _ := s.Feed(`Well [GOAL_COMPLETE: "never closed`)
	if visible != "Well " {
		t.Errorf("visible = %q, want %q", visible, "Well ")
	}
	if got := s.Flush(); got != `[GOAL_COMPLETE: "never closed` {
		t.Errorf("Flush = %q", got)
	}
	if got := s.Flush(); got != "" {
		t.Errorf("second Flush = %q, want empty", got)
	}
}

func TestGoalScanner_UnclosedMarkerIsBounded(t *testing.T) {
	t.Parallel()

	s := NewGoalScanner()
	long := `[GOAL_COMPLETE: "` + string(make([]byte, maxPending)) + "tail"
	visible, goals := s.Feed(long)
	if len(goals) != 0 {
		t.Errorf("goals = %q, want none", goals)
	}
	if visible != long {
		t.Errorf("visible length = %d, want %d (released as text)", len(visible), len(long))
	}
}
