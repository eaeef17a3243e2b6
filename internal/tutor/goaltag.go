package tutor

import "strings"

const (
	markerOpen  = `[GOAL_COMPLETE: "`
	markerClose = `"]`

	// maxPending bounds how much text the scanner holds back while waiting
	// for a marker to close. Longer candidates are released as plain text.
	maxPending = 512
)

// GoalScanner extracts goal-completion markers from a stream of tutor
// transcript fragments.
//
// A marker has the exact form [GOAL_COMPLETE: "<goal>"], where the goal is
// non-empty and contains no quote; anything else stays visible. Only newly
// fed text is scanned; a marker split across fragments is completed by
// holding back the unmatched prefix until the next fragment. Markers never appear in the
// visible text. Each goal is reported at most once per scanner.
//
// A GoalScanner is not safe for concurrent use.
type GoalScanner struct {
	pending string
	seen    map[string]struct{}
}

// NewGoalScanner returns an empty scanner.
func NewGoalScanner() *GoalScanner {
	return &GoalScanner{seen: make(map[string]struct{})}
}

// Feed scans fragment and returns the text that is safe to display together
// with every goal completed for the first time inside it. Text that could be
// the start of a marker is withheld until a later Feed or Flush.
func (s *GoalScanner) Feed(fragment string) (visible string, goals []string) {
	buf := s.pending + fragment
	s.pending = ""

	var out strings.Builder
	for buf != "" {
		idx := strings.IndexByte(buf, '[')
		if idx < 0 {
			out.WriteString(buf)
			break
		}
		out.WriteString(buf[:idx])
		rest := buf[idx:]

		if len(rest) < len(markerOpen) {
			if strings.HasPrefix(markerOpen, rest) {
				s.pending = rest
				break
			}
			out.WriteByte('[')
			buf = rest[1:]
			continue
		}
		if !strings.HasPrefix(rest, markerOpen) {
			out.WriteByte('[')
			buf = rest[1:]
			continue
		}

		// The goal runs to the first quote, which must close the marker.
		body := rest[len(markerOpen):]
		end := strings.IndexByte(body, '"')
		if end < 0 || end+1 == len(body) {
			if len(rest) > maxPending {
				out.WriteByte('[')
				buf = rest[1:]
				continue
			}
			s.pending = rest
			break
		}
		if end == 0 || !strings.HasPrefix(body[end:], markerClose) {
			out.WriteByte('[')
			buf = rest[1:]
			continue
		}

		goal := body[:end]
		if _, dup := s.seen[goal]; !dup {
			s.seen[goal] = struct{}{}
			goals = append(goals, goal)
		}
		buf = body[end+len(markerClose):]
	}
	return out.String(), goals
}

// Flush releases any withheld text. It is called at the end of a turn, when
// no further fragment can complete the marker.
func (s *GoalScanner) Flush() string {
	p := s.pending
	s.pending = ""
	return p
}

// Reported returns the goals reported so far, in no particular order.
func (s *GoalScanner) Reported() []string {
	out := make([]string, 0, len(s.seen))
	for g := range s.seen {
		out = append(out, g)
	}
	return out
}
