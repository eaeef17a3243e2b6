package feedback

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/tutor"
	"github.com/MrWong99/speakeasy/pkg/provider/text/mock"
)

const validReply = `{
	"intonation": "Polite and natural.",
	"grammar": "No errors found.",
	"pronunciation": [{"word": "world", "score": 82, "feedback": "Curl the r."}],
	"speakingRate": {"wpm": 128, "feedback": "Your pace seems natural."},
	"vocabulary": [{"word": "reservation", "definition": "A booking.", "example": "I have a reservation."}],
	"suggestions": "Ask follow-up questions."
}`

var sampleTurns = []tutor.Turn{
	{Speaker: tutor.SpeakerUser, Text: "Hello, I has a reservation."},
	{Speaker: tutor.SpeakerAI, Text: "Welcome! Under what name?"},
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// ── Prompt and schema ─────────────────────────────────────────────────────────

func TestFormatTranscript(t *testing.T) {
	t.Parallel()

	got := FormatTranscript(sampleTurns)
	want := "Learner: Hello, I has a reservation.\nTutor: Welcome! Under what name?"
	if got != want {
		t.Errorf("FormatTranscript = %q, want %q", got, want)
	}
	if FormatTranscript(nil) != "" {
		t.Error("empty transcript should format as empty string")
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := BuildPrompt(sampleTurns)
	if !strings.HasPrefix(p, "You are an expert English language tutor.") {
		t.Errorf("prompt head = %q", p[:60])
	}
	if !strings.Contains(p, "\n\nCONVERSATION:\nLearner: Hello, I has a reservation.\nTutor: Welcome! Under what name?\n\nProvide your feedback in a structured JSON format.") {
		t.Errorf("prompt does not embed the transcript as expected:\n%s", p)
	}
	for i := 1; i <= 6; i++ {
		if !strings.Contains(p, "\n"+string(rune('0'+i))+".  **") {
			t.Errorf("prompt is missing analysis %d", i)
		}
	}
}

func TestSchema_RequiredFields(t *testing.T) {
	t.Parallel()

	s := Schema()
	want := []string{"intonation", "grammar", "pronunciation", "speakingRate", "vocabulary", "suggestions"}
	if !reflect.DeepEqual(s.Required, want) {
		t.Errorf("Required = %v", s.Required)
	}
	if !reflect.DeepEqual(s.PropertyNames(), want) {
		t.Errorf("PropertyNames = %v", s.PropertyNames())
	}
	if got := s.Properties["pronunciation"].Items.Properties["score"].Description; got != "A pronunciation score from 0 to 100." {
		t.Errorf("score description = %q", got)
	}
}

// ── Parse ─────────────────────────────────────────────────────────────────────

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	r, err := Parse([]byte(validReply))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.SpeakingRate.WPM != 128 || r.Pronunciation[0].Score != 82 || r.Vocabulary[0].Word != "reservation" {
		t.Errorf("report = %+v", r)
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `I think you did great!`},
		{"missing field", strings.Replace(validReply, `"suggestions": "Ask follow-up questions."`, `"other": ""`, 1)},
		{"wrong kind", strings.Replace(validReply, `"wpm": 128`, `"wpm": "fast"`, 1)},
		{"score above range", strings.Replace(validReply, `"score": 82`, `"score": 101`, 1)},
		{"score below range", strings.Replace(validReply, `"score": 82`, `"score": -1`, 1)},
		{"negative wpm", strings.Replace(validReply, `"wpm": 128`, `"wpm": -5`, 1)},
		{"fractional score", strings.Replace(validReply, `"score": 82`, `"score": 82.5`, 1)},
		{"item missing field", strings.Replace(validReply, `"definition": "A booking.", `, "", 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tc.raw)); !errors.Is(err, ErrInvalidReport) {
				t.Errorf("Parse err = %v, want ErrInvalidReport", err)
			}
		})
	}
}

func TestParse_BoundaryScores(t *testing.T) {
	t.Parallel()

	for _, score := range []string{"0", "100"} {
		raw := strings.Replace(validReply, `"score": 82`, `"score": `+score, 1)
		if _, err := Parse([]byte(raw)); err != nil {
			t.Errorf("score %s rejected: %v", score, err)
		}
	}
	if _, err := Parse([]byte(strings.Replace(validReply, `"wpm": 128`, `"wpm": 0`, 1))); err != nil {
		t.Errorf("wpm 0 rejected: %v", err)
	}
}

// ── Analyzer ──────────────────────────────────────────────────────────────────

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: validReply}
	a := NewAnalyzer(p, WithMetrics(newTestMetrics(t)))

	r := a.Analyze(context.Background(), append(sampleTurns, tutor.Turn{Speaker: tutor.SpeakerUser, Text: "   "}))
	if r.Grammar != "No errors found." {
		t.Errorf("report = %+v", r)
	}
	if p.CallCount() != 1 {
		t.Fatalf("provider called %d times, want 1", p.CallCount())
	}
	req := p.Calls[0].Req
	if req.Prompt != BuildPrompt(sampleTurns) {
		t.Errorf("blank turns should be dropped before prompting:\n%s", req.Prompt)
	}
	if req.SchemaName != SchemaName || req.Schema == nil {
		t.Errorf("request = %+v", req)
	}
}

func TestAnalyze_FallbackOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *mock.Provider
	}{
		{"transport error", &mock.Provider{Err: errors.New("connection reset")}},
		{"malformed reply", &mock.Provider{Response: "{"}},
		{"out of range", &mock.Provider{Response: strings.Replace(validReply, `"score": 82`, `"score": 250`, 1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := NewAnalyzer(tc.p, WithMetrics(newTestMetrics(t)))
			if got := a.Analyze(context.Background(), sampleTurns); !reflect.DeepEqual(got, FallbackReport()) {
				t.Errorf("Analyze = %+v, want fallback", got)
			}
		})
	}
}

func TestAnalyze_NothingRecorded(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: validReply}
	a := NewAnalyzer(p, WithMetrics(newTestMetrics(t)))
	got := a.Analyze(context.Background(), []tutor.Turn{{Speaker: tutor.SpeakerUser, Text: " "}})
	if !reflect.DeepEqual(got, NothingRecordedReport()) {
		t.Errorf("Analyze = %+v, want nothing-recorded report", got)
	}
	if p.CallCount() != 0 {
		t.Error("provider should not be called for an empty conversation")
	}
}

func TestAnalyze_OpenCircuitSkipsProvider(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Err: errors.New("503")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "feedback",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	a := NewAnalyzer(p, WithBreaker(cb), WithMetrics(newTestMetrics(t)))

	for range 3 {
		if got := a.Analyze(context.Background(), sampleTurns); !reflect.DeepEqual(got, FallbackReport()) {
			t.Fatalf("Analyze = %+v, want fallback", got)
		}
	}
	if p.CallCount() != 2 {
		t.Errorf("provider called %d times, want 2 (third call rejected by the open circuit)", p.CallCount())
	}
}

func TestAnalyze_MalformedReplyDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: "not json"}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "feedback", MaxFailures: 1})
	a := NewAnalyzer(p, WithBreaker(cb), WithMetrics(newTestMetrics(t)))

	_ = a.Analyze(context.Background(), sampleTurns)
	if cb.State() != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Block: true}
	a := NewAnalyzer(p, WithTimeout(20*time.Millisecond), WithMetrics(newTestMetrics(t)))

	done := make(chan Report, 1)
	go func() { done <- a.Analyze(context.Background(), sampleTurns) }()
	select {
	case got := <-done:
		if !reflect.DeepEqual(got, FallbackReport()) {
			t.Errorf("Analyze = %+v, want fallback", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Analyze did not honour the timeout")
	}
}
