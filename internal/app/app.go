// Package app is the tutor's application state machine.
//
// An [App] owns at most one live conversation at a time. It follows what
// the learner is looking at (view, scenario step), drives the conversation
// status through IDLE → CONNECTING → LISTENING → ANALYZING → IDLE, collects
// the final transcript turns and achieved goals, and after a conversation
// produces the feedback report, archives it to history and feeds its
// vocabulary into the scheduler.
//
// All exported methods are safe for concurrent use. Session events are
// consumed on one goroutine per session, so they are applied in arrival
// order. The UI observes changes through [App.Subscribe].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/history"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/internal/tutor"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/audio/tone"
)

// ErrNoScenario is returned by [App.Toggle] when no scenario conversation is
// in progress.
var ErrNoScenario = errors.New("app: no scenario selected")

// msgConnectTimeout is shown when session setup exceeds the configured
// connect timeout.
const msgConnectTimeout = "Failed to start session: connection timed out"

// Conversations starts live tutor sessions. *tutor.Controller implements it.
type Conversations interface {
	Start(ctx context.Context, opts tutor.Options) *tutor.Session
}

// Analyzer turns a finished conversation into a feedback report.
type Analyzer interface {
	Analyze(ctx context.Context, turns []tutor.Turn) feedback.Report
}

// Archive stores finished conversations.
type Archive interface {
	Save(ctx context.Context, sc scenario.Scenario, conversation []tutor.Turn, report feedback.Report) (history.Item, error)
}

// Vocabulary receives the words suggested by a feedback report.
type Vocabulary interface {
	AddWords(ctx context.Context, items []feedback.VocabularyItem) (int, error)
}

// Scenarios provides the active scenario catalog.
type Scenarios interface {
	Catalog() *scenario.Catalog
}

// CuePlayer plays the alert sounds.
type CuePlayer interface {
	Play(c tone.Cue) audio.Voice
}

// Config holds the dependencies of an [App]. Conversations, Analyzer and
// Scenarios are required; the others may be nil.
type Config struct {
	Conversations Conversations
	Analyzer      Analyzer
	Scenarios     Scenarios
	History       Archive
	Vocabulary    Vocabulary
	Cues          CuePlayer

	// ConnectTimeout bounds session setup. Zero means no timeout.
	ConnectTimeout time.Duration
}

// App is the application state machine.
type App struct {
	cfg Config

	mu    sync.Mutex
	state State
	sess  *tutor.Session
	// epoch increases whenever the conversation state is reset, so late
	// analysis results for an abandoned conversation are discarded.
	epoch uint64

	subs   map[chan State]struct{}
	closed bool
}

// New creates an App on the home view with no scenario selected.
func New(cfg Config) *App {
	return &App{
		cfg: cfg,
		state: State{
			View:          ViewHome,
			ScenarioState: ScenarioSelection,
			Status:        StatusIdle,
		},
		subs: make(map[chan State]struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Subscribe returns a channel that receives the latest state after every
// change, and a function that ends the subscription. A slow subscriber only
// ever sees the most recent state; intermediate states may be skipped.
func (a *App) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		close(ch)
		return ch, func() {}
	}
	a.subs[ch] = struct{}{}
	ch <- a.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if _, ok := a.subs[ch]; ok {
				delete(a.subs, ch)
				close(ch)
			}
		})
	}
}

// changedLocked bumps the version and pushes the new state to subscribers.
// Callers hold a.mu.
func (a *App) changedLocked() {
	a.state.Version++
	snap := a.state.clone()
	for ch := range a.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale pending state.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// ── Navigation ─────────────────────────────────────────────────────────────────

// Navigate switches the top-level view. Leaving the scenarios view during a
// conversation ends the live session.
func (a *App) Navigate(view View) error {
	if !view.IsValid() {
		return fmt.Errorf("app: unknown view %q", view)
	}
	a.mu.Lock()
	var sess *tutor.Session
	if a.state.View == ViewScenarios && a.state.ScenarioState == ScenarioConversation && view != ViewScenarios {
		sess = a.detachLocked()
		a.state.Status = StatusIdle
	}
	a.state.View = view
	a.changedLocked()
	a.mu.Unlock()

	closeSession(sess)
	return nil
}

// SelectScenario starts a fresh conversation for the scenario with the given
// id.
func (a *App) SelectScenario(id string) error {
	sc, err := a.cfg.Scenarios.Catalog().Get(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	sess := a.detachLocked()
	a.state.Scenario = &sc
	a.resetLocked()
	a.state.ScenarioState = ScenarioConversation
	a.changedLocked()
	a.mu.Unlock()

	closeSession(sess)
	return nil
}

// ReturnToSelection ends any session and goes back to the scenario list.
func (a *App) ReturnToSelection() {
	a.mu.Lock()
	sess := a.detachLocked()
	a.state.Scenario = nil
	a.resetLocked()
	a.state.ScenarioState = ScenarioSelection
	a.changedLocked()
	a.mu.Unlock()

	closeSession(sess)
}

// Retry restarts the selected scenario with a clean conversation.
func (a *App) Retry() error {
	a.mu.Lock()
	if a.state.Scenario == nil {
		a.mu.Unlock()
		return ErrNoScenario
	}
	sess := a.detachLocked()
	a.resetLocked()
	a.state.ScenarioState = ScenarioConversation
	a.changedLocked()
	a.mu.Unlock()

	closeSession(sess)
	return nil
}

// resetLocked clears the conversation: transcript, error, goals, feedback
// and status.
func (a *App) resetLocked() {
	a.epoch++
	a.state.Conversation = nil
	a.state.Current = Transcription{}
	a.state.AchievedGoals = nil
	a.state.Feedback = nil
	a.state.Error = ""
	a.state.Status = StatusIdle
}

// detachLocked forgets the current session and returns it so the caller can
// close it after releasing the lock.
func (a *App) detachLocked() *tutor.Session {
	sess := a.sess
	a.sess = nil
	a.state.SessionID = ""
	return sess
}

func closeSession(sess *tutor.Session) {
	if sess != nil {
		_ = sess.Close()
	}
}

// ── Conversation ───────────────────────────────────────────────────────────────

// Toggle starts a conversation when the status is IDLE or ERROR and stops it
// otherwise. Stopping closes the session, analyses the recorded turns,
// archives the result and adds the suggested vocabulary, then shows the
// feedback. Toggle returns once the analysis is done; analysis is not
// cancelled by ctx. While an analysis is running Toggle does nothing.
func (a *App) Toggle(ctx context.Context) error {
	a.mu.Lock()
	if a.state.Scenario == nil || a.state.ScenarioState != ScenarioConversation {
		a.mu.Unlock()
		return ErrNoScenario
	}
	switch a.state.Status {
	case StatusIdle, StatusError:
		a.startLocked(ctx)
		a.mu.Unlock()
		return nil
	case StatusAnalyzing:
		a.mu.Unlock()
		return nil
	}
	sess := a.detachLocked()
	a.state.Status = StatusAnalyzing
	sc := *a.state.Scenario
	turns := tutor.NonEmpty(a.state.Conversation)
	epoch := a.epoch
	a.changedLocked()
	a.mu.Unlock()

	closeSession(sess)
	a.finish(context.WithoutCancel(ctx), epoch, sc, turns)
	return nil
}

func (a *App) startLocked(ctx context.Context) {
	sc := a.state.Scenario
	a.state.Status = StatusConnecting
	a.state.Error = ""
	sess := a.cfg.Conversations.Start(ctx, tutor.Options{
		Instruction: sc.SystemInstruction,
		TargetWPM:   sc.TargetWPM,
		Goals:       sc.Goals,
	})
	a.sess = sess
	a.state.SessionID = sess.ID()
	a.changedLocked()

	go a.consume(sess)
	if a.cfg.ConnectTimeout > 0 {
		go a.watchConnect(sess, a.cfg.ConnectTimeout)
	}
	slog.Info("conversation starting", "scenario", sc.ID, "session_id", sess.ID())
}

// finish produces and stores the feedback for a stopped conversation.
func (a *App) finish(ctx context.Context, epoch uint64, sc scenario.Scenario, turns []tutor.Turn) {
	report := feedback.NothingRecordedReport()
	if len(turns) > 0 {
		report = a.cfg.Analyzer.Analyze(ctx, turns)
		if a.cfg.History != nil {
			if _, err := a.cfg.History.Save(ctx, sc, turns, report); err != nil {
				slog.Error("failed to save conversation history", "scenario", sc.ID, "err", err)
			}
		}
		if a.cfg.Vocabulary != nil && len(report.Vocabulary) > 0 {
			if _, err := a.cfg.Vocabulary.AddWords(ctx, report.Vocabulary); err != nil {
				slog.Error("failed to add feedback vocabulary", "err", err)
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch != epoch {
		slog.Debug("discarding feedback for an abandoned conversation", "scenario", sc.ID)
		return
	}
	a.state.Feedback = &report
	a.state.Status = StatusIdle
	a.state.ScenarioState = ScenarioFeedback
	a.changedLocked()
}

// watchConnect fails the session when it is not open within timeout.
func (a *App) watchConnect(sess *tutor.Session, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sess.WaitReady(ctx); errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("session setup timed out", "session_id", sess.ID(), "timeout", timeout)
		a.fail(sess, msgConnectTimeout)
	}
}

// ── Session events ─────────────────────────────────────────────────────────────

// consume applies the events of sess in order until its channel closes.
func (a *App) consume(sess *tutor.Session) {
	for ev := range sess.Events() {
		a.handle(sess, ev)
	}
}

func (a *App) handle(sess *tutor.Session, ev tutor.Event) {
	if ev.Kind == tutor.EventError {
		a.fail(sess, tutor.UserMessage(ev.Err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != sess {
		return
	}

	switch ev.Kind {
	case tutor.EventOpen:
		a.cue(tone.Connect)
		a.state.Status = StatusListening
	case tutor.EventMessage:
		a.state.Current = Transcription{User: ev.User, AI: ev.AI}
		if ev.Final && (ev.User != "" || ev.AI != "") {
			a.cue(tone.Message)
			a.state.Conversation = append(a.state.Conversation, tutor.NonEmpty([]tutor.Turn{
				{Speaker: tutor.SpeakerUser, Text: ev.User},
				{Speaker: tutor.SpeakerAI, Text: ev.AI},
			})...)
			a.state.Current = Transcription{}
		}
	case tutor.EventGoal:
		if a.state.HasGoal(ev.Goal) {
			return
		}
		a.cue(tone.Goal)
		a.state.AchievedGoals = append(a.state.AchievedGoals, ev.Goal)
	case tutor.EventClosed:
		a.sess = nil
		a.state.SessionID = ""
		if a.state.Status != StatusAnalyzing && a.state.Status != StatusError {
			a.state.Status = StatusIdle
		}
	default:
		return
	}
	a.changedLocked()
}

// fail shows msg, plays the error cue and closes sess if it is still the
// current session.
func (a *App) fail(sess *tutor.Session, msg string) {
	a.mu.Lock()
	if a.sess != sess {
		a.mu.Unlock()
		return
	}
	a.cue(tone.Error)
	a.state.Status = StatusError
	a.state.Error = msg
	a.detachLocked()
	a.changedLocked()
	a.mu.Unlock()

	slog.Error("live session error", "session_id", sess.ID(), "err", msg)
	closeSession(sess)
}

func (a *App) cue(c tone.Cue) {
	if a.cfg.Cues != nil {
		a.cfg.Cues.Play(c)
	}
}

// ── Shutdown ───────────────────────────────────────────────────────────────────

// Shutdown closes any live session and ends every subscription.
func (a *App) Shutdown() {
	a.mu.Lock()
	sess := a.detachLocked()
	a.closed = true
	for ch := range a.subs {
		delete(a.subs, ch)
		close(ch)
	}
	a.mu.Unlock()

	closeSession(sess)
	slog.Info("app shut down")
}
