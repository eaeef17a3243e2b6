package tutor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/audio/graph"
	"github.com/MrWong99/speakeasy/pkg/audio/playback"
	"github.com/MrWong99/speakeasy/pkg/provider/live"
)

// eventBuffer is the capacity of a session's event channel.
const eventBuffer = 64

// OutputFactory creates the playback graph for one session at the given
// sample rate.
type OutputFactory func(sampleRate int) (audio.OutputGraph, error)

// Options describes one conversation.
type Options struct {
	// Instruction is the scenario's base system instruction. The English-only
	// directive and pacing clause are added by the controller.
	Instruction string

	// TargetWPM is the learner's pace goal; zero means none.
	TargetWPM int

	// Goals are the scenario's declared goals. Markers naming any other text
	// are still reported but logged as unexpected.
	Goals []string
}

// ControllerOption configures a [Controller].
type ControllerOption func(*Controller)

// WithBlockSize sets the capture block size in samples.
func WithBlockSize(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithVoice sets the prebuilt voice requested from the live model.
func WithVoice(v string) ControllerOption {
	return func(c *Controller) { c.voice = v }
}

// WithLanguageCode sets the transcription language.
func WithLanguageCode(code string) ControllerOption {
	return func(c *Controller) { c.language = code }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// Controller opens tutor sessions. It is safe for concurrent use, though an
// application normally keeps at most one session open.
type Controller struct {
	provider  live.Provider
	mic       audio.Microphone
	newOutput OutputFactory

	blockSize int
	voice     string
	language  string
	metrics   *observe.Metrics
}

// NewController creates a Controller that streams to provider, captures from
// mic and plays through graphs created by newOutput.
func NewController(provider live.Provider, mic audio.Microphone, newOutput OutputFactory, opts ...ControllerOption) *Controller {
	c := &Controller{
		provider:  provider,
		mic:       mic,
		newOutput: newOutput,
		blockSize: audio.CaptureBlockSize,
		voice:     "Zephyr",
		language:  "en-US",
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Start begins setting up a session and returns immediately. Setup runs in
// the background: the output graph, the remote stream and then the
// microphone. Progress is reported on [Session.Events]: EventOpen once
// capture is live, or EventError followed by EventClosed on failure.
//
// ctx is used only for tracing; the session lives until Close.
func (c *Controller) Start(ctx context.Context, opts Options) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:      uuid.NewString(),
		ctrl:    c,
		opts:    opts,
		ctx:     sctx,
		cancel:  cancel,
		events:  make(chan Event, eventBuffer),
		ready:   make(chan struct{}),
		scanner: NewGoalScanner(),
	}
	if len(opts.Goals) > 0 {
		s.declared = make(map[string]struct{}, len(opts.Goals))
		for _, g := range opts.Goals {
			s.declared[g] = struct{}{}
		}
	}
	s.log = slog.With("session_id", s.id)
	c.metrics.ActiveSessions.Add(sctx, 1)
	go s.setup()
	return s
}

// Open starts a session and waits until capture is live. On failure every
// acquired resource has been released and the error is returned; a
// *SessionError carries the learner-facing message. If ctx ends first the
// session is closed and ctx's error returned.
func (c *Controller) Open(ctx context.Context, opts Options) (*Session, error) {
	s := c.Start(ctx, opts)
	if err := s.WaitReady(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Session is one live conversation. Its only cancellation primitive is
// Close.
type Session struct {
	id   string
	ctrl *Controller
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events   chan Event
	emitMu   sync.Mutex
	finished bool

	ready     chan struct{}
	readyOnce sync.Once
	setupErr  error

	mu      sync.Mutex
	closed  bool
	out     audio.OutputGraph
	sched   *playback.Scheduler
	remote  live.Session
	stream  audio.CaptureStream
	capture *graph.Capture

	closeOnce   sync.Once
	sendFailing atomic.Bool

	// Owned by the pump goroutine.
	scanner  *GoalScanner
	declared map[string]struct{}
	userText strings.Builder
	aiText   strings.Builder
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session's event channel. It is closed after Close.
func (s *Session) Events() <-chan Event { return s.events }

// WaitReady blocks until setup finishes and returns its error, if any.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.setupErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Setup ──────────────────────────────────────────────────────────────────────

func (s *Session) setup() {
	start := time.Now()
	ctx, span := observe.StartSpan(s.ctx, "tutor.open")
	defer span.End()

	out, err := s.ctrl.newOutput(audio.OutputSampleRate)
	if err != nil {
		observe.FailSpan(span, err)
		s.fail(&SessionError{Msg: msgAudioSetup + err.Error(), Err: err})
		return
	}
	sched := playback.New(out, playback.WithInterruptHandler(func(n int) {
		s.log.Debug("playback interrupted", "stopped", n)
	}))
	if !s.attach(func() { s.out, s.sched = out, sched }) {
		sched.Close()
		_ = out.Close()
		return
	}

	remote, err := s.ctrl.provider.Connect(ctx, live.Config{
		Instruction:  ComposeInstruction(s.opts.Instruction, s.opts.TargetWPM),
		Voice:        s.ctrl.voice,
		LanguageCode: s.ctrl.language,
	})
	if err != nil {
		if s.ctx.Err() != nil {
			s.markReady(ErrClosed)
			return
		}
		observe.FailSpan(span, err)
		s.fail(&SessionError{Msg: msgStartFailed + err.Error(), Err: err})
		return
	}
	if !s.attach(func() { s.remote = remote }) {
		_ = remote.Close()
		return
	}
	go s.pump(remote, sched)

	stream, err := s.ctrl.mic.Open(ctx, audio.InputSampleRate)
	if err != nil {
		if s.ctx.Err() != nil {
			s.markReady(ErrClosed)
			return
		}
		observe.FailSpan(span, err)
		s.fail(permissionOrSetupError(err))
		return
	}
	if !s.attach(func() {
		s.stream = stream
		s.capture = graph.StartCapture(stream, s.ctrl.blockSize, s.sendBlock)
	}) {
		_ = stream.Stop()
		return
	}

	s.ctrl.metrics.SessionSetupDuration.Record(ctx, time.Since(start).Seconds())
	s.log.Info("tutor session open", "setup", time.Since(start))
	s.markReady(nil)
	s.emit(Event{Kind: EventOpen})
}

// attach runs set under the session lock unless the session is already
// closed, in which case it reports false and the caller releases whatever it
// just acquired.
func (s *Session) attach(set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.markReady(ErrClosed)
		return false
	}
	set()
	return true
}

func (s *Session) fail(err *SessionError) {
	s.log.Error("tutor session setup failed", "err", err.Err)
	s.markReady(err)
	s.emit(Event{Kind: EventError, Err: err})
	_ = s.Close()
}

func (s *Session) markReady(err error) {
	s.readyOnce.Do(func() {
		s.setupErr = err
		close(s.ready)
	})
}

// ── Capture ────────────────────────────────────────────────────────────────────

// sendBlock encodes one capture block and sends it upstream. Failures are
// reported once per failing streak and never stop capture.
func (s *Session) sendBlock(block []float32) {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()
	if remote == nil {
		return
	}
	if err := remote.SendAudio(s.ctx, audio.EncodeFrame(block)); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if !s.sendFailing.Swap(true) {
			s.log.Error("send audio frame", "err", err)
			s.emit(Event{Kind: EventError, Err: err})
		}
		return
	}
	s.sendFailing.Store(false)
	s.ctrl.metrics.RecordAudioChunk(s.ctx, "out")
}

// ── Receive ────────────────────────────────────────────────────────────────────

// pump consumes remote events in arrival order until the stream ends, then
// closes the session.
func (s *Session) pump(remote live.Session, sched *playback.Scheduler) {
	defer func() { _ = s.Close() }()
	for ev := range remote.Events() {
		switch ev.Kind {
		case live.EventAudio:
			s.play(sched, ev)
		case live.EventInputTranscript:
			s.userText.WriteString(ev.Text)
			s.emitSnapshot(false)
		case live.EventOutputTranscript:
			visible, goals := s.scanner.Feed(ev.Text)
			s.aiText.WriteString(visible)
			for _, g := range goals {
				s.reportGoal(g)
			}
			s.emitSnapshot(false)
		case live.EventTurnComplete:
			s.aiText.WriteString(s.scanner.Flush())
			s.emitSnapshot(true)
			s.userText.Reset()
			s.aiText.Reset()
		case live.EventInterrupted:
			sched.Interrupt()
		case live.EventError:
			s.log.Error("live stream error", "err", ev.Err)
			s.emit(Event{Kind: EventError, Err: ev.Err})
		case live.EventClosed:
			return
		}
	}
}

func (s *Session) play(sched *playback.Scheduler, ev live.Event) {
	pcm, err := audio.DecodeBase64(ev.Audio)
	if err == nil {
		var samples []float32
		rate := audio.ParseRate(ev.MIMEType, audio.OutputSampleRate)
		samples, err = audio.DecodeFrame(pcm, rate, audio.OutputSampleRate, 1)
		if err == nil {
			sched.Enqueue(samples)
			s.ctrl.metrics.RecordAudioChunk(s.ctx, "in")
			return
		}
	}
	s.log.Warn("dropping undecodable audio chunk", "mime", ev.MIMEType, "err", err)
	s.ctrl.metrics.RecordDecodeError(s.ctx)
}

func (s *Session) reportGoal(goal string) {
	if s.declared != nil {
		if _, ok := s.declared[goal]; !ok {
			s.log.Warn("tutor reported an undeclared goal", "goal", goal)
		}
	}
	s.ctrl.metrics.RecordGoal(s.ctx)
	s.emit(Event{Kind: EventGoal, Goal: goal})
}

func (s *Session) emitSnapshot(final bool) {
	s.emit(Event{
		Kind:  EventMessage,
		User:  s.userText.String(),
		AI:    strings.TrimSpace(s.aiText.String()),
		Final: final,
	})
}

// emit delivers ev unless the session has finished. It blocks while the
// channel is full, until the consumer catches up or the session closes.
func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// ── Shutdown ───────────────────────────────────────────────────────────────────

// Close tears down everything the session acquired, in order: the block
// processor, the capture stream, playback, the output graph and the remote
// stream. It is idempotent, safe from any state including mid-setup, and
// always returns nil; teardown failures are logged.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		capture, stream, sched, out, remote := s.capture, s.stream, s.sched, s.out, s.remote
		s.mu.Unlock()

		if capture != nil {
			capture.Disconnect()
		}
		if stream != nil {
			if err := stream.Stop(); err != nil {
				s.log.Warn("stop capture stream", "err", err)
			}
		}
		if sched != nil {
			sched.Close()
		}
		if out != nil {
			if err := out.Close(); err != nil {
				s.log.Warn("close output graph", "err", err)
			}
		}
		if remote != nil {
			if err := remote.Close(); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("close live stream", "err", err)
			}
		}

		s.markReady(ErrClosed)
		s.ctrl.metrics.ActiveSessions.Add(context.Background(), -1)
		s.finish()
		s.log.Info("tutor session closed")
	})
	return nil
}

// finish sends EventClosed if there is room and closes the channel.
func (s *Session) finish() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	select {
	case s.events <- Event{Kind: EventClosed}:
	default:
	}
	close(s.events)
}
