package feedback

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/tutor"
	"github.com/MrWong99/speakeasy/pkg/provider/text"
)

// Analyzer produces a [Report] for a conversation. It is safe for
// concurrent use.
type Analyzer struct {
	provider     text.Provider
	providerName string
	breaker      *resilience.CircuitBreaker
	metrics      *observe.Metrics
	timeout      time.Duration
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithBreaker routes every generation through cb. Without one the analyzer
// creates a breaker with default settings.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Analyzer) { a.breaker = cb }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithProviderName labels provider metrics. Default "text".
func WithProviderName(name string) Option {
	return func(a *Analyzer) { a.providerName = name }
}

// WithTimeout bounds one generation. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// NewAnalyzer returns an analyzer backed by p.
func NewAnalyzer(p text.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{provider: p, providerName: "text"}
	for _, o := range opts {
		o(a)
	}
	if a.breaker == nil {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "feedback"})
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Analyze returns feedback for turns. Blank turns are ignored; when none
// remain the model is not called and [NothingRecordedReport] is returned.
// Every failure (transport, open circuit, malformed or out-of-range reply)
// yields [FallbackReport].
func (a *Analyzer) Analyze(ctx context.Context, turns []tutor.Turn) Report {
	turns = tutor.NonEmpty(turns)
	if len(turns) == 0 {
		return NothingRecordedReport()
	}

	ctx, span := observe.StartSpan(ctx, "feedback.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("feedback.turns", len(turns)))
	log := observe.Logger(ctx)
	start := time.Now()

	report, err := a.analyze(ctx, turns)
	a.metrics.RecordFeedback(ctx, time.Since(start), err != nil)
	if err != nil {
		observe.FailSpan(span, err)
		log.Error("feedback analysis failed, using fallback report", "err", err)
		return FallbackReport()
	}
	log.Info("feedback analysis complete",
		"turns", len(turns),
		"vocabulary", len(report.Vocabulary),
		"duration", time.Since(start),
	)
	return report
}

func (a *Analyzer) analyze(ctx context.Context, turns []tutor.Turn) (Report, error) {
	req := text.Request{
		Prompt:     BuildPrompt(turns),
		Schema:     Schema(),
		SchemaName: SchemaName,
	}

	var raw string
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		if a.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}
		var genErr error
		raw, genErr = a.provider.GenerateJSON(ctx, req)
		return genErr
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		a.metrics.RecordProviderRequest(ctx, a.providerName, "text", "rejected")
		return Report{}, err
	case err != nil:
		a.metrics.RecordProviderRequest(ctx, a.providerName, "text", "error")
		a.metrics.RecordProviderError(ctx, a.providerName, "text")
		return Report{}, err
	}
	a.metrics.RecordProviderRequest(ctx, a.providerName, "text", "ok")
	return Parse([]byte(raw))
}
