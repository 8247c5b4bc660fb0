package gate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/promptd/internal/gate"

// verdictPattern is one accepted textual form of a verdict, tried in order.
type verdictPattern struct {
	re *regexp.Regexp
	// strict patterns are the only ones trusted for manual sources.
	strict bool
}

var verdictPatterns = []verdictPattern{
	{re: regexp.MustCompile(`(?i)GATE_REVIEW:\s*(PASS|FAIL)`), strict: true},
	{re: regexp.MustCompile(`(?i)\b(PASS|FAIL)\b`), strict: false},
}

// ParseVerdict matches raw against the accepted patterns and returns the
// first hit, or nil when no trusted pattern matches. Unmatched text is "no
// verdict yet", not an error.
func ParseVerdict(raw string, source Source) *Verdict {
	for _, p := range verdictPatterns {
		if source == SourceManual && !p.strict {
			continue
		}
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		decision := DecisionFail
		if strings.EqualFold(m[1], "pass") {
			decision = DecisionPass
		}
		return &Verdict{Decision: decision, Raw: raw, Source: source}
	}
	return nil
}

// ResolveEnforcementMode maps a configured mode string to an EnforcementMode,
// defaulting to blocking when unset or unrecognized.
func ResolveEnforcementMode(configured string) EnforcementMode {
	switch EnforcementMode(configured) {
	case ModeAdvisory:
		return ModeAdvisory
	case ModeInformational:
		return ModeInformational
	default:
		return ModeBlocking
	}
}

// Authority decides pass/retry/abort for gate reviews. All retry state and
// pending reviews are mutated through the session manager, never directly.
type Authority struct {
	sessions *session.Manager
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	outcomeCounter metric.Int64Counter
}

// NewAuthority creates a gate enforcement authority.
func NewAuthority(sessions *session.Manager, logger *zap.Logger) (*Authority, error) {
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Authority{
		sessions: sessions,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	a.initMetrics()
	return a, nil
}

func (a *Authority) initMetrics() {
	var err error
	a.outcomeCounter, err = a.meter.Int64Counter(
		"promptd.gate.outcomes_total",
		metric.WithDescription("Gate verdict outcomes by kind"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		a.logger.Warn("failed to create outcome counter", zap.Error(err))
	}
}

// Decide computes the request's enforcement decision at most once, caching it
// on the request's execution context cache. Subsequent calls within the same
// request return the identical cached value.
func (a *Authority) Decide(ctx context.Context, cache *Cache, sessionID string, configuredMode string, gateIDs []string) (*Decision, error) {
	if cache == nil {
		return nil, errors.New("decision cache is required")
	}
	if d := cache.Get(); d != nil {
		return d, nil
	}

	mode := ResolveEnforcementMode(configuredMode)
	reviewRequired := len(gateIDs) > 0 && mode != ModeInformational

	if sessionID != "" {
		s, err := a.sessions.Get(ctx, sessionID)
		if err != nil && !prompterr.IsNotFound(err) {
			return nil, err
		}
		if s != nil && s.PendingReview != nil {
			reviewRequired = true
		}
	}

	return cache.put(&Decision{
		Mode:           mode,
		ReviewRequired: reviewRequired,
		GateIDs:        gateIDs,
		DecidedAt:      time.Now(),
	}), nil
}

// RecordOutcome applies a parsed verdict to the session's review state and
// returns the resulting outcome.
func (a *Authority) RecordOutcome(ctx context.Context, sessionID string, verdict *Verdict, mode EnforcementMode) (Outcome, error) {
	ctx, span := a.tracer.Start(ctx, "gate.record_outcome")
	defer span.End()

	if verdict == nil {
		return "", prompterr.InvalidInput("record outcome", fmt.Errorf("verdict is required"))
	}

	s, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var gateIDs []string
	if s.PendingReview != nil {
		gateIDs = s.PendingReview.GateIDs
	}
	s.RetryState.GateHistory = append(s.RetryState.GateHistory, session.GateAttempt{
		GateIDs:  gateIDs,
		Decision: string(verdict.Decision),
		Mode:     string(mode),
		At:       time.Now(),
	})

	outcome := a.applyVerdict(s, verdict, mode)

	if err := a.sessions.Update(ctx, s); err != nil {
		span.RecordError(err)
		return "", err
	}
	// A continue outcome closes the review whether the verdict passed or the
	// enforcement mode let a failure through. Cleared through the manager so
	// lifecycle hooks fire.
	if outcome == OutcomeContinue {
		if err := a.sessions.ClearReview(ctx, sessionID); err != nil {
			span.RecordError(err)
			return "", err
		}
	}

	a.recordOutcome(ctx, outcome)
	span.SetAttributes(
		attribute.String("decision", string(verdict.Decision)),
		attribute.String("mode", string(mode)),
		attribute.String("outcome", string(outcome)),
	)
	a.logger.Info("recorded gate verdict",
		zap.String("session_id", sessionID),
		zap.String("decision", string(verdict.Decision)),
		zap.String("mode", string(mode)),
		zap.String("outcome", string(outcome)),
		zap.Int("attempt_count", s.RetryState.AttemptCount),
	)
	return outcome, nil
}

func (a *Authority) applyVerdict(s *session.Session, verdict *Verdict, mode EnforcementMode) Outcome {
	if verdict.Decision == DecisionPass {
		return OutcomeContinue
	}

	// Failing verdicts only block flow under blocking mode.
	if mode != ModeBlocking {
		return OutcomeContinue
	}

	// The counter freezes at the max; repeated fails without an intervening
	// resolution do not inflate it.
	if s.RetryState.AttemptCount < s.RetryState.MaxAttempts {
		s.RetryState.AttemptCount++
	}
	if s.PendingReview != nil {
		s.PendingReview.AttemptCount = s.RetryState.AttemptCount
	}

	if s.RetryState.AttemptCount < s.RetryState.MaxAttempts {
		return OutcomeRetry
	}
	return OutcomeAwaitingUserAction
}

// ResolveAction applies the caller's explicit resolution of an exhausted
// review.
func (a *Authority) ResolveAction(ctx context.Context, sessionID string, action Action) error {
	ctx, span := a.tracer.Start(ctx, "gate.resolve_action")
	defer span.End()

	s, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	switch action {
	case ActionRetry:
		s.RetryState.AttemptCount = 0
		if err := a.sessions.Update(ctx, s); err != nil {
			return err
		}
		if err := a.sessions.ClearReview(ctx, sessionID); err != nil {
			return err
		}

	case ActionSkip:
		var gateIDs []string
		if s.PendingReview != nil {
			gateIDs = s.PendingReview.GateIDs
		}
		s.RetryState.GateHistory = append(s.RetryState.GateHistory, session.GateAttempt{
			GateIDs:  gateIDs,
			Decision: "skipped",
			At:       time.Now(),
		})
		if err := a.sessions.Update(ctx, s); err != nil {
			return err
		}
		if err := a.sessions.ClearReview(ctx, sessionID); err != nil {
			return err
		}

	case ActionAbort:
		if err := a.sessions.Abandon(ctx, sessionID); err != nil {
			return err
		}

	default:
		return prompterr.InvalidInput("resolve action", fmt.Errorf("unknown action %q", action))
	}

	a.logger.Info("resolved gate review",
		zap.String("session_id", sessionID),
		zap.String("action", string(action)),
	)
	return nil
}

func (a *Authority) recordOutcome(ctx context.Context, outcome Outcome) {
	if a.outcomeCounter != nil {
		a.outcomeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
		))
	}
}
