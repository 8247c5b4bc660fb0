package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

// gateEnhanceStage registers request-scoped temporary gates and computes the
// request's enforcement decision.
type gateEnhanceStage struct {
	deps Dependencies
}

func (s *gateEnhanceStage) Name() string     { return "gate-enhance" }
func (s *gateEnhanceStage) AlwaysRuns() bool { return false }

func (s *gateEnhanceStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	var tempIDs []string
	for _, tg := range ec.Request.TemporaryGates {
		err := s.deps.Catalog.RegisterTemporaryGate(&catalog.Gate{
			ID:       tg.ID,
			Name:     tg.Name,
			Guidance: tg.Guidance,
		})
		if err != nil {
			return err
		}
		tempIDs = append(tempIDs, tg.ID)
	}
	if len(tempIDs) > 0 {
		ec.Metadata["temporary_gate_ids"] = tempIDs
	}

	mode, maxAttempts, err := s.resolveGateConfig(ec.Plan.GateIDs)
	if err != nil {
		return err
	}

	if maxAttempts > 0 {
		if err := s.applyRetryBudget(ctx, ec.Session.SessionID, maxAttempts); err != nil {
			return err
		}
	}

	decision, err := s.deps.Authority.Decide(ctx, ec.GateCache, ec.Session.SessionID, mode, ec.Plan.GateIDs)
	if err != nil {
		return err
	}

	ec.Gates = &GateContext{
		EnabledGateIDs: ec.Plan.GateIDs,
		Mode:           decision.Mode,
		ReviewRequired: decision.ReviewRequired,
	}
	return nil
}

// resolveGateConfig scans the enabled gates; the strictest configured mode
// wins, and the largest configured retry budget applies.
func (s *gateEnhanceStage) resolveGateConfig(gateIDs []string) (string, int, error) {
	mode := ""
	maxAttempts := 0
	for _, id := range gateIDs {
		g, err := s.deps.Catalog.GetGate(id)
		if err != nil {
			if prompterr.IsNotFound(err) {
				continue
			}
			return "", 0, err
		}
		if stricter(g.EnforcementMode, mode) {
			mode = g.EnforcementMode
		}
		if g.MaxAttempts > maxAttempts {
			maxAttempts = g.MaxAttempts
		}
	}
	return mode, maxAttempts, nil
}

func (s *gateEnhanceStage) applyRetryBudget(ctx context.Context, sessionID string, maxAttempts int) error {
	sess, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.RetryState.MaxAttempts == maxAttempts {
		return nil
	}
	sess.RetryState.MaxAttempts = maxAttempts
	return s.deps.Sessions.Update(ctx, sess)
}

// stricter compares configured enforcement mode strings; blocking >
// advisory > informational. Unset ranks below every configured mode so a
// gate declaring advisory or informational is adopted over no configuration
// at all; the blocking default applies only when no gate configures a mode.
func stricter(a, b string) bool {
	return modeRank(a) > modeRank(b)
}

func modeRank(mode string) int {
	if mode == "" {
		return 0
	}
	switch gate.ResolveEnforcementMode(mode) {
	case gate.ModeBlocking:
		return 3
	case gate.ModeAdvisory:
		return 2
	default:
		return 1
	}
}

// gateValidateStage interprets verdict text, applies outcomes, opens reviews
// for freshly executed content, and advances the chain on continue.
type gateValidateStage struct {
	deps Dependencies
}

func (s *gateValidateStage) Name() string     { return "gate-validate" }
func (s *gateValidateStage) AlwaysRuns() bool { return false }

func (s *gateValidateStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if ec.Session.PendingReview != nil {
		return s.resolvePending(ctx, ec)
	}

	executed := ec.Metadata["executed"] == true
	if !executed {
		return nil
	}

	if ec.Gates != nil && ec.Gates.ReviewRequired {
		return s.openReview(ctx, ec)
	}

	// No review stands between this step and the next.
	if ec.Gates != nil {
		ec.Gates.LastOutcome = gate.OutcomeContinue
		ec.Gates.PassedGateIDs = ec.Gates.EnabledGateIDs
	}
	return s.advance(ctx, ec)
}

// resolvePending applies the caller's echoed verdict to the open review.
// Text matching no trusted pattern is "no verdict yet", and the review
// simply stays open.
func (s *gateValidateStage) resolvePending(ctx context.Context, ec *ExecutionContext) error {
	if ec.Gates == nil {
		ec.Gates = &GateContext{}
	}
	ec.Gates.ReviewRequired = true

	if ec.Request.GateVerdict == "" {
		return nil
	}

	verdict := gate.ParseVerdict(ec.Request.GateVerdict, gate.SourceManual)
	if verdict == nil {
		return nil
	}

	outcome, err := s.deps.Authority.RecordOutcome(ctx, ec.Session.SessionID, verdict, ec.Gates.Mode)
	if err != nil {
		return err
	}
	ec.Gates.LastOutcome = outcome

	switch outcome {
	case gate.OutcomeContinue:
		// A failing verdict can still continue under advisory or
		// informational enforcement; the failure is recorded, not cleared.
		ec.Gates.ReviewRequired = false
		if verdict.Decision == gate.DecisionPass {
			ec.Gates.PassedGateIDs = ec.Session.PendingReview.GateIDs
		} else {
			ec.Gates.FailedGateIDs = ec.Session.PendingReview.GateIDs
		}
		ec.Session.PendingReview = nil
		return s.advance(ctx, ec)

	case gate.OutcomeRetry:
		ec.Gates.FailedGateIDs = ec.Session.PendingReview.GateIDs
		return s.attachRetryHint(ctx, ec)

	case gate.OutcomeAwaitingUserAction:
		ec.Gates.FailedGateIDs = ec.Session.PendingReview.GateIDs
		return nil
	}
	return nil
}

// openReview creates the pending review for freshly executed content.
func (s *gateValidateStage) openReview(ctx context.Context, ec *ExecutionContext) error {
	gates, err := s.reviewGates(ec.Gates.EnabledGateIDs)
	if err != nil {
		return err
	}
	if len(gates) == 0 {
		ec.Gates.ReviewRequired = false
		ec.Gates.LastOutcome = gate.OutcomeContinue
		return s.advance(ctx, ec)
	}

	sess, err := s.deps.Sessions.Get(ctx, ec.Session.SessionID)
	if err != nil {
		return err
	}

	review := &session.PendingGateReview{
		Prompt:           joinGuidance(gates),
		GateIDs:          ec.Gates.EnabledGateIDs,
		CreatedAt:        time.Now(),
		MaxAttempts:      sess.RetryState.MaxAttempts,
		PreviousResponse: ec.Rendered,
	}
	if err := s.deps.Sessions.AttachReview(ctx, ec.Session.SessionID, review); err != nil {
		return err
	}

	ec.Session.PendingReview = review
	return nil
}

func (s *gateValidateStage) reviewGates(ids []string) ([]*catalog.Gate, error) {
	gates := make([]*catalog.Gate, 0, len(ids))
	for _, id := range ids {
		g, err := s.deps.Catalog.GetGate(id)
		if err != nil {
			if prompterr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		gates = append(gates, g)
	}
	return gates, nil
}

// attachRetryHint re-issues the review with a hint about the failed attempt.
func (s *gateValidateStage) attachRetryHint(ctx context.Context, ec *ExecutionContext) error {
	sess, err := s.deps.Sessions.Get(ctx, ec.Session.SessionID)
	if err != nil {
		return err
	}
	if sess.PendingReview == nil {
		return nil
	}

	review := sess.PendingReview
	review.RetryHints = append(review.RetryHints,
		fmt.Sprintf("Attempt %d of %d failed review. Address the gate criteria and resubmit.",
			review.AttemptCount, review.MaxAttempts))

	if err := s.deps.Sessions.AttachReview(ctx, ec.Session.SessionID, review); err != nil {
		return err
	}
	ec.Session.PendingReview = review
	return nil
}

// advance moves the session forward one step; the step counter strictly
// increases only here, on a continue outcome.
func (s *gateValidateStage) advance(ctx context.Context, ec *ExecutionContext) error {
	sess, err := s.deps.Sessions.AdvanceStep(ctx, ec.Session.SessionID)
	if err != nil {
		return err
	}
	ec.Session.CurrentStep = sess.CurrentStep
	ec.Metadata["session_completed"] = sess.IsComplete()
	return nil
}

// reviewRenderStage turns an open review into the outbound response: the
// combined review prompt plus the verdict syntax the caller must echo back.
type reviewRenderStage struct {
	deps Dependencies
}

func (s *reviewRenderStage) Name() string     { return "review-render" }
func (s *reviewRenderStage) AlwaysRuns() bool { return false }

func (s *reviewRenderStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if ec.Gates == nil || !ec.Gates.ReviewRequired {
		return nil
	}

	sess, err := s.deps.Sessions.Get(ctx, ec.Session.SessionID)
	if err != nil {
		return err
	}
	review := sess.PendingReview
	if review == nil {
		return nil
	}

	status := ValidationPending
	if ec.Gates.LastOutcome == gate.OutcomeRetry || ec.Gates.LastOutcome == gate.OutcomeAwaitingUserAction {
		status = ValidationFailed
	}

	content := "# Gate review required\n\n" + review.Prompt
	if len(review.RetryHints) > 0 {
		content += "\n\n## Hints\n"
		for _, hint := range review.RetryHints {
			content += "- " + hint + "\n"
		}
	}
	if review.PreviousResponse != "" {
		content += "\n\n## Content under review\n" + review.PreviousResponse
	}
	if ec.Gates.LastOutcome == gate.OutcomeAwaitingUserAction {
		content += "\n\nRetry budget exhausted. Resolve the review with retry, skip, or abort."
	} else {
		content += "\n\nReply with the verdict marker verbatim: " + VerdictSyntax
	}

	ec.respond(&Response{
		Content: content,
		Metadata: ResponseMetadata{
			SessionID:        ec.Session.SessionID,
			ChainID:          ec.Session.ChainID,
			CurrentStep:      ec.Session.CurrentStep,
			TotalSteps:       ec.Session.TotalSteps,
			ActiveGateIDs:    ec.Gates.EnabledGateIDs,
			ValidationStatus: status,
			ReviewPrompt:     review.Prompt,
			VerdictSyntax:    VerdictSyntax,
		},
	})
	return nil
}

// validationStatus maps accumulated gate state to the response status.
func validationStatus(g *GateContext) ValidationStatus {
	switch {
	case g.ReviewRequired:
		return ValidationPending
	case g.LastOutcome == gate.OutcomeRetry || g.LastOutcome == gate.OutcomeAwaitingUserAction:
		return ValidationFailed
	case len(g.FailedGateIDs) > 0:
		// Continue outcome reached on a failing verdict: non-blocking
		// enforcement recorded the failure and moved on.
		return ValidationFailed
	case len(g.EnabledGateIDs) > 0:
		return ValidationPassed
	default:
		return ""
	}
}
