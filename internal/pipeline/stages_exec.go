package pipeline

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// injectionControlStage computes the request's injection decisions once, so
// every later stage shares the same answers.
type injectionControlStage struct {
	deps Dependencies
}

func (s *injectionControlStage) Name() string     { return "injection-control" }
func (s *injectionControlStage) AlwaysRuns() bool { return false }

func (s *injectionControlStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	in := injection.DecideInput{
		Modifiers:   ec.Parsed.Modifiers,
		Args:        currentStepArgs(ec),
		IsChain:     ec.Plan.IsChain,
		CurrentStep: ec.Session.CurrentStep,
		StepKnown:   true,
		Chain:       ec.Prompt.Injection,
		Category:    s.deps.Catalog.CategoryInjection(ec.Prompt.Category),
		Global:      s.deps.GlobalInjection,
	}

	if ec.Parsed.Kind == command.KindChain {
		idx := ec.Session.CurrentStep - 1
		if idx >= 0 && idx < len(ec.Prompt.Chain) {
			in.Step = ec.Prompt.Chain[idx].Injection
		}
	}

	ec.Decisions = s.deps.Injection.DecideAll(in, ec.InjectionCache)
	return nil
}

// executeStage renders the current step's template with chain variables and
// request arguments, then records the result in the chain-variable store.
type executeStage struct {
	deps Dependencies
}

func (s *executeStage) Name() string     { return "execute" }
func (s *executeStage) AlwaysRuns() bool { return false }

func (s *executeStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	// While a review is pending, the request resolves the review instead of
	// re-executing the step.
	if ec.Session.PendingReview != nil {
		return nil
	}

	tmpl, args, outputMapping, err := s.currentStep(ec)
	if err != nil {
		if prompterr.IsNotFound(err) {
			ec.respond(&Response{
				Content: fmt.Sprintf("Chain step references an unknown prompt: %v.", err),
			})
			return nil
		}
		return err
	}

	vars := s.deps.Sessions.Variables().BuildTemplateVariables(ec.Session.ChainID)
	for k, v := range args {
		vars[k] = v
	}

	rendered, err := s.deps.Renderer.Render(tmpl, vars)
	if err != nil {
		if prompterr.IsInvalidInput(err) {
			ec.respond(&Response{
				Content: fmt.Sprintf("Template error in prompt %q: %v.", ec.Plan.PromptID, err),
			})
			return nil
		}
		return err
	}

	rendered, err = s.applyGuidance(ec, args, rendered)
	if err != nil {
		return err
	}
	if ec.Response != nil {
		// Guidance responded terminally (bad input); the step did not execute
		// and the chain-variable store stays untouched.
		return nil
	}

	s.deps.Sessions.Variables().StoreStepResult(ec.Session.ChainID, ec.Session.CurrentStep, rendered, outputMapping)

	ec.Rendered = rendered
	ec.Metadata["executed"] = true
	return nil
}

// currentStep resolves the template, argument bag, and output mapping for the
// session's current step.
func (s *executeStage) currentStep(ec *ExecutionContext) (string, map[string]string, map[string]string, error) {
	if ec.Parsed.Kind != command.KindChain {
		var args map[string]string
		if ec.Parsed.Single != nil {
			args = ec.Parsed.Single.Args
		}
		return ec.Prompt.Template, args, nil, nil
	}

	idx := ec.Session.CurrentStep - 1
	if idx < 0 || idx >= len(ec.Parsed.Chain) {
		return "", nil, nil, prompterr.Internal("resolve chain step",
			fmt.Errorf("step %d out of range for %d declared steps", ec.Session.CurrentStep, len(ec.Parsed.Chain)))
	}

	step := ec.Parsed.Chain[idx]
	prompt, err := s.deps.Catalog.GetPrompt(step.PromptID)
	if err != nil {
		return "", nil, nil, err
	}
	return prompt.Template, step.Args, step.OutputMapping, nil
}

// applyGuidance adds framework and gate guidance per the request's injection
// decisions.
func (s *executeStage) applyGuidance(ec *ExecutionContext, args map[string]string, rendered string) (string, error) {
	if id, ok := args["framework"]; ok && id != "" {
		fw, err := s.deps.Catalog.GetFramework(id)
		if err != nil {
			if prompterr.IsNotFound(err) {
				ec.respond(&Response{
					Content: fmt.Sprintf("Unknown framework %q.", id),
				})
				return rendered, nil
			}
			return "", err
		}
		ec.Framework = &FrameworkContext{Framework: fw}

		if d, ok := ec.Decisions[injection.TypeSystemPrompt]; ok && d.Inject {
			rendered = fw.Guidance + "\n\n" + rendered
			ec.Framework.GuidanceInjected = true
			ec.Metadata["framework_override_applied"] = true
		}

		if d, ok := ec.Decisions[injection.TypeStyleGuidance]; ok && d.Inject && fw.Style != "" {
			rendered = rendered + "\n\n# Style\n" + fw.Style
		}
	}

	if d, ok := ec.Decisions[injection.TypeGateGuidance]; ok && d.Inject && len(ec.Plan.GateIDs) > 0 {
		gates, err := s.lookupGates(ec.Plan.GateIDs)
		if err != nil {
			return "", err
		}
		if len(gates) > 0 {
			rendered = rendered + "\n\n# Quality criteria\n" + joinGuidance(gates)
		}
	}
	return rendered, nil
}

func (s *executeStage) lookupGates(ids []string) ([]*catalog.Gate, error) {
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

// formatStage produces the outbound response and scrubs sensitive values.
// It always runs so review and input-error responses are finalized too.
type formatStage struct {
	deps Dependencies
}

func (s *formatStage) Name() string     { return "format" }
func (s *formatStage) AlwaysRuns() bool { return true }

func (s *formatStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	if ec.Response == nil {
		ec.Response = &Response{Content: ec.Rendered}
	}

	// A verdict executes nothing itself; the response reports the progress so
	// the caller issues the next step. A failing verdict still continues when
	// enforcement is not blocking.
	if ec.Response.Content == "" && ec.Gates != nil && ec.Gates.LastOutcome == gate.OutcomeContinue && ec.Session != nil {
		note := "Gate review passed."
		if len(ec.Gates.FailedGateIDs) > 0 {
			note = "Gate review failed. The failure is recorded; enforcement does not block."
		}
		if done, _ := ec.Metadata["session_completed"].(bool); done {
			ec.Response.Content = note + " Chain complete."
		} else {
			ec.Response.Content = fmt.Sprintf(note+" Continue with step %d of %d.",
				ec.Session.CurrentStep, ec.Session.TotalSteps)
		}
	}

	meta := &ec.Response.Metadata
	if ec.Session != nil {
		if meta.SessionID == "" {
			meta.SessionID = ec.Session.SessionID
		}
		if meta.ChainID == "" {
			meta.ChainID = ec.Session.ChainID
		}
		if meta.CurrentStep == 0 {
			meta.CurrentStep = ec.Session.CurrentStep
		}
		if meta.TotalSteps == 0 {
			meta.TotalSteps = ec.Session.TotalSteps
		}
	}
	if ec.Gates != nil {
		if meta.ActiveGateIDs == nil {
			meta.ActiveGateIDs = ec.Gates.EnabledGateIDs
		}
		if meta.ValidationStatus == "" {
			meta.ValidationStatus = validationStatus(ec.Gates)
		}
	}

	if s.deps.Scrubber != nil {
		ec.Response.Content = s.deps.Scrubber.Scrub(ec.Response.Content)
	}
	return nil
}

// cleanupStage removes request-scoped state. It always runs, even after an
// early terminal response, so temporary gates and framework overrides never
// leak into the next request.
type cleanupStage struct {
	deps Dependencies
}

func (s *cleanupStage) Name() string     { return "cleanup" }
func (s *cleanupStage) AlwaysRuns() bool { return true }

func (s *cleanupStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	ids, _ := ec.Metadata["temporary_gate_ids"].([]string)
	for _, id := range ids {
		s.deps.Catalog.UnregisterTemporaryGate(id)
	}

	if _, ok := ec.Metadata["framework_override_applied"]; ok {
		ec.Metadata["framework_restored"] = true
	}
	return nil
}
