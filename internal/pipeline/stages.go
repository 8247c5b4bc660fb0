package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/catalog"
	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
	"github.com/fyrsmithlabs/promptd/internal/render"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

// PromptCatalog is the catalog surface the stages need: read-only lookups
// plus request-scoped temporary gates.
type PromptCatalog interface {
	catalog.Catalog
	RegisterTemporaryGate(g *catalog.Gate) error
	UnregisterTemporaryGate(id string)
}

// Scrubber redacts sensitive values from outbound text.
type Scrubber interface {
	Scrub(text string) string
}

// Dependencies are the collaborators the default stage list is built over.
type Dependencies struct {
	Parser    *command.Parser
	Catalog   PromptCatalog
	Renderer  render.Renderer
	Sessions  *session.Manager
	Authority *gate.Authority
	Injection *injection.Service

	// GlobalInjection is the deployment-wide injection configuration tier.
	GlobalInjection injection.Config

	// Scrubber is optional; when nil, responses pass through unredacted.
	Scrubber Scrubber

	Logger *zap.Logger
}

func (d *Dependencies) validate() error {
	switch {
	case d.Parser == nil:
		return errors.New("parser is required")
	case d.Catalog == nil:
		return errors.New("catalog is required")
	case d.Renderer == nil:
		return errors.New("renderer is required")
	case d.Sessions == nil:
		return errors.New("session manager is required")
	case d.Authority == nil:
		return errors.New("gate authority is required")
	case d.Injection == nil:
		return errors.New("injection service is required")
	}
	return nil
}

// DefaultStages builds the canonical stage order.
func DefaultStages(deps Dependencies) ([]Stage, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return []Stage{
		&parseStage{deps: deps},
		&planStage{deps: deps},
		&sessionStage{deps: deps},
		&gateEnhanceStage{deps: deps},
		&injectionControlStage{deps: deps},
		&executeStage{deps: deps},
		&gateValidateStage{deps: deps},
		&reviewRenderStage{deps: deps},
		&formatStage{deps: deps},
		&cleanupStage{deps: deps},
	}, nil
}

// NewDefaultEngine wires the default stages into an engine.
func NewDefaultEngine(deps Dependencies) (*Engine, error) {
	stages, err := DefaultStages(deps)
	if err != nil {
		return nil, err
	}
	return NewEngine(stages, deps.Logger)
}

// parseStage tokenizes the raw command text. Malformed commands are a
// terminal guidance response, never a session mutation.
type parseStage struct {
	deps Dependencies
}

func (s *parseStage) Name() string     { return "parse" }
func (s *parseStage) AlwaysRuns() bool { return false }

func (s *parseStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	parsed, err := s.deps.Parser.Parse(ec.Request.Command)
	if err != nil {
		if prompterr.IsInvalidInput(err) {
			ec.respond(&Response{
				Content: fmt.Sprintf("Could not parse command: %v. Commands look like >>prompt-id key=value free text.", err),
			})
			return nil
		}
		return err
	}
	ec.Parsed = parsed
	return nil
}

// planStage resolves the prompt definition, upgrades declared chains, and
// fixes the execution strategy.
type planStage struct {
	deps Dependencies
}

func (s *planStage) Name() string     { return "plan" }
func (s *planStage) AlwaysRuns() bool { return false }

func (s *planStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	promptID := ec.Parsed.PromptID()
	prompt, err := s.deps.Catalog.GetPrompt(promptID)
	if err != nil {
		if prompterr.IsNotFound(err) {
			ec.respond(&Response{
				Content: fmt.Sprintf("Unknown prompt %q. Use list_prompts to see what is available.", promptID),
			})
			return nil
		}
		return err
	}
	ec.Prompt = prompt

	gateIDs := append([]string(nil), prompt.GateIDs...)
	if ec.Parsed.Single != nil {
		gateIDs = append(gateIDs, ec.Parsed.Single.InlineGateIDs...)
	}

	// Declared chains upgrade the parsed command: the union is produced once
	// here and pattern-matched by every later stage.
	if prompt.IsChain() {
		args := map[string]string{}
		if ec.Parsed.Single != nil {
			args = ec.Parsed.Single.Args
		}

		steps := make([]command.Step, 0, len(prompt.Chain))
		for _, def := range prompt.Chain {
			stepArgs := mergeArgs(args, def.Args)
			steps = append(steps, command.Step{
				PromptID:      def.PromptID,
				Args:          stepArgs,
				GateIDs:       def.GateIDs,
				OutputMapping: def.OutputMapping,
			})
			gateIDs = append(gateIDs, def.GateIDs...)
		}

		ec.Parsed = &command.Parsed{
			Kind:      command.KindChain,
			Chain:     steps,
			Modifiers: ec.Parsed.Modifiers,
		}
	}

	gateIDs = dedupe(gateIDs)
	for _, tg := range ec.Request.TemporaryGates {
		gateIDs = append(gateIDs, tg.ID)
	}

	ec.Plan = &session.Plan{
		PromptID:      prompt.ID,
		IsChain:       ec.Parsed.Kind == command.KindChain,
		TotalSteps:    ec.Parsed.StepCount(),
		RequiresGates: len(gateIDs) > 0,
		GateIDs:       gateIDs,
	}
	return nil
}

// sessionStage resolves or creates the chain session.
type sessionStage struct {
	deps Dependencies
}

func (s *sessionStage) Name() string     { return "session" }
func (s *sessionStage) AlwaysRuns() bool { return false }

func (s *sessionStage) Execute(ctx context.Context, ec *ExecutionContext) error {
	sc, err := s.deps.Sessions.ResolveOrCreate(ctx, ec.Request, *ec.Plan)
	if err != nil {
		return err
	}
	ec.Session = sc
	return nil
}

func mergeArgs(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// currentStepArgs returns the arguments for the session's current step.
func currentStepArgs(ec *ExecutionContext) map[string]string {
	if ec.Parsed.Kind == command.KindChain {
		idx := ec.Session.CurrentStep - 1
		if idx >= 0 && idx < len(ec.Parsed.Chain) {
			return ec.Parsed.Chain[idx].Args
		}
		return nil
	}
	if ec.Parsed.Single != nil {
		return ec.Parsed.Single.Args
	}
	return nil
}

// joinGuidance concatenates gate guidance texts into one review prompt.
func joinGuidance(gates []*catalog.Gate) string {
	parts := make([]string, 0, len(gates))
	for _, g := range gates {
		name := g.Name
		if name == "" {
			name = g.ID
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", name, g.Guidance))
	}
	return strings.Join(parts, "\n\n")
}
