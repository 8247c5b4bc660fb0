package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/gate"
	"github.com/fyrsmithlabs/promptd/internal/pipeline"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

func (s *Server) registerTools() {
	s.registerExecuteTool()
	s.registerReviewTools()
	s.registerCatalogTools()
}

// ===== EXECUTION =====

type temporaryGateInput struct {
	ID       string `json:"id" jsonschema:"required,Gate identifier unique within the request"`
	Name     string `json:"name,omitempty" jsonschema:"Human-readable gate name"`
	Guidance string `json:"guidance" jsonschema:"required,Review criteria text"`
}

type executePromptInput struct {
	Command        string               `json:"command" jsonschema:"required,Command text such as >>prompt-id key=value free text"`
	SessionID      string               `json:"session_id,omitempty" jsonschema:"Existing session to resume"`
	ChainID        string               `json:"chain_id,omitempty" jsonschema:"Logical chain identity for resumption matching"`
	ForceRestart   bool                 `json:"force_restart,omitempty" jsonschema:"Abandon any matching session and start fresh"`
	GateVerdict    string               `json:"gate_verdict,omitempty" jsonschema:"Verdict text echoed back while a review is pending"`
	TemporaryGates []temporaryGateInput `json:"temporary_gates,omitempty" jsonschema:"Request-scoped gate definitions"`
}

type executePromptOutput struct {
	Content          string   `json:"content" jsonschema:"Rendered prompt or guidance text"`
	SessionID        string   `json:"session_id,omitempty" jsonschema:"Session owning this execution"`
	ChainID          string   `json:"chain_id,omitempty" jsonschema:"Chain identity"`
	CurrentStep      int      `json:"current_step,omitempty" jsonschema:"Current step number (1-based)"`
	TotalSteps       int      `json:"total_steps,omitempty" jsonschema:"Declared step count"`
	ActiveGateIDs    []string `json:"active_gate_ids,omitempty" jsonschema:"Gates enabled for this step"`
	ValidationStatus string   `json:"validation_status,omitempty" jsonschema:"Gate status (passed failed or pending)"`
	ReviewPrompt     string   `json:"review_prompt,omitempty" jsonschema:"Review prompt when a verdict is awaited"`
	VerdictSyntax    string   `json:"verdict_syntax,omitempty" jsonschema:"Exact marker syntax for verdict replies"`
}

func (s *Server) registerExecuteTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_prompt",
		Description: "Execute a prompt or chain command. Resumes the matching session automatically and opens gate reviews when required.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args executePromptInput) (*mcp.CallToolResult, executePromptOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "execute_prompt")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "execute_prompt")
			s.metrics.RecordInvocation(ctx, "execute_prompt", time.Since(start), toolErr)
		}()

		tempGates := make([]command.TemporaryGate, 0, len(args.TemporaryGates))
		for _, tg := range args.TemporaryGates {
			tempGates = append(tempGates, command.TemporaryGate{
				ID:       tg.ID,
				Name:     tg.Name,
				Guidance: tg.Guidance,
			})
		}

		request := &command.Request{
			Command:        args.Command,
			SessionID:      args.SessionID,
			ChainID:        args.ChainID,
			ForceRestart:   args.ForceRestart,
			TemporaryGates: tempGates,
			GateVerdict:    args.GateVerdict,
		}

		ec := pipeline.NewExecutionContext(request)
		resp, err := s.registry.Engine().Run(ctx, ec)
		if err != nil {
			toolErr = fmt.Errorf("execute failed: %w", err)
			return nil, executePromptOutput{}, toolErr
		}

		output := executePromptOutput{
			Content:          resp.Content,
			SessionID:        resp.Metadata.SessionID,
			ChainID:          resp.Metadata.ChainID,
			CurrentStep:      resp.Metadata.CurrentStep,
			TotalSteps:       resp.Metadata.TotalSteps,
			ActiveGateIDs:    resp.Metadata.ActiveGateIDs,
			ValidationStatus: string(resp.Metadata.ValidationStatus),
			ReviewPrompt:     resp.Metadata.ReviewPrompt,
			VerdictSyntax:    resp.Metadata.VerdictSyntax,
		}

		summary := fmt.Sprintf("Executed step %d of %d", output.CurrentStep, output.TotalSteps)
		if output.ValidationStatus == string(pipeline.ValidationPending) {
			summary = "Gate review pending"
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: summary},
			},
		}, output, nil
	})
}

// ===== REVIEW AND SESSION TOOLS =====

type resolveReviewInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session whose review budget is exhausted"`
	Action    string `json:"action" jsonschema:"required,Resolution action (retry skip or abort)"`
}

type resolveReviewOutput struct {
	SessionID   string `json:"session_id" jsonschema:"Session the action applied to"`
	Action      string `json:"action" jsonschema:"Action taken"`
	Status      string `json:"status" jsonschema:"Session status after the action"`
	CurrentStep int    `json:"current_step" jsonschema:"Current step after the action"`
	TotalSteps  int    `json:"total_steps" jsonschema:"Declared step count"`
}

type chainStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
}

type chainStatusOutput struct {
	SessionID     string   `json:"session_id" jsonschema:"Session identifier"`
	ChainID       string   `json:"chain_id" jsonschema:"Chain identity"`
	Status        string   `json:"status" jsonschema:"Session status (active completed or aborted)"`
	CurrentStep   int      `json:"current_step" jsonschema:"Current step number"`
	TotalSteps    int      `json:"total_steps" jsonschema:"Declared step count"`
	AttemptCount  int      `json:"attempt_count" jsonschema:"Failed attempts against the current review"`
	MaxAttempts   int      `json:"max_attempts" jsonschema:"Retry budget"`
	ReviewPending bool     `json:"review_pending" jsonschema:"Whether a gate review awaits a verdict"`
	ReviewGateIDs []string `json:"review_gate_ids,omitempty" jsonschema:"Gates under review"`
}

func (s *Server) registerReviewTools() {
	// resolve_review
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resolve_review",
		Description: "Resolve an exhausted gate review with an explicit action: retry resets the budget, skip advances past the gate, abort abandons the session.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args resolveReviewInput) (*mcp.CallToolResult, resolveReviewOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "resolve_review")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "resolve_review")
			s.metrics.RecordInvocation(ctx, "resolve_review", time.Since(start), toolErr)
		}()

		action := gate.Action(args.Action)
		switch action {
		case gate.ActionRetry, gate.ActionSkip, gate.ActionAbort:
		default:
			toolErr = prompterr.InvalidInput("resolve review",
				fmt.Errorf("unknown action %q (must be retry, skip, or abort)", args.Action))
			return nil, resolveReviewOutput{}, toolErr
		}

		if err := s.registry.Authority().ResolveAction(ctx, args.SessionID, action); err != nil {
			toolErr = fmt.Errorf("resolve review failed: %w", err)
			return nil, resolveReviewOutput{}, toolErr
		}

		sess, err := s.registry.Sessions().Get(ctx, args.SessionID)
		if err != nil {
			toolErr = fmt.Errorf("session lookup after resolve failed: %w", err)
			return nil, resolveReviewOutput{}, toolErr
		}

		output := resolveReviewOutput{
			SessionID:   sess.ID,
			Action:      string(action),
			Status:      string(sess.Status),
			CurrentStep: sess.CurrentStep,
			TotalSteps:  sess.TotalSteps,
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Review resolved with action %s; session is %s", output.Action, output.Status)},
			},
		}, output, nil
	})

	// chain_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "chain_status",
		Description: "Report a session's chain progress, retry budget, and pending review state.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args chainStatusInput) (*mcp.CallToolResult, chainStatusOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "chain_status")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "chain_status")
			s.metrics.RecordInvocation(ctx, "chain_status", time.Since(start), toolErr)
		}()

		sess, err := s.registry.Sessions().Get(ctx, args.SessionID)
		if err != nil {
			toolErr = fmt.Errorf("session lookup failed: %w", err)
			return nil, chainStatusOutput{}, toolErr
		}

		output := chainStatusOutput{
			SessionID:    sess.ID,
			ChainID:      sess.ChainID,
			Status:       string(sess.Status),
			CurrentStep:  sess.CurrentStep,
			TotalSteps:   sess.TotalSteps,
			AttemptCount: sess.RetryState.AttemptCount,
			MaxAttempts:  sess.RetryState.MaxAttempts,
		}
		if sess.PendingReview != nil {
			output.ReviewPending = true
			output.ReviewGateIDs = sess.PendingReview.GateIDs
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session %s: step %d of %d (%s)", output.SessionID, output.CurrentStep, output.TotalSteps, output.Status)},
			},
		}, output, nil
	})
}

// ===== CATALOG TOOLS =====

type listPromptsInput struct {
	Category string `json:"category,omitempty" jsonschema:"Filter by prompt category"`
}

type promptSummary struct {
	ID       string   `json:"id" jsonschema:"Prompt identifier"`
	Name     string   `json:"name,omitempty" jsonschema:"Human-readable name"`
	Category string   `json:"category,omitempty" jsonschema:"Prompt category"`
	IsChain  bool     `json:"is_chain" jsonschema:"Whether invoking this prompt starts a chain"`
	Steps    int      `json:"steps" jsonschema:"Number of executions the prompt declares"`
	GateIDs  []string `json:"gate_ids,omitempty" jsonschema:"Gates applied to single execution"`
}

type listPromptsOutput struct {
	Prompts []promptSummary `json:"prompts" jsonschema:"Available prompt definitions"`
	Count   int             `json:"count" jsonschema:"Number of prompts returned"`
}

func (s *Server) registerCatalogTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_prompts",
		Description: "List available prompt definitions, optionally filtered by category.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listPromptsInput) (*mcp.CallToolResult, listPromptsOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "list_prompts")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "list_prompts")
			s.metrics.RecordInvocation(ctx, "list_prompts", time.Since(start), toolErr)
		}()

		prompts := s.registry.Catalog().ListPrompts()
		summaries := make([]promptSummary, 0, len(prompts))
		for _, p := range prompts {
			if args.Category != "" && p.Category != args.Category {
				continue
			}
			steps := 1
			if p.IsChain() {
				steps = len(p.Chain)
			}
			summaries = append(summaries, promptSummary{
				ID:       p.ID,
				Name:     p.Name,
				Category: p.Category,
				IsChain:  p.IsChain(),
				Steps:    steps,
				GateIDs:  p.GateIDs,
			})
		}

		output := listPromptsOutput{
			Prompts: summaries,
			Count:   len(summaries),
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Found %d prompts", output.Count)},
			},
		}, output, nil
	})
}
