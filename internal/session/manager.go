package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/command"
	"github.com/fyrsmithlabs/promptd/internal/events"
	"github.com/fyrsmithlabs/promptd/internal/hooks"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

const instrumentationName = "github.com/fyrsmithlabs/promptd/internal/session"

// Config configures the session manager.
type Config struct {
	// DefaultMaxAttempts is the retry budget for new sessions (default: 3).
	DefaultMaxAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultMaxAttempts: 3,
	}
}

// Manager resolves and mutates sessions. It is the only writer of Session
// records and owns the chain-variable store.
type Manager struct {
	config    *Config
	store     Store
	vars      *VarStore
	hooks     *hooks.HookManager
	publisher events.Publisher
	logger    *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	resolveCounter metric.Int64Counter
}

// NewManager creates a session manager.
func NewManager(cfg *Config, store Store, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		config:    cfg,
		store:     store,
		vars:      NewVarStore(),
		hooks:     hooks.NewHookManager(),
		publisher: events.NopPublisher{},
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	m.initMetrics()
	return m, nil
}

func (m *Manager) initMetrics() {
	var err error
	m.resolveCounter, err = m.meter.Int64Counter(
		"promptd.session.resolutions_total",
		metric.WithDescription("Session resolutions by decision tag"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		m.logger.Warn("failed to create resolve counter", zap.Error(err))
	}
}

// Hooks returns the lifecycle hook manager for handler registration.
func (m *Manager) Hooks() *hooks.HookManager {
	return m.hooks
}

// SetPublisher wires a lifecycle event publisher.
func (m *Manager) SetPublisher(p events.Publisher) {
	if p != nil {
		m.publisher = p
	}
}

// Variables returns the chain-variable store.
func (m *Manager) Variables() *VarStore {
	return m.vars
}

// ResolveOrCreate decides whether the request continues an existing chain or
// starts a new one.
func (m *Manager) ResolveOrCreate(ctx context.Context, req *command.Request, plan Plan) (*Context, error) {
	ctx, span := m.tracer.Start(ctx, "session.resolve_or_create")
	defer span.End()

	// Force-restart skips all resumption and abandons any resumable session
	// for the same chain.
	if req.ForceRestart {
		chainID := m.deriveChainID(req, plan)
		if existing, err := m.store.FindActiveByChain(ctx, chainID); err == nil && existing != nil {
			if err := m.Abandon(ctx, existing.ID); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
		return m.create(ctx, span, chainID, plan, TagCreateForce)
	}

	// Explicit session id.
	if req.SessionID != "" {
		existing, err := m.store.Get(ctx, req.SessionID)
		if err != nil && !prompterr.IsNotFound(err) {
			span.RecordError(err)
			return nil, err
		}
		if existing != nil && existing.IsActive() {
			return m.resume(ctx, span, existing, TagResumeSessionID)
		}
	}

	// Chain identity match: callers can resume a chain by logical identity
	// without remembering the session id.
	chainID := m.deriveChainID(req, plan)
	existing, err := m.store.FindActiveByChain(ctx, chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		return m.resume(ctx, span, existing, TagResumeChainMatch)
	}

	return m.create(ctx, span, chainID, plan, TagCreateNew)
}

func (m *Manager) deriveChainID(req *command.Request, plan Plan) string {
	if req.ChainID != "" {
		return req.ChainID
	}
	if plan.PromptID != "" {
		return "chain-" + plan.PromptID
	}
	return fmt.Sprintf("chain-%d", time.Now().UnixNano())
}

func (m *Manager) resume(ctx context.Context, span trace.Span, s *Session, tag ResolutionTag) (*Context, error) {
	s.LastActivityAt = time.Now()
	if err := m.store.Put(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.recordResolution(ctx, tag)
	m.publisher.Publish(events.Event{
		Type:      events.TypeSessionResumed,
		SessionID: s.ID,
		ChainID:   s.ChainID,
		Step:      s.CurrentStep,
	})

	m.logger.Info("resumed session",
		zap.String("session_id", s.ID),
		zap.String("chain_id", s.ChainID),
		zap.String("tag", string(tag)),
		zap.Int("current_step", s.CurrentStep),
	)

	return m.sessionContext(s, tag), nil
}

func (m *Manager) create(ctx context.Context, span trace.Span, chainID string, plan Plan, tag ResolutionTag) (*Context, error) {
	now := time.Now()

	totalSteps := plan.TotalSteps
	if totalSteps < 1 {
		totalSteps = 1
	}

	// Review-triggered sessions get a discoverable id.
	id := uuid.New().String()
	if plan.RequiresGates {
		id = fmt.Sprintf("review-%s-%d", plan.PromptID, now.Unix())
	}

	s := &Session{
		ID:          id,
		ChainID:     chainID,
		CurrentStep: 1,
		TotalSteps:  totalSteps,
		RetryState: RetryState{
			MaxAttempts: m.config.DefaultMaxAttempts,
		},
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := m.store.Put(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.recordResolution(ctx, tag)
	m.fireHook(ctx, hooks.HookSessionStart, s)
	m.publisher.Publish(events.Event{
		Type:      events.TypeSessionCreated,
		SessionID: s.ID,
		ChainID:   s.ChainID,
		Step:      s.CurrentStep,
	})

	m.logger.Info("created session",
		zap.String("session_id", s.ID),
		zap.String("chain_id", s.ChainID),
		zap.String("tag", string(tag)),
		zap.Int("total_steps", s.TotalSteps),
	)

	span.SetAttributes(attribute.String("session_id", s.ID))
	return m.sessionContext(s, tag), nil
}

func (m *Manager) sessionContext(s *Session, tag ResolutionTag) *Context {
	return &Context{
		SessionID:        s.ID,
		ChainID:          s.ChainID,
		IsChainExecution: s.TotalSteps > 1,
		CurrentStep:      s.CurrentStep,
		TotalSteps:       s.TotalSteps,
		PendingReview:    s.PendingReview,
		Tag:              tag,
	}
}

// Get retrieves a session by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Get(ctx, sessionID)
}

// Update persists a mutated session, touching its activity time.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	s.LastActivityAt = time.Now()
	return m.store.Put(ctx, s)
}

// AdvanceStep increments the session's current step. CurrentStep never
// decreases; a step past TotalSteps completes the session.
func (m *Manager) AdvanceStep(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.CurrentStep++
	if s.IsComplete() {
		s.Status = StatusCompleted
		m.vars.Clear(s.ChainID)
		m.fireHook(ctx, hooks.HookSessionEnd, s)
		m.publisher.Publish(events.Event{
			Type:      events.TypeSessionCompleted,
			SessionID: s.ID,
			ChainID:   s.ChainID,
			Step:      s.CurrentStep,
		})
	}

	if err := m.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AttachReview sets the session's pending review, replacing any previous one.
func (m *Manager) AttachReview(ctx context.Context, sessionID string, review *PendingGateReview) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	s.PendingReview = review
	if err := m.Update(ctx, s); err != nil {
		return err
	}

	m.fireHook(ctx, hooks.HookReviewPending, s)
	m.publisher.Publish(events.Event{
		Type:      events.TypeReviewPending,
		SessionID: s.ID,
		ChainID:   s.ChainID,
		Step:      s.CurrentStep,
	})
	return nil
}

// ClearReview removes the session's pending review.
func (m *Manager) ClearReview(ctx context.Context, sessionID string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.PendingReview == nil {
		return nil
	}

	s.PendingReview = nil
	if err := m.Update(ctx, s); err != nil {
		return err
	}

	m.fireHook(ctx, hooks.HookReviewResolved, s)
	m.publisher.Publish(events.Event{
		Type:      events.TypeReviewResolved,
		SessionID: s.ID,
		ChainID:   s.ChainID,
	})
	return nil
}

// Abandon marks a session aborted and clears its chain variables.
func (m *Manager) Abandon(ctx context.Context, sessionID string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	s.Status = StatusAborted
	if err := m.Update(ctx, s); err != nil {
		return err
	}

	m.vars.Clear(s.ChainID)
	m.fireHook(ctx, hooks.HookSessionEnd, s)
	m.publisher.Publish(events.Event{
		Type:      events.TypeSessionAborted,
		SessionID: s.ID,
		ChainID:   s.ChainID,
	})

	m.logger.Info("abandoned session",
		zap.String("session_id", s.ID),
		zap.String("chain_id", s.ChainID),
	)
	return nil
}

// fireHook runs lifecycle hooks; handler failures are logged, never fatal.
func (m *Manager) fireHook(ctx context.Context, hookType hooks.HookType, s *Session) {
	err := m.hooks.Execute(ctx, hookType, map[string]interface{}{
		"session_id": s.ID,
		"chain_id":   s.ChainID,
		"step":       s.CurrentStep,
	})
	if err != nil {
		m.logger.Warn("lifecycle hook failed",
			zap.String("hook", string(hookType)),
			zap.Error(err),
		)
	}
}

func (m *Manager) recordResolution(ctx context.Context, tag ResolutionTag) {
	if m.resolveCounter != nil {
		m.resolveCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tag", string(tag)),
		))
	}
}
