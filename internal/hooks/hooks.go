// Package hooks provides lifecycle hook management for promptd
package hooks

import (
	"context"
	"errors"
	"fmt"
)

// HookType represents different lifecycle hooks
type HookType string

const (
	// HookSessionStart is called when a new chain session is created
	HookSessionStart HookType = "session_start"

	// HookSessionEnd is called when a session completes or is abandoned
	HookSessionEnd HookType = "session_end"

	// HookReviewPending is called when a gate review is attached to a session
	HookReviewPending HookType = "review_pending"

	// HookReviewResolved is called when a pending review is cleared
	HookReviewResolved HookType = "review_resolved"
)

// HookHandler is a function that handles a hook event
type HookHandler func(ctx context.Context, data map[string]interface{}) error

// HookManager manages lifecycle hooks
type HookManager struct {
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager
func NewHookManager() *HookManager {
	return &HookManager{
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute executes all handlers for the given hook type. A failing handler
// never stops later handlers; all failures are joined into the returned error.
func (h *HookManager) Execute(ctx context.Context, hookType HookType, data map[string]interface{}) error {
	handlers, ok := h.handlers[hookType]
	if !ok {
		// No handlers registered - not an error
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("hook %s failed: %w", hookType, err))
		}
	}

	return errors.Join(errs...)
}
