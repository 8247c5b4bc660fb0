package session

import (
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive accepts further requests.
	StatusActive Status = "active"

	// StatusCompleted is reached when the final step finishes.
	StatusCompleted Status = "completed"

	// StatusAborted is set by an explicit abort or force-restart.
	StatusAborted Status = "aborted"
)

// GateAttempt is one recorded verdict against a session's gates.
type GateAttempt struct {
	GateIDs  []string  `json:"gate_ids"`
	Decision string    `json:"decision"`
	Mode     string    `json:"mode"`
	At       time.Time `json:"at"`
}

// RetryState tracks the retry budget for the session's current review.
type RetryState struct {
	AttemptCount int           `json:"attempt_count"`
	MaxAttempts  int           `json:"max_attempts"`
	GateHistory  []GateAttempt `json:"gate_history,omitempty"`
}

// PendingGateReview is an open review awaiting a verdict. A session owns at
// most one at a time.
type PendingGateReview struct {
	// Prompt is the combined review prompt text shown to the caller.
	Prompt string `json:"prompt"`

	// GateIDs are the gates under review, in evaluation order.
	GateIDs []string `json:"gate_ids"`

	CreatedAt    time.Time `json:"created_at"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`

	// RetryHints are attached to re-issued prompts after a failing verdict.
	RetryHints []string `json:"retry_hints,omitempty"`

	// PreviousResponse snapshots the content under review.
	PreviousResponse string `json:"previous_response,omitempty"`
}

// Session is the persistent record of one chain's progress.
type Session struct {
	ID             string             `json:"id"`
	ChainID        string             `json:"chain_id"`
	CurrentStep    int                `json:"current_step"`
	TotalSteps     int                `json:"total_steps"`
	RetryState     RetryState         `json:"retry_state"`
	PendingReview  *PendingGateReview `json:"pending_review,omitempty"`
	Status         Status             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
}

// IsActive reports whether the session accepts further requests.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// IsComplete reports whether every declared step has finished.
func (s *Session) IsComplete() bool {
	return s.CurrentStep > s.TotalSteps
}

// ResolutionTag records how a session was obtained for a request.
type ResolutionTag string

const (
	TagResumeSessionID  ResolutionTag = "resume-session-id"
	TagResumeChainMatch ResolutionTag = "resume-chain-match"
	TagCreateNew        ResolutionTag = "create-new"
	TagCreateForce      ResolutionTag = "create-force-restart"
)

// Context is the per-request view of the resolved session.
type Context struct {
	SessionID        string             `json:"session_id"`
	ChainID          string             `json:"chain_id"`
	IsChainExecution bool               `json:"is_chain_execution"`
	CurrentStep      int                `json:"current_step"`
	TotalSteps       int                `json:"total_steps"`
	PendingReview    *PendingGateReview `json:"pending_review,omitempty"`
	Tag              ResolutionTag      `json:"tag"`
}

// Plan is the execution plan the pipeline hands to session resolution.
type Plan struct {
	PromptID      string
	IsChain       bool
	TotalSteps    int
	RequiresGates bool
	GateIDs       []string
}
