// Package events publishes session lifecycle events for external consumers.
//
// Publishing is best-effort: a failed publish is logged and never fails the
// request that produced it.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event is one session lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	ChainID   string    `json:"chain_id,omitempty"`
	Step      int       `json:"step,omitempty"`
	At        time.Time `json:"at"`
}

// Event types published on promptd.session.* subjects.
const (
	TypeSessionCreated   = "session.created"
	TypeSessionResumed   = "session.resumed"
	TypeSessionCompleted = "session.completed"
	TypeSessionAborted   = "session.aborted"
	TypeReviewPending    = "review.pending"
	TypeReviewResolved   = "review.resolved"
)

// Publisher emits lifecycle events. Implementations must be nil-safe no-ops
// when unconfigured.
type Publisher interface {
	Publish(event Event)
	Close()
}

// NATSPublisher publishes events to a NATS subject hierarchy.
type NATSPublisher struct {
	conn    *nats.Conn
	prefix  string
	logger  *zap.Logger
	ownConn bool
}

// NewNATSPublisher connects to url and publishes under prefix
// (default "promptd").
func NewNATSPublisher(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = "promptd"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		prefix:  prefix,
		logger:  logger,
		ownConn: true,
	}, nil
}

// Publish emits one event. Failures are logged, never returned.
func (p *NATSPublisher) Publish(event Event) {
	if p == nil || p.conn == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}

	subject := p.prefix + "." + event.Type
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil || !p.ownConn {
		return
	}
	_ = p.conn.Drain()
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}

// Close implements Publisher.
func (NopPublisher) Close() {}
