// Package natsdispatch implements dispatch.Dispatcher over a NATS core
// connection. Submit publishes a JSON envelope to the dispatch subject with
// a Nats-Msg-Id header set to the dispatch id, so a worker-side JetStream
// consumer (if configured) can deduplicate redelivered messages. Revoke
// publishes a tombstone to a parallel revoke subject; it is a best-effort
// signal, not a guaranteed abort.
package natsdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/logging"
)

const (
	// DispatchSubject carries new work items.
	DispatchSubject = "tasks.dispatch"
	// RevokeSubject carries best-effort cancel/abort signals.
	RevokeSubject = "tasks.revoke"

	// msgIDHeader is read by a JetStream consumer's deduplication window;
	// set on every publish even when the underlying stream is plain core
	// NATS, where it is ignored.
	msgIDHeader = "Nats-Msg-Id"
)

type dispatchEnvelope struct {
	Name       string            `json:"name"`
	Args       map[string]string `json:"args"`
	DispatchID string            `json:"dispatch_id"`
	ETA        *time.Time        `json:"eta,omitempty"`
}

type revokeEnvelope struct {
	DispatchID string `json:"dispatch_id"`
	Terminate  bool   `json:"terminate"`
}

// publisher is the narrow surface Dispatcher depends on, letting tests
// substitute a fake in place of a live *nats.Conn.
type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Dispatcher publishes work items and revoke signals over a shared NATS
// connection.
type Dispatcher struct {
	conn publisher
	log  logging.Logger
}

// New wraps an already-connected NATS client.
func New(conn *nats.Conn, log logging.Logger) *Dispatcher {
	return &Dispatcher{conn: conn, log: logging.OrNop(log)}
}

// newWithPublisher is the test seam: it accepts any publisher, including a
// fake that records published messages without a live NATS server.
func newWithPublisher(conn publisher, log logging.Logger) *Dispatcher {
	return &Dispatcher{conn: conn, log: logging.OrNop(log)}
}

// Submit publishes a dispatchEnvelope to DispatchSubject.
func (d *Dispatcher) Submit(ctx context.Context, name string, args map[string]string, dispatchID string, eta *time.Time) error {
	payload, err := json.Marshal(dispatchEnvelope{Name: name, Args: args, DispatchID: dispatchID, ETA: eta})
	if err != nil {
		return domainerrors.NewEnqueueFailure(args["task_id"], fmt.Errorf("marshal dispatch envelope: %w", err))
	}

	msg := nats.NewMsg(DispatchSubject)
	msg.Header.Set(msgIDHeader, dispatchID)
	msg.Data = payload

	if err := d.conn.PublishMsg(msg); err != nil {
		return domainerrors.NewEnqueueFailure(args["task_id"], fmt.Errorf("publish to %s: %w", DispatchSubject, err))
	}
	d.log.Debug("dispatch submitted", "dispatch_id", dispatchID, "subject", DispatchSubject)
	return nil
}

// Revoke publishes a tombstone to RevokeSubject. Failures are returned to
// the caller, who is expected (per the service-layer contract) to log and
// swallow them rather than fail the surrounding cancel request.
func (d *Dispatcher) Revoke(ctx context.Context, dispatchID string, terminate bool) error {
	payload, err := json.Marshal(revokeEnvelope{DispatchID: dispatchID, Terminate: terminate})
	if err != nil {
		return fmt.Errorf("marshal revoke envelope: %w", err)
	}

	msg := nats.NewMsg(RevokeSubject)
	msg.Header.Set(msgIDHeader, dispatchID)
	msg.Data = payload

	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", RevokeSubject, err)
	}
	d.log.Debug("revoke submitted", "dispatch_id", dispatchID, "terminate", terminate)
	return nil
}
