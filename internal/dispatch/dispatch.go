// Package dispatch declares the contract the service layer uses to hand
// work to an external asynchronous worker broker.
package dispatch

import (
	"context"
	"time"
)

// Dispatcher abstracts over any job broker that supports caller-assigned
// job ids, optional ETA delivery, and a revoke/abort primitive. The
// concrete natsdispatch package is the only production implementation.
type Dispatcher interface {
	// Submit hands one work item to the broker. name identifies the job
	// kind (e.g. "ExecuteLLM"); args carries the task id and any other
	// payload the worker runtime needs; dispatchID is the caller-assigned
	// correlation id the worker callback will echo back; eta, if set,
	// requests delayed delivery.
	Submit(ctx context.Context, name string, args map[string]string, dispatchID string, eta *time.Time) error

	// Revoke best-effort cancels a previously submitted item. terminate
	// requests the broker forcibly kill an in-flight job rather than just
	// withdraw a not-yet-started one; failures are logged and swallowed by
	// the caller, never surfaced to the end user.
	Revoke(ctx context.Context, dispatchID string, terminate bool) error
}
