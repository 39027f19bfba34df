package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errDispatchFailed = errors.New("broker unreachable")

type submittedJob struct {
	name       string
	args       map[string]string
	dispatchID string
	eta        *time.Time
}

// fakeDispatcher records every Submit/Revoke call and can be configured to
// fail either call, for exercising the EnqueueError path.
type fakeDispatcher struct {
	mu           sync.Mutex
	submitted    []submittedJob
	revoked      []string
	submitErr    error
	revokeErr    error
	failCallNums map[int]bool // 1-indexed Submit call number to fail
	submitCalls  int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{failCallNums: make(map[int]bool)}
}

func (d *fakeDispatcher) Submit(ctx context.Context, name string, args map[string]string, dispatchID string, eta *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitCalls++
	if d.submitErr != nil {
		return d.submitErr
	}
	if d.failCallNums[d.submitCalls] {
		return errDispatchFailed
	}
	d.submitted = append(d.submitted, submittedJob{name: name, args: args, dispatchID: dispatchID, eta: eta})
	return nil
}

func (d *fakeDispatcher) Revoke(ctx context.Context, dispatchID string, terminate bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revokeErr != nil {
		return d.revokeErr
	}
	d.revoked = append(d.revoked, dispatchID)
	return nil
}
