// Package session tracks the Orchestrator's per-user browser session
// handles: at most one active handle per user_id, acquisition serialised by
// a per-user mutex, released when the owning task terminates.
package session

import (
	"context"
	"time"
)

// Handle represents an acquired browser session slot for a user. It carries
// no browser-automation state itself — that lives in whatever out-of-scope
// tool provider the handle is handed to.
type Handle struct {
	UserID     string
	TaskID     string
	AcquiredAt time.Time
}

// Store serialises acquisition of a single browser session handle per
// user_id.
//
// Contract:
//   - Acquire blocks (respecting ctx) until any handle currently held for
//     userID is released, then grants a new one to taskID.
//   - Release is idempotent: releasing a handle that was never acquired, or
//     was already released, is a no-op.
//   - A task must release the handle it acquired once it terminates; the
//     Store does not itself observe task lifecycle.
type Store interface {
	// Acquire blocks until userID's handle is free, then grants it to
	// taskID.
	Acquire(ctx context.Context, userID, taskID string) (Handle, error)
	// Release frees userID's handle if it is currently held by taskID.
	Release(ctx context.Context, userID, taskID string) error
}
