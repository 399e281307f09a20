package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	s := New()
	ctx := context.Background()

	h, err := s.Acquire(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", h.UserID)
	assert.Equal(t, "t1", h.TaskID)

	require.NoError(t, s.Release(ctx, "u1", "t1"))

	h2, err := s.Acquire(ctx, "u1", "t2")
	require.NoError(t, err)
	assert.Equal(t, "t2", h2.TaskID)
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "u1", "t1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, err := s.Acquire(ctx, "u1", "t2")
		require.NoError(t, err)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while t1 holds the handle")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Release(ctx, "u1", "t1"))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "u1", "t1")
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(cctx, "u1", "t2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "u1", "t1")
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, "u1", "t2"))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(cctx, "u1", "t3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseUnknownUserIsNoop(t *testing.T) {
	s := New()
	assert.NoError(t, s.Release(context.Background(), "ghost", "t1"))
}

func TestIndependentUsersDoNotBlockEachOther(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "u1", "t1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, err := s.Acquire(ctx, "u2", "t2")
		require.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different user's handle should not block on u1")
	}
}
