package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecuteRunsLinearChain(t *testing.T) {
	w := New()
	var order []string

	require.NoError(t, w.AddNode(&Node{
		ID: "a",
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			order = append(order, "a")
			return 1, nil
		},
	}))
	require.NoError(t, w.AddNode(&Node{
		ID:           "b",
		Dependencies: []string{"a"},
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			require.Equal(t, 1, deps["a"])
			order = append(order, "b")
			return 2, nil
		},
	}))

	status, err := w.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestAddNodeRejectsCycle(t *testing.T) {
	w := New()
	noop := func(ctx context.Context, deps map[string]any, shared any) (any, error) { return nil, nil }

	require.NoError(t, w.AddNode(&Node{ID: "a", Dependencies: []string{"b"}, Task: noop}))
	err := w.AddNode(&Node{ID: "b", Dependencies: []string{"a"}, Task: noop})
	require.ErrorIs(t, err, ErrCycle)
}

func TestIndependentNodesRunConcurrently(t *testing.T) {
	w := New()
	var running int32
	var maxConcurrent int32

	track := func(ctx context.Context, deps map[string]any, shared any) (any, error) {
		cur := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&maxConcurrent)
			if cur <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	require.NoError(t, w.AddNode(&Node{ID: "a", Task: track}))
	require.NoError(t, w.AddNode(&Node{ID: "b", Task: track}))

	status, err := w.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)
	require.EqualValues(t, 2, atomic.LoadInt32(&maxConcurrent))
}

func TestNodeRetriesThenFailsAfterMaxRetries(t *testing.T) {
	w := New()
	w.RetryBackoffUnit = time.Millisecond
	var attempts int32

	require.NoError(t, w.AddNode(&Node{
		ID:         "flaky",
		MaxRetries: 2,
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, errors.New("boom")
		},
	}))

	status, err := w.Execute(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, StatusFailed, status)
	require.EqualValues(t, 3, attempts) // initial + 2 retries

	snap, ok := w.Snapshot("flaky")
	require.True(t, ok)
	require.Equal(t, Failed, snap.Status)
}

func TestNodeRetrySucceedsBeforeExhausted(t *testing.T) {
	w := New()
	w.RetryBackoffUnit = time.Millisecond
	var attempts int32

	require.NoError(t, w.AddNode(&Node{
		ID:         "eventually-ok",
		MaxRetries: 3,
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 2 {
				return nil, errors.New("not yet")
			}
			return "done", nil
		},
	}))

	status, err := w.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)

	snap, _ := w.Snapshot("eventually-ok")
	require.Equal(t, "done", snap.Result)
}

func TestWorkflowFailedWhenAnyNodeFails(t *testing.T) {
	w := New()
	require.NoError(t, w.AddNode(&Node{
		ID: "ok",
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			return "fine", nil
		},
	}))
	require.NoError(t, w.AddNode(&Node{
		ID: "bad",
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			return nil, errors.New("boom")
		},
	}))

	status, err := w.Execute(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, StatusFailed, status)
}

func TestSharedContextPassedToEveryNode(t *testing.T) {
	w := New()
	type ctxVal struct{ RunID string }
	var seen []string

	require.NoError(t, w.AddNode(&Node{
		ID: "a",
		Task: func(ctx context.Context, deps map[string]any, shared any) (any, error) {
			seen = append(seen, shared.(ctxVal).RunID)
			return nil, nil
		},
	}))

	_, err := w.Execute(context.Background(), ctxVal{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"run-1"}, seen)
}
