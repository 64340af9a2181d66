package queue

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(highCap, lowCap int) *Queue {
	return New(Config{
		HighCapacity: highCap,
		LowCapacity:  lowCap,
		PollInterval: 10 * time.Millisecond,
	}, zerolog.Nop())
}

func TestQueue_HighBeforeLow(t *testing.T) {
	q := newTestQueue(4, 4)

	require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: "low1"}))
	require.NoError(t, q.Put(&Item{Priority: PriorityHigh, Input: "high1"}))
	require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: "low2"}))

	item, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "high1", item.Input)

	item, err = q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "low1", item.Input, "FIFO within the low tier")
}

func TestQueue_LowTierOverflowEvictsOldest(t *testing.T) {
	q := newTestQueue(4, 3)

	for _, in := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: in}))
	}

	_, low := q.Len()
	assert.Equal(t, 3, low)

	var got []string
	for i := 0; i < 3; i++ {
		item := q.TryNext()
		require.NotNil(t, item)
		got = append(got, item.Input)
	}
	assert.Equal(t, []string{"b", "c", "d"}, got, "oldest item evicted, order preserved")
}

func TestQueue_HighTierOverflowEvictsOldest(t *testing.T) {
	q := newTestQueue(2, 2)

	require.NoError(t, q.Put(&Item{Priority: PriorityHigh, Input: "h1"}))
	require.NoError(t, q.Put(&Item{Priority: PriorityHigh, Input: "h2"}))
	require.NoError(t, q.Put(&Item{Priority: PriorityHigh, Input: "h3"}))

	high, _ := q.Len()
	assert.Equal(t, 2, high)
	assert.Equal(t, "h2", q.TryNext().Input)
}

func TestQueue_NextBlocksUntilPut(t *testing.T) {
	q := newTestQueue(4, 4)

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.Put(&Item{Priority: PriorityLow, Input: "late"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", item.Input)
}

func TestQueue_NextHonorsContextCancellation(t *testing.T) {
	q := newTestQueue(4, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseDrainsThenErrs(t *testing.T) {
	q := newTestQueue(4, 4)

	require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: "pending"}))
	q.Close()

	assert.ErrorIs(t, q.Put(&Item{Priority: PriorityLow}), ErrClosed)

	item, err := q.Next(context.Background())
	require.NoError(t, err, "pending items stay consumable after Close")
	assert.Equal(t, "pending", item.Input)

	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_ResizeEvictsOverflow(t *testing.T) {
	q := newTestQueue(4, 4)

	for _, in := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: in}))
	}

	q.Resize(4, 2)

	_, low := q.Len()
	assert.Equal(t, 2, low)
	assert.Equal(t, "c", q.TryNext().Input, "oldest items evicted on shrink")

	// Non-positive values leave tiers alone.
	q.Resize(0, -1)
	require.NoError(t, q.Put(&Item{Priority: PriorityLow, Input: "e"}))
	_, low = q.Len()
	assert.Equal(t, 2, low)
}

func TestQueue_PutAssignsIDAndTimestamp(t *testing.T) {
	q := newTestQueue(4, 4)

	item := &Item{Priority: PriorityHigh, Input: "x"}
	require.NoError(t, q.Put(item))

	assert.NotEmpty(t, item.ID)
	assert.False(t, item.EnqueuedAt.IsZero())
}
