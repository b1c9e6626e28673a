package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryQueueDueOrdering(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()

	assert.NoError(t, q.Enqueue(ctx, 3, now.Add(-time.Minute)))
	assert.NoError(t, q.Enqueue(ctx, 1, now.Add(-3*time.Minute)))
	assert.NoError(t, q.Enqueue(ctx, 2, now.Add(-2*time.Minute)))
	assert.NoError(t, q.Enqueue(ctx, 4, now.Add(time.Hour)))

	ids, err := q.Due(ctx, now, 10)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueueDueClaimsOnce(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()

	assert.NoError(t, q.Enqueue(ctx, 1, now.Add(-time.Minute)))

	first, err := q.Due(ctx, now, 10)
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := q.Due(ctx, now, 10)
	assert.NoError(t, err)
	assert.Empty(t, second)
}

func TestMemoryQueueLimit(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()

	for i := int64(1); i <= 5; i++ {
		assert.NoError(t, q.Enqueue(ctx, i, now.Add(-time.Duration(i)*time.Second)))
	}

	ids, err := q.Due(ctx, now, 2)
	assert.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 3, q.Len())
}

func TestMemoryQueueReEnqueueMovesDueTime(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()

	assert.NoError(t, q.Enqueue(ctx, 1, now.Add(-time.Minute)))
	assert.NoError(t, q.Enqueue(ctx, 1, now.Add(time.Hour)))

	ids, err := q.Due(ctx, now, 10)
	assert.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueueRemove(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()

	assert.NoError(t, q.Enqueue(ctx, 1, now.Add(-time.Minute)))
	assert.NoError(t, q.Remove(ctx, 1))

	ids, err := q.Due(ctx, now, 10)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}
