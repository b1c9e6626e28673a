// internal/notifications/queue.go

package notifications

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue holds pending notification IDs ordered by due time. The sweep
// pops entries whose due time has passed; a rescheduled notification is
// simply re-enqueued with a later due time.
type Queue interface {
	Enqueue(ctx context.Context, notificationID int64, dueAt time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]int64, error)
	Remove(ctx context.Context, notificationID int64) error
}

const queueKey = "notifications:queue"

// RedisQueue backs the queue with a Redis sorted set scored by due time
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a Redis-backed notification queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, notificationID int64, dueAt time.Time) error {
	err := q.client.ZAdd(ctx, queueKey, &redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: strconv.FormatInt(notificationID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification %d: %w", notificationID, err)
	}
	return nil
}

// claimDueScript reads and removes due members in a single script, so
// two sweepers never claim the same notification.
var claimDueScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
if #members > 0 then
	redis.call('ZREM', KEYS[1], unpack(members))
end
return members
`)

// Due atomically claims up to limit entries whose due time is <= now
func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	res, err := claimDueScript.Run(ctx, q.client, []string{queueKey},
		now.Unix(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim due notifications: %w", err)
	}

	members, ok := res.([]interface{})
	if !ok || len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		s, ok := m.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *RedisQueue) Remove(ctx context.Context, notificationID int64) error {
	return q.client.ZRem(ctx, queueKey, strconv.FormatInt(notificationID, 10)).Err()
}

// MemoryQueue is an in-process queue for tests and single-node deployments
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[int64]time.Time
}

// NewMemoryQueue creates an in-memory notification queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[int64]time.Time)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, notificationID int64, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[notificationID] = dueAt
	return nil
}

func (q *MemoryQueue) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type entry struct {
		id  int64
		due time.Time
	}
	var due []entry
	for id, at := range q.entries {
		if !at.After(now) {
			due = append(due, entry{id: id, due: at})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]int64, len(due))
	for i, e := range due {
		ids[i] = e.id
		delete(q.entries, e.id)
	}
	return ids, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, notificationID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, notificationID)
	return nil
}

// Len reports queued entries, used by tests and the scheduler gauge
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
