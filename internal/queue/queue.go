package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ExportTask is the unit of work handed from reconciliation to the
// export workers. It must be JSON-serializable; tokens are never part
// of a task, only record identity.
type ExportTask struct {
	TaskID       string `json:"task_id"`
	RecordID     string `json:"record_id"`
	EntryID      int64  `json:"entry_id"`
	LocalVersion int    `json:"local_version"`
}

// RedisQueue is a Redis list working as a FIFO export queue. Producers
// LPUSH, workers BRPOP; a task is delivered to exactly one worker.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given key. Key may be empty.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "docmirror:export_tasks"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t *ExportTask) error {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task. Returns nil with no
// error when the queue stays empty.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*ExportTask, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue task: unexpected reply length %d", len(res))
	}
	var t ExportTask
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// Len reports the number of queued tasks.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
