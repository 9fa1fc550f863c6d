package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

const taskKeyPrefix = "openetl:task:"

// hash fields
const (
	fieldName        = "name"
	fieldPayload     = "payload"
	fieldStatus      = "status"
	fieldResult      = "result"
	fieldError       = "error"
	fieldAttempts    = "attempts"
	fieldSubmittedAt = "submittedAt"
	fieldStartedAt   = "startedAt"
	fieldFinishedAt  = "finishedAt"
	fieldDeliveredAt = "deliveredAt"
)

// requeueScript moves id from the processing list back to the consuming end of the queue
// only if it is still in the processing list.
var requeueScript = redis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// RedisQueue pushes task ids onto the list Name and keeps each task in the hash
// openetl:task:<id>. Finished tasks expire after ResultTTL when it is positive.
// Next moves an id atomically onto the list <Name>:processing where it stays until
// Complete, so a worker that dies mid-task leaves the id behind for Requeue.
type RedisQueue struct {
	Client    *redis.Client
	Name      string
	ResultTTL time.Duration
}

func NewRedisQueue(client *redis.Client, name string, resultTTL time.Duration) *RedisQueue {
	return &RedisQueue{Client: client, Name: name, ResultTTL: resultTTL}
}

// NewRedisClient connects to Redis and checks the connection with a ping.
func NewRedisClient(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %v", addr)
	}
	return client, nil
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func (q *RedisQueue) processingList() string {
	return q.Name + ":processing"
}

func (q *RedisQueue) Submit(ctx context.Context, name string, payload interface{}) (string, error) {
	b, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	id := xid.New().String()
	_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey(id), map[string]interface{}{
			fieldName:        name,
			fieldPayload:     string(b),
			fieldStatus:      string(StatusPending),
			fieldAttempts:    0,
			fieldSubmittedAt: formatTime(time.Now()),
		})
		pipe.LPush(ctx, q.Name, id)
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to submit task %q", name)
	}
	return id, nil
}

func (q *RedisQueue) Status(ctx context.Context, id string) (Result, error) {
	h, err := q.hash(ctx, id)
	if err != nil {
		return Result{}, err
	}
	r := Result{
		ID:          id,
		Name:        h[fieldName],
		Status:      Status(h[fieldStatus]),
		Error:       h[fieldError],
		SubmittedAt: parseTime(h[fieldSubmittedAt]),
		StartedAt:   parseTime(h[fieldStartedAt]),
		FinishedAt:  parseTime(h[fieldFinishedAt]),
	}
	if v := h[fieldResult]; v != "" {
		r.Result = json.RawMessage(v)
	}
	if r.Attempts, err = strconv.Atoi(h[fieldAttempts]); err != nil {
		return Result{}, fmt.Errorf("task %v has a bad attempt count %q", id, h[fieldAttempts])
	}
	return r, nil
}

func (q *RedisQueue) Next(ctx context.Context, timeout time.Duration) (*Task, error) {
	id, err := q.Client.BLMove(ctx, q.Name, q.processingList(), "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(err, "unable to read from queue %q", q.Name)
	}
	h, err := q.hash(ctx, id)
	if err == ErrTaskNotFound {
		q.Client.LRem(ctx, q.processingList(), 1, id)
		return nil, err
	} else if err != nil {
		return nil, err
	}
	if err = q.Client.HSet(ctx, taskKey(id), fieldDeliveredAt, formatTime(time.Now())).Err(); err != nil {
		return nil, errors.Wrapf(err, "unable to mark task %v delivered", id)
	}
	return &Task{
		ID:          id,
		Name:        h[fieldName],
		Payload:     json.RawMessage(h[fieldPayload]),
		SubmittedAt: parseTime(h[fieldSubmittedAt]),
	}, nil
}

func (q *RedisQueue) Start(ctx context.Context, id string) error {
	if _, err := q.hash(ctx, id); err != nil {
		return err
	}
	attempt, err := q.Client.HIncrBy(ctx, taskKey(id), fieldAttempts, 1).Result()
	if err != nil {
		return errors.Wrapf(err, "unable to start task %v", id)
	}
	fields := map[string]interface{}{
		fieldStatus:      string(startedStatus(int(attempt))),
		fieldDeliveredAt: formatTime(time.Now()),
	}
	if attempt == 1 {
		fields[fieldStartedAt] = formatTime(time.Now())
	}
	return errors.Wrapf(q.Client.HSet(ctx, taskKey(id), fields).Err(), "unable to start task %v", id)
}

func (q *RedisQueue) Complete(ctx context.Context, id string, result interface{}, taskErr error) error {
	if _, err := q.hash(ctx, id); err != nil {
		return err
	}
	status, errTxt := completedStatus(taskErr)
	fields := map[string]interface{}{
		fieldStatus:     string(status),
		fieldError:      errTxt,
		fieldFinishedAt: formatTime(time.Now()),
	}
	if taskErr == nil && result != nil {
		b, err := marshalPayload(result)
		if err != nil {
			return err
		}
		fields[fieldResult] = string(b)
	}
	_, err := q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey(id), fields)
		pipe.HDel(ctx, taskKey(id), fieldPayload, fieldDeliveredAt)
		if q.ResultTTL > 0 {
			pipe.Expire(ctx, taskKey(id), q.ResultTTL)
		}
		pipe.LRem(ctx, q.processingList(), 1, id)
		return nil
	})
	return errors.Wrapf(err, "unable to complete task %v", id)
}

// Requeue puts tasks back on the queue that were delivered, or last started, more than
// staleAfter ago and never completed. Ids of finished or expired tasks are dropped from the
// processing list. It returns the number of tasks requeued.
func (q *RedisQueue) Requeue(ctx context.Context, staleAfter time.Duration) (int, error) {
	ids, err := q.Client.LRange(ctx, q.processingList(), 0, -1).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "unable to read processing list of queue %q", q.Name)
	}
	n := 0
	for _, id := range ids {
		vals, err := q.Client.HMGet(ctx, taskKey(id), fieldStatus, fieldDeliveredAt).Result()
		if err != nil {
			return n, errors.Wrapf(err, "unable to read task %v", id)
		}
		status, _ := vals[0].(string)
		deliveredAt, _ := vals[1].(string)
		if status == "" || Status(status).IsFinished() {
			if err = q.Client.LRem(ctx, q.processingList(), 1, id).Err(); err != nil {
				return n, errors.Wrapf(err, "unable to drop task %v from the processing list", id)
			}
			continue
		}
		if time.Since(parseTime(deliveredAt)) < staleAfter {
			continue
		}
		moved, err := requeueScript.Run(ctx, q.Client, []string{q.processingList(), q.Name}, id).Int()
		if err != nil {
			return n, errors.Wrapf(err, "unable to requeue task %v", id)
		}
		n += moved
	}
	return n, nil
}

func (q *RedisQueue) hash(ctx context.Context, id string) (map[string]string, error) {
	h, err := q.Client.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read task %v", id)
	}
	if len(h) == 0 {
		return nil, ErrTaskNotFound
	}
	return h, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
