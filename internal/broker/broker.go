// Package broker delivers task payloads to a specific worker's private
// queue and lets the dispatcher await the completion record. Queues are
// Redis lists named after the worker id, so a task never executes on a
// different worker; replies travel on a per-task list.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psantana5/fiobench/pkg/models"
)

// awaitPoll bounds each blocking pop so Await can notice context
// cancellation promptly.
const awaitPoll = time.Second

// TaskFailure reports that a dispatched task ended unrecoverably: the
// worker published a failed completion, the broker store broke, or the
// await deadline passed. Payload carries the original error for
// diagnostics; Completion is set when the worker reported the failure.
type TaskFailure struct {
	TaskID     string
	Queue      string
	Payload    string
	Completion *models.Completion
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s on queue %s failed: %s", e.TaskID, e.Queue, e.Payload)
}

// Broker is an explicitly constructed queue client. It is threaded through
// the components that need it rather than living in a package global.
type Broker struct {
	rdb *redis.Client
}

// New creates a broker on rdb.
func New(rdb *redis.Client) *Broker {
	return &Broker{rdb: rdb}
}

func queueKey(queue string) string { return "fio:queue:" + queue }

func replyKey(taskID string) string { return "fio:reply:" + taskID }

// Dispatch enqueues task for exclusive consumption by the worker bound to
// task.Queue and returns a handle that can be awaited for the completion.
func (b *Broker) Dispatch(ctx context.Context, task models.Task) (*Handle, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	if err := b.rdb.RPush(ctx, queueKey(task.Queue), payload).Err(); err != nil {
		return nil, fmt.Errorf("dispatch to queue %s: %w", task.Queue, err)
	}
	return &Handle{rdb: b.rdb, task: task}, nil
}

// Consume pops the next task from the named queue, blocking up to timeout.
// It returns (nil, nil) when no task arrived in time. Each call hands out
// exactly one task; callers serialize runs by not calling again until the
// previous task finished.
func (b *Broker) Consume(ctx context.Context, queue string, timeout time.Duration) (*models.Task, error) {
	res, err := b.rdb.BLPop(ctx, timeout, queueKey(queue)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", queue, err)
	}
	var task models.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task from queue %s: %w", queue, err)
	}
	return &task, nil
}

// Complete publishes the completion record for task. Completions do not
// expire; the dispatcher owns their lifetime.
func (b *Broker) Complete(ctx context.Context, task models.Task, completion *models.Completion) error {
	payload, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	if err := b.rdb.RPush(ctx, replyKey(task.ID), payload).Err(); err != nil {
		return fmt.Errorf("publish completion for task %s: %w", task.ID, err)
	}
	return nil
}

// Handle awaits the completion of one dispatched task.
type Handle struct {
	rdb  *redis.Client
	task models.Task
}

// Task returns the dispatched task this handle tracks.
func (h *Handle) Task() models.Task { return h.task }

// Await blocks until the worker publishes a completion or ctx expires.
// A failed completion, a broken store and an expired context all surface
// as *TaskFailure.
func (h *Handle) Await(ctx context.Context) (*models.Completion, error) {
	for {
		res, err := h.rdb.BLPop(ctx, awaitPoll, replyKey(h.task.ID)).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, h.failure("await aborted: " + ctx.Err().Error())
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, h.failure("await aborted: " + ctx.Err().Error())
			}
			return nil, h.failure("broker error: " + err.Error())
		}

		var completion models.Completion
		if err := json.Unmarshal([]byte(res[1]), &completion); err != nil {
			return nil, h.failure("decode completion: " + err.Error())
		}
		if completion.Status != models.StatusPassed {
			return nil, &TaskFailure{
				TaskID:     h.task.ID,
				Queue:      h.task.Queue,
				Payload:    completion.Error,
				Completion: &completion,
			}
		}
		return &completion, nil
	}
}

func (h *Handle) failure(payload string) *TaskFailure {
	return &TaskFailure{TaskID: h.task.ID, Queue: h.task.Queue, Payload: payload}
}
