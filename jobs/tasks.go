// Package jobs holds the background task definitions and the Asynq worker
// that runs them: the periodic integrity scan and the aggregate refresh.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan walks all records looking for period references that
	// no longer match the owning account.
	TaskIntegrityScan = "ledger:integrity_scan"
	// TaskAggregatesRefresh re-derives the cached aggregates of one period,
	// or of every period when no id is given.
	TaskAggregatesRefresh = "ledger:aggregates_refresh"
)

// AggregatesRefreshPayload selects what to refresh.
type AggregatesRefreshPayload struct {
	// PeriodID limits the refresh to one period; zero means all periods.
	PeriodID int64 `json:"period_id"`
}

// NewIntegrityScanTask constructs the integrity scan task.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskIntegrityScan, nil)
}

// NewAggregatesRefreshTask constructs an aggregate refresh task.
func NewAggregatesRefreshTask(payload AggregatesRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAggregatesRefresh, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueIntegrityScan queues an integrity scan.
func (c *Client) EnqueueIntegrityScan(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewIntegrityScanTask(), asynq.Queue(QueueDefault))
}

// EnqueueAggregatesRefresh queues an aggregate refresh.
func (c *Client) EnqueueAggregatesRefresh(ctx context.Context, payload AggregatesRefreshPayload) (*asynq.TaskInfo, error) {
	task, err := NewAggregatesRefreshTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
