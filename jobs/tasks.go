package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogIntegritySweep scans the catalog for orphaned bindings.
	TaskCatalogIntegritySweep = "catalog:integrity_sweep"
)

// NewIntegritySweepTask constructs an Asynq task.
func NewIntegritySweepTask() *asynq.Task {
	return asynq.NewTask(TaskCatalogIntegritySweep, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueIntegritySweep schedules a catalog integrity sweep. Repeated calls
// coalesce on a shared task id while one sweep is still pending.
func (c *Client) EnqueueIntegritySweep(ctx context.Context) error {
	_, err := c.client.EnqueueContext(ctx, NewIntegritySweepTask(),
		asynq.Queue(QueueDefault), asynq.TaskID("catalog-integrity-sweep"))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
