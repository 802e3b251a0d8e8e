// Package orderqueue persists match jobs between order creation and the
// matching worker that consumes them.
package orderqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

var (
	ErrDuplicate = errors.New("job already queued")
	ErrNotFound  = errors.New("job not found")
	ErrClosed    = errors.New("queue is closed")
)

// MatchJob asks the matching engine to run for one newly created order.
type MatchJob struct {
	ID        string        `json:"id"`
	OrderID   uint64        `json:"order_id"`
	Symbol    models.Symbol `json:"symbol"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMatchJob builds a job for order with a fresh id.
func NewMatchJob(order *models.Order) MatchJob {
	return MatchJob{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		CreatedAt: time.Now().UTC(),
	}
}

// Queue stores jobs until they are acknowledged. Jobs that were enqueued
// but never acknowledged are returned by ReplayPending, oldest first.
type Queue interface {
	// Enqueue persists a job. A job id can only be queued once.
	Enqueue(ctx context.Context, job MatchJob) error

	// Acknowledge marks the job as processed and removes it from storage.
	Acknowledge(ctx context.Context, id string) error

	// ReplayPending loads unacknowledged jobs for recovery.
	ReplayPending(ctx context.Context) ([]MatchJob, error)

	// Len returns the number of unacknowledged jobs.
	Len(ctx context.Context) (int, error)

	// Shutdown releases the queue's resources.
	Shutdown(ctx context.Context) error
}
