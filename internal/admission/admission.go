// Package admission bounds how many sandbox invocations run at once.
// A process-wide weighted semaphore caps server-wide concurrency; the
// per-participant in-flight bound lives with the contest registry because
// it must be checked under the registry lock.
package admission

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is used when the configured capacity is not positive.
const DefaultCapacity = 4

// Controller serializes access to the global judging capacity.
// Acquisition blocks until a slot frees up rather than failing fast.
type Controller struct {
	slots    *semaphore.Weighted
	capacity int64
}

// NewController creates a controller with the given capacity.
func NewController(capacity int64) *Controller {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Controller{
		slots:    semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Capacity returns the configured slot count.
func (c *Controller) Capacity() int64 {
	return c.capacity
}

// Acquire blocks until a judging slot is available or ctx is done.
func (c *Controller) Acquire(ctx context.Context) error {
	return c.slots.Acquire(ctx, 1)
}

// Release returns a previously acquired slot. Must be called exactly once
// per successful Acquire.
func (c *Controller) Release() {
	c.slots.Release(1)
}
