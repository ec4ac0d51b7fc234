// Package retry decides what happens to a delivery task after a failed
// attempt: reschedule with exponential backoff, or terminate.
package retry

import (
	"time"

	"delivery-pipeline/internal/models"
)

// JitterFunc optionally perturbs a computed backoff. The default policy
// applies none; the hook exists so jitter can be added deliberately
// rather than baked in.
type JitterFunc func(base time.Duration) time.Duration

// Decision is the outcome of applying the policy to a failed attempt.
type Decision struct {
	Terminal         bool
	Status           models.TaskStatus
	Attempts         int
	NextScheduledFor time.Time
}

// Policy computes retry decisions. The zero value is the production
// policy: deterministic base-2 exponential backoff, no jitter.
type Policy struct {
	Jitter JitterFunc
}

// Next applies the policy to a task that just failed its attempt.
// attempts is the count before this failure; the returned Attempts always
// includes it. Backoff is 2^attempts minutes of the incremented count, so
// the retry is always scheduled strictly in the future.
func (p Policy) Next(attempts, maxAttempts int, now time.Time) Decision {
	next := attempts + 1
	if next >= maxAttempts {
		return Decision{
			Terminal: true,
			Status:   models.TaskFailed,
			Attempts: next,
		}
	}

	backoff := time.Duration(1<<uint(next)) * time.Minute
	if p.Jitter != nil {
		backoff = p.Jitter(backoff)
	}

	return Decision{
		Status:           models.TaskPending,
		Attempts:         next,
		NextScheduledFor: now.Add(backoff),
	}
}
