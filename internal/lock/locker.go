// Package lock provides short advisory leases on string keys. The folder
// resolver takes one around get-or-create so that separate processes do
// not create sibling duplicates.
package lock

import (
	"context"
	"errors"
	"time"

	gax "github.com/googleapis/gax-go/v2"
)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 30 * time.Second

var (
	// ErrHeld is returned by Acquire when another owner holds a live lease.
	ErrHeld = errors.New("lease held by another owner")

	// ErrNotHeld is returned by Release when owner does not hold the lease.
	ErrNotHeld = errors.New("lease not held")
)

// Lease is a granted lock on Key.
type Lease struct {
	Key       string `dynamodbav:"lock_key"`
	Owner     string `dynamodbav:"owner"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // unix seconds; also the table TTL attribute
}

// Locker manages leases.
type Locker interface {
	// Acquire grants a lease if none exists, the existing one expired, or
	// owner already holds it. Otherwise it returns ErrHeld.
	Acquire(ctx context.Context, key, owner string) (*Lease, error)

	// Release drops owner's lease on key.
	Release(ctx context.Context, key, owner string) error
}

// sleep is replaced in tests.
var sleep = gax.Sleep

// AcquireWait polls Acquire with exponential backoff until the lease is
// granted, a non-contention error occurs, or ctx ends.
func AcquireWait(ctx context.Context, l Locker, key, owner string) (*Lease, error) {
	bo := gax.Backoff{
		Initial:    50 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	}
	for {
		lease, err := l.Acquire(ctx, key, owner)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, err
		}
		if err := sleep(ctx, bo.Pause()); err != nil {
			return nil, err
		}
	}
}
