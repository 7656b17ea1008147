package adapter

import (
	"context"
)

// StoreProvider opens a Store bound to the current delegated credential.
type StoreProvider interface {
	// Store returns ErrNotAuthenticated when no usable credential exists.
	Store(ctx context.Context) (Store, error)
}
