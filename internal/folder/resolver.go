// Package folder resolves human-named folder paths to remote folder ids,
// creating missing levels on the way down.
package folder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/lock"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/metrics"
)

// SegmentError reports the path level at which resolution stopped.
type SegmentError struct {
	Index    int
	Segment  string
	ParentID string
	Err      error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("folder segment %d (%q) under %s: %v", e.Index, e.Segment, e.ParentID, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Resolver implements get-or-create over a folder path.
//
// Concurrent callers in one process asking for the same (parent, name) share
// a single lookup. Across processes, duplicates are only prevented when a
// Locker is configured; without one, two processes can still create sibling
// folders with the same name.
type Resolver struct {
	group  singleflight.Group
	locker lock.Locker
	owner  string
	logger *zap.Logger
}

// NewResolver creates a Resolver. locker may be nil.
func NewResolver(locker lock.Locker, logger *zap.Logger) *Resolver {
	return &Resolver{
		locker: locker,
		owner:  uuid.NewString(),
		logger: logging.OrGlobal(logger),
	}
}

// Ensure walks segments under parentID and returns the id of the deepest
// folder. Empty segments are skipped; the rest are sanitized before lookup.
func (r *Resolver) Ensure(ctx context.Context, store adapter.Store, parentID string, segments []string) (string, error) {
	if parentID == "" {
		return "", adapter.Malformed("parent folder id")
	}

	current := parentID
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		name := Sanitize(seg)

		id, err := r.resolve(ctx, store, current, name)
		if err != nil {
			return "", &SegmentError{Index: i, Segment: name, ParentID: current, Err: err}
		}
		current = id
	}
	return current, nil
}

func (r *Resolver) resolve(ctx context.Context, store adapter.Store, parentID, name string) (string, error) {
	key := parentID + "/" + name
	for {
		ch := r.group.DoChan(key, func() (any, error) {
			return r.getOrCreate(ctx, store, parentID, name)
		})

		select {
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(string), nil
			}
			// The flight ran on another caller's context. If that one went
			// away while ours is live, run it again.
			if res.Shared && ctx.Err() == nil && isCancellation(res.Err) {
				continue
			}
			return "", res.Err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Resolver) getOrCreate(ctx context.Context, store adapter.Store, parentID, name string) (string, error) {
	if r.locker != nil {
		key := parentID + "/" + name
		if _, err := lock.AcquireWait(ctx, r.locker, key, r.owner); err != nil {
			return "", fmt.Errorf("acquire folder lease: %w", err)
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), key, r.owner); err != nil {
				r.logger.Warn("folder lease release failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	found, err := store.FindFolder(ctx, parentID, name)
	if err == nil {
		return found.ID, nil
	}
	if !errors.Is(err, adapter.ErrNotFound) {
		return "", fmt.Errorf("find: %w", err)
	}

	created, err := store.CreateFolder(ctx, parentID, name)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	metrics.RecordFolderCreated()
	logging.WithContext(ctx, r.logger).Info("folder created",
		zap.String("name", name),
		zap.String("parent_id", parentID),
		zap.String("folder_id", created.ID),
	)
	return created.ID, nil
}
