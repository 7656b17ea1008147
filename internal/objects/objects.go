// Package objects implements single-object mutations on the remote store.
package objects

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
)

// Service runs copy, move and delete against a Store.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logging.OrGlobal(logger)}
}

// Copy copies fileID into targetFolderID. An empty newName keeps the
// store's default name for the copy.
func (s *Service) Copy(ctx context.Context, store adapter.Store, fileID, targetFolderID, newName string) (*model.ObjectRef, error) {
	if fileID == "" {
		return nil, fmt.Errorf("copy: %w", adapter.Malformed("file id"))
	}
	if targetFolderID == "" {
		return nil, fmt.Errorf("copy: %w", adapter.Malformed("target folder id"))
	}

	ref, err := store.Copy(ctx, fileID, targetFolderID, newName)
	if err != nil {
		return nil, fmt.Errorf("copy: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("file copied",
		zap.String("source_id", fileID),
		zap.String("copy_id", ref.ID),
		zap.String("target_id", targetFolderID),
	)
	return ref, nil
}

// Move makes targetFolderID the only parent of fileID.
//
// It reads the current parents, then issues one reparent call that adds the
// target and removes the rest. The two steps are not atomic: a parent added
// by someone else in between survives. The reparent response is returned
// as-is and not re-verified.
func (s *Service) Move(ctx context.Context, store adapter.Store, fileID, targetFolderID string) (*model.ObjectRef, error) {
	if fileID == "" {
		return nil, fmt.Errorf("move: %w", adapter.Malformed("file id"))
	}
	if targetFolderID == "" {
		return nil, fmt.Errorf("move: %w", adapter.Malformed("target folder id"))
	}

	current, err := store.GetObject(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("move: read parents: %w", err)
	}

	remove := make([]string, 0, len(current.Parents))
	for _, p := range current.Parents {
		if p != targetFolderID {
			remove = append(remove, p)
		}
	}

	ref, err := store.Reparent(ctx, fileID, targetFolderID, remove)
	if err != nil {
		return nil, fmt.Errorf("move: reparent: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("file moved",
		zap.String("file_id", fileID),
		zap.String("target_id", targetFolderID),
		zap.Strings("removed_parents", remove),
	)
	return ref, nil
}

// Delete permanently deletes fileID. It is never retried.
func (s *Service) Delete(ctx context.Context, store adapter.Store, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("delete: %w", adapter.Malformed("file id"))
	}
	if err := store.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("file deleted", zap.String("file_id", fileID))
	return nil
}
