package adapter

import (
	"context"
	"io"

	"github.com/jun/vaultgw/internal/model"
)

// FolderMIMEType marks folders in the remote namespace.
const FolderMIMEType = "application/vnd.google-apps.folder"

// Download is an open streaming read of a remote file.
// The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	Name        string
	MIMEType    string
	WebViewLink string
}

// Store defines the operations the gateway needs from the remote object
// service. Every call is a network round trip.
type Store interface {
	// FindFolder returns the first non-trashed folder named exactly name
	// directly under parentID, or ErrNotFound.
	FindFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error)

	// CreateFolder creates a folder named name under parentID.
	CreateFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error)

	// GetObject reads an object's metadata, including its parent set.
	GetObject(ctx context.Context, id string) (*model.ObjectRef, error)

	// ListFiles lists the non-trashed children of folderID, at most pageSize.
	ListFiles(ctx context.Context, folderID string, pageSize int64) ([]model.ObjectRef, error)

	// Upload creates a file under folderID from r.
	Upload(ctx context.Context, r io.Reader, name, mimeType, folderID string) (*model.ObjectRef, error)

	// Copy copies id into targetFolderID. An empty newName keeps the
	// store's default name.
	Copy(ctx context.Context, id, targetFolderID, newName string) (*model.ObjectRef, error)

	// Reparent adds addParent and removes removeParents in one call.
	Reparent(ctx context.Context, id, addParent string, removeParents []string) (*model.ObjectRef, error)

	// Delete permanently deletes id, bypassing the trash.
	Delete(ctx context.Context, id string) error

	// Open starts a streaming read of id's content.
	Open(ctx context.Context, id string) (*Download, error)
}
