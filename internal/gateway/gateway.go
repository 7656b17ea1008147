// Package gateway is the vault's public contract: every operation the portal
// performs against the remote document store goes through a Gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/export"
	"github.com/jun/vaultgw/internal/folder"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
	"github.com/jun/vaultgw/internal/objects"
)

const defaultUploadMIME = "application/octet-stream"

// Authenticator runs the consent flow.
type Authenticator interface {
	AuthorizationURL() (string, error)
	HandleCallback(ctx context.Context, code, state string) (*model.CredentialSet, error)
	Status(ctx context.Context) *model.CredentialSet
}

// Status describes the stored credential without exposing tokens.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	AccountEmail  string    `json:"accountEmail,omitempty"`
	Expiry        time.Time `json:"expiry,omitzero"`
	Renewable     bool      `json:"renewable"`
}

// Options configures a Gateway.
type Options struct {
	Auth         Authenticator
	Provider     adapter.StoreProvider
	Resolver     *folder.Resolver
	Objects      *objects.Service
	Exporter     *export.Exporter
	Catalog      catalog.Source
	RootFolderID string
	Logger       *zap.Logger
}

// Gateway composes the vault components. Every store operation obtains its
// Store first, so a missing credential fails before any remote call.
type Gateway struct {
	auth     Authenticator
	provider adapter.StoreProvider
	resolver *folder.Resolver
	objects  *objects.Service
	exporter *export.Exporter
	catalog  catalog.Source
	rootID   string
	logger   *zap.Logger
}

func New(opts Options) *Gateway {
	logger := logging.OrGlobal(opts.Logger)
	g := &Gateway{
		auth:     opts.Auth,
		provider: opts.Provider,
		resolver: opts.Resolver,
		objects:  opts.Objects,
		exporter: opts.Exporter,
		catalog:  opts.Catalog,
		rootID:   opts.RootFolderID,
		logger:   logger,
	}
	if g.resolver == nil {
		g.resolver = folder.NewResolver(nil, logger)
	}
	if g.objects == nil {
		g.objects = objects.NewService(logger)
	}
	if g.exporter == nil {
		g.exporter = export.NewExporter(export.Config{}, logger)
	}
	return g
}

// RootFolderID is the configured vault root.
func (g *Gateway) RootFolderID() string {
	return g.rootID
}

// GetAuthorizationURL returns the consent URL for the vault account.
func (g *Gateway) GetAuthorizationURL() (string, error) {
	return g.auth.AuthorizationURL()
}

// HandleAuthorizationCallback completes consent and stores the credential.
func (g *Gateway) HandleAuthorizationCallback(ctx context.Context, code, state string) error {
	_, err := g.auth.HandleCallback(ctx, code, state)
	return err
}

// AuthStatus reports whether a credential is stored.
func (g *Gateway) AuthStatus(ctx context.Context) Status {
	cs := g.auth.Status(ctx)
	if cs == nil {
		return Status{}
	}
	return Status{
		Authenticated: true,
		AccountEmail:  cs.AccountEmail,
		Expiry:        cs.Expiry,
		Renewable:     cs.Renewable(),
	}
}

// ListFiles lists folderID, or the vault root when folderID is empty.
func (g *Gateway) ListFiles(ctx context.Context, folderID string, pageSize int64) ([]model.ObjectRef, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	folderID, err = g.folderOrRoot(folderID)
	if err != nil {
		return nil, err
	}
	files, err := store.ListFiles(ctx, folderID, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return files, nil
}

// UploadFile stores r as name under folderID, or the vault root.
func (g *Gateway) UploadFile(ctx context.Context, r io.Reader, name, mimeType, folderID string) (*model.ObjectRef, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, adapter.Malformed("name")
	}
	folderID, err = g.folderOrRoot(folderID)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = defaultUploadMIME
	}

	ref, err := store.Upload(ctx, r, folder.Sanitize(name), mimeType, folderID)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	logging.WithContext(ctx, g.logger).Info("file uploaded",
		zap.String("file_id", ref.ID),
		zap.String("folder_id", folderID),
	)
	return ref, nil
}

// EnsureFolderPath resolves the folder levels of spec under rootID, or the
// vault root.
func (g *Gateway) EnsureFolderPath(ctx context.Context, rootID string, spec model.FolderPathSpec) (string, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return "", err
	}
	if rootID == "" {
		rootID = g.rootID
	}
	return g.resolver.Ensure(ctx, store, rootID, spec.Segments())
}

// CopyFile copies fileID into targetFolderID.
func (g *Gateway) CopyFile(ctx context.Context, fileID, targetFolderID, newName string) (*model.ObjectRef, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	return g.objects.Copy(ctx, store, fileID, targetFolderID, newName)
}

// MoveFile makes targetFolderID the only parent of fileID.
func (g *Gateway) MoveFile(ctx context.Context, fileID, targetFolderID string) (*model.ObjectRef, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	return g.objects.Move(ctx, store, fileID, targetFolderID)
}

// DeleteFile permanently deletes fileID.
func (g *Gateway) DeleteFile(ctx context.Context, fileID string) error {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return err
	}
	return g.objects.Delete(ctx, store, fileID)
}

// ExportArchive streams items into sink as one zip archive.
func (g *Gateway) ExportArchive(ctx context.Context, items []model.ExportItem, sink export.Sink) (*export.Outcome, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	return g.exporter.Export(ctx, store, items, sink)
}

// ExportByFilter exports the documents the catalog lists for f.
func (g *Gateway) ExportByFilter(ctx context.Context, f catalog.Filter, sink export.Sink) (*export.Outcome, error) {
	store, err := g.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	if g.catalog == nil {
		return nil, errors.New("export by filter: no catalog configured")
	}

	links, err := g.catalog.ExportLinks(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export by filter: %w", err)
	}
	items := make([]model.ExportItem, 0, len(links))
	for _, l := range links {
		items = append(items, model.ExportItem{Ref: l.Ref, DestPath: l.Filename})
	}
	return g.exporter.Export(ctx, store, items, sink)
}

func (g *Gateway) folderOrRoot(folderID string) (string, error) {
	if folderID != "" {
		return folderID, nil
	}
	if g.rootID == "" {
		return "", adapter.Malformed("folder id")
	}
	return g.rootID, nil
}
