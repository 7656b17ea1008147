package googledrive

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/logging"
)

// ClientFactory builds an authenticated client for the vault account.
type ClientFactory interface {
	Build(ctx context.Context) (*http.Client, error)
}

// Provider implements adapter.StoreProvider for Google Drive.
type Provider struct {
	factory ClientFactory
	opts    []option.ClientOption
	logger  *zap.Logger
}

// NewProvider creates a new Google Drive provider.
func NewProvider(factory ClientFactory, logger *zap.Logger, opts ...option.ClientOption) *Provider {
	return &Provider{factory: factory, opts: opts, logger: logging.OrGlobal(logger)}
}

// Store returns a DriveStore bound to the stored credential.
func (p *Provider) Store(ctx context.Context) (adapter.Store, error) {
	client, err := p.factory.Build(ctx)
	if err != nil {
		return nil, err
	}

	store, err := NewDriveStore(ctx, client, p.logger, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive store: %w", err)
	}
	return store, nil
}
