// Package credstore persists the single delegated OAuth2 credential.
package credstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/crypto"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
)

// ErrNoCredential is returned by backends when the singleton row is absent.
var ErrNoCredential = errors.New("no stored credential")

// Backend is a durable home for the credential row. Put is an upsert on
// model.CredentialKey; concurrent puts are last-write-wins.
type Backend interface {
	Get(ctx context.Context) (*model.CredentialSet, error)
	Put(ctx context.Context, cs *model.CredentialSet) error
}

// Adapter seals token fields with an Encryptor and hides storage failures
// from readers: Load reports "not authenticated" for both a missing row and
// a failing backend.
type Adapter struct {
	backend Backend
	enc     crypto.Encryptor
	logger  *zap.Logger
}

// NewAdapter creates an Adapter over backend.
func NewAdapter(backend Backend, enc crypto.Encryptor, logger *zap.Logger) *Adapter {
	if enc == nil {
		enc = crypto.NewPlainEncryptor()
	}
	return &Adapter{backend: backend, enc: enc, logger: logging.OrGlobal(logger)}
}

// Load returns the stored credential, or nil when there is none or it
// cannot be read.
func (a *Adapter) Load(ctx context.Context) *model.CredentialSet {
	stored, err := a.backend.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			a.logger.Warn("credential load failed, treating as unauthenticated", zap.Error(err))
		}
		return nil
	}

	cs := *stored
	if cs.AccessToken, err = a.enc.Decrypt(ctx, stored.AccessToken); err != nil {
		a.logger.Warn("credential access token unreadable", zap.Error(err))
		return nil
	}
	if cs.RefreshToken, err = a.enc.Decrypt(ctx, stored.RefreshToken); err != nil {
		a.logger.Warn("credential refresh token unreadable", zap.Error(err))
		return nil
	}
	return &cs
}

// Save upserts cs.
func (a *Adapter) Save(ctx context.Context, cs *model.CredentialSet) error {
	sealed := *cs
	var err error
	if sealed.AccessToken, err = a.enc.Encrypt(ctx, cs.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if sealed.RefreshToken, err = a.enc.Encrypt(ctx, cs.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	if err := a.backend.Put(ctx, &sealed); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
