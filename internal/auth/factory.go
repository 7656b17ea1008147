package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/metrics"
	"github.com/jun/vaultgw/internal/model"
)

// Factory builds HTTP clients signed with the stored vault credential.
type Factory struct {
	oauthConfig *oauth2.Config
	store       CredentialStore
	now         func() time.Time
	logger      *zap.Logger
}

// NewFactory creates a Factory.
func NewFactory(oauthConfig *oauth2.Config, store CredentialStore, logger *zap.Logger) *Factory {
	return &Factory{
		oauthConfig: oauthConfig,
		store:       store,
		now:         time.Now,
		logger:      logging.OrGlobal(logger),
	}
}

// Build returns a client that refreshes the access token when it expires
// and writes every new token back to the credential store. It returns
// adapter.ErrNotAuthenticated without any network call when nothing is
// stored or the stored token is expired and cannot be renewed.
func (f *Factory) Build(ctx context.Context) (*http.Client, error) {
	cs := f.store.Load(ctx)
	if cs == nil {
		return nil, adapter.ErrNotAuthenticated
	}
	seed := tokenFromCredential(cs)
	// oauth2 treats a token as expired shortly before its expiry, so the
	// check uses the same rule.
	if !seed.Valid() && !cs.Renewable() {
		return nil, fmt.Errorf("%w: access token expired and no refresh token is stored", adapter.ErrNotAuthenticated)
	}

	ts := &persistingTokenSource{
		base:   f.oauthConfig.TokenSource(ctx, seed),
		store:  f.store,
		cs:     *cs,
		last:   seed.AccessToken,
		now:    f.now,
		logger: logging.WithContext(ctx, f.logger),
		ctx:    context.WithoutCancel(ctx),
	}
	return oauth2.NewClient(ctx, ts), nil
}

// persistingTokenSource saves each token that differs from the last one it
// saw, so a refresh survives process restarts.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  CredentialStore
	now    func() time.Time
	logger *zap.Logger
	ctx    context.Context

	mu   sync.Mutex
	cs   model.CredentialSet
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			p.logger.Warn("token refresh rejected", zap.Int("status", status), zap.String("error_code", re.ErrorCode))
			return nil, fmt.Errorf("%w: refresh rejected: %v", adapter.ErrNotAuthenticated, err)
		}
		p.mu.Lock()
		renewable := p.cs.Renewable()
		p.mu.Unlock()
		if !renewable {
			return nil, fmt.Errorf("%w: %v", adapter.ErrNotAuthenticated, err)
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken

	p.cs.AccessToken = tok.AccessToken
	p.cs.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		p.cs.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		p.cs.TokenType = tok.TokenType
	}
	p.cs.UpdatedAt = p.now()

	updated := p.cs
	if err := p.store.Save(p.ctx, &updated); err != nil {
		// The refreshed token is still usable for this request.
		p.logger.Warn("refreshed token not persisted", zap.Error(err))
		metrics.RecordTokenRefresh(false)
		return tok, nil
	}
	metrics.RecordTokenRefresh(true)
	p.logger.Info("access token refreshed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}
