// Package auth runs the one-time OAuth2 consent for the vault account and
// builds authenticated HTTP clients from the stored credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
)

// ErrInvalidState is returned when the callback state is missing, forged or stale.
var ErrInvalidState = errors.New("invalid oauth state")

// CredentialStore is the persistence the auth flows need.
type CredentialStore interface {
	// Load returns nil when no usable credential is stored.
	Load(ctx context.Context) *model.CredentialSet
	Save(ctx context.Context, cs *model.CredentialSet) error
}

// AccountLookup returns the email of the account tok belongs to.
type AccountLookup func(ctx context.Context, tok *oauth2.Token) (string, error)

// AuthService handles the OAuth2 consent flow for the vault account.
type AuthService struct {
	oauthConfig *oauth2.Config
	store       CredentialStore
	states      *stateSigner
	lookup      AccountLookup
	now         func() time.Time
	logger      *zap.Logger
}

// NewAuthService creates an AuthService. stateKey signs the CSRF state.
func NewAuthService(oauthConfig *oauth2.Config, store CredentialStore, stateKey []byte, logger *zap.Logger) (*AuthService, error) {
	if len(stateKey) == 0 {
		return nil, errors.New("state signing key is required")
	}
	s := &AuthService{
		oauthConfig: oauthConfig,
		store:       store,
		now:         time.Now,
		logger:      logging.OrGlobal(logger),
	}
	s.states = newStateSigner(stateKey, func() time.Time { return s.now() })
	s.lookup = s.googleAccount
	return s, nil
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// SetAccountLookup replaces the userinfo lookup done after code exchange.
func (s *AuthService) SetAccountLookup(lookup AccountLookup) {
	s.lookup = lookup
}

// AuthorizationURL returns the consent URL. Offline access and forced
// consent make the provider issue a refresh token every time.
func (s *AuthService) AuthorizationURL() (string, error) {
	state, err := s.states.Issue()
	if err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback verifies state, exchanges code and stores the resulting
// credential, replacing any previous one.
func (s *AuthService) HandleCallback(ctx context.Context, code, state string) (*model.CredentialSet, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	if err := s.states.Verify(state); err != nil {
		return nil, err
	}

	tok, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	cs := credentialFromToken(tok, s.now())
	if cs.RefreshToken == "" {
		// The provider may omit the refresh token on re-consent; keep the old one.
		if prev := s.store.Load(ctx); prev != nil {
			cs.RefreshToken = prev.RefreshToken
		}
	}

	if s.lookup != nil {
		email, err := s.lookup(ctx, tok)
		if err != nil {
			s.logger.Warn("account lookup failed", zap.Error(err))
		}
		cs.AccountEmail = email
	}

	if err := s.store.Save(ctx, cs); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	logging.WithContext(ctx, s.logger).Info("vault credential stored",
		zap.String("account", cs.AccountEmail),
		zap.Bool("renewable", cs.Renewable()),
		zap.Time("expiry", cs.Expiry),
	)
	return cs, nil
}

// Status returns the stored credential, or nil when there is none.
func (s *AuthService) Status(ctx context.Context) *model.CredentialSet {
	return s.store.Load(ctx)
}

func (s *AuthService) googleAccount(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := goauth2.NewService(ctx, option.WithHTTPClient(s.oauthConfig.Client(ctx, tok)))
	if err != nil {
		return "", fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get userinfo: %w", err)
	}
	return info.Email, nil
}

func credentialFromToken(tok *oauth2.Token, now time.Time) *model.CredentialSet {
	cs := &model.CredentialSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
		UpdatedAt:    now,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cs.Scope = scope
	}
	return cs
}

func tokenFromCredential(cs *model.CredentialSet) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cs.AccessToken,
		RefreshToken: cs.RefreshToken,
		TokenType:    cs.TokenType,
		Expiry:       cs.Expiry,
	}
}
