package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	stateIssuer = "vaultgw"
	stateTTL    = 10 * time.Minute
)

// stateSigner issues and verifies the short-lived JWT carried in the OAuth
// state parameter.
type stateSigner struct {
	key []byte
	now func() time.Time
}

func newStateSigner(key []byte, now func() time.Time) *stateSigner {
	return &stateSigner{key: key, now: now}
}

func (s *stateSigner) Issue() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    stateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *stateSigner) Verify(state string) error {
	if state == "" {
		return fmt.Errorf("%w: missing", ErrInvalidState)
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", ErrInvalidState)
		}
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
