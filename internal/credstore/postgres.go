package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jun/vaultgw/internal/model"
)

// PostgresBackend keeps the credential row in the portal's relational
// metadata store.
type PostgresBackend struct {
	db    *sql.DB
	table string
}

// NewPostgresBackend uses table (quoted as an identifier) in db.
func NewPostgresBackend(db *sql.DB, table string) *PostgresBackend {
	return &PostgresBackend{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the credential table if it does not exist.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
		id            TEXT PRIMARY KEY,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		scope         TEXT NOT NULL DEFAULT '',
		token_type    TEXT NOT NULL DEFAULT '',
		expiry        TIMESTAMPTZ,
		account_email TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create credential table: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context) (*model.CredentialSet, error) {
	var (
		cs     model.CredentialSet
		expiry pq.NullTime
	)
	err := p.db.QueryRowContext(ctx, `SELECT access_token, refresh_token, scope, token_type, expiry, account_email, updated_at
		FROM `+p.table+` WHERE id = $1`, model.CredentialKey).
		Scan(&cs.AccessToken, &cs.RefreshToken, &cs.Scope, &cs.TokenType, &expiry, &cs.AccountEmail, &cs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	if expiry.Valid {
		cs.Expiry = expiry.Time
	}
	return &cs, nil
}

func (p *PostgresBackend) Put(ctx context.Context, cs *model.CredentialSet) error {
	expiry := pq.NullTime{Time: cs.Expiry, Valid: !cs.Expiry.IsZero()}
	_, err := p.db.ExecContext(ctx, `INSERT INTO `+p.table+`
		(id, access_token, refresh_token, scope, token_type, expiry, account_email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			account_email = EXCLUDED.account_email,
			updated_at = EXCLUDED.updated_at`,
		model.CredentialKey, cs.AccessToken, cs.RefreshToken, cs.Scope, cs.TokenType, expiry, cs.AccountEmail, cs.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("upsert credential (%s): %w", pqErr.Code.Name(), err)
		}
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}
