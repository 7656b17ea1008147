// Package catalog reads export link lists from the portal's relational
// metadata store.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Filter selects archived documents. Empty fields match everything.
type Filter struct {
	Term     string `json:"term"`
	OrgUnit  string `json:"orgUnit"`
	Category string `json:"category"`
}

// Link is one exportable document: its archive file name and a remote
// reference (share link or bare id).
type Link struct {
	Filename string
	Ref      string
}

// Source lists documents for an archive export.
type Source interface {
	ExportLinks(ctx context.Context, f Filter) ([]Link, error)
}

// PostgresSource calls the get_archive_export_links stored function.
type PostgresSource struct {
	db *sql.DB
}

// Open connects to dsn with the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (p *PostgresSource) ExportLinks(ctx context.Context, f Filter) ([]Link, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT filename, download_link FROM get_archive_export_links($1, $2, $3)`,
		nullable(f.Term), nullable(f.OrgUnit), nullable(f.Category))
	if err != nil {
		return nil, fmt.Errorf("query export links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var (
			name sql.NullString
			ref  sql.NullString
		)
		if err := rows.Scan(&name, &ref); err != nil {
			return nil, fmt.Errorf("scan export link: %w", err)
		}
		links = append(links, Link{Filename: name.String, Ref: ref.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read export links: %w", err)
	}
	return links, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StaticSource serves a fixed link list. DEV_MODE and tests.
type StaticSource struct {
	Links []Link
}

func (s StaticSource) ExportLinks(context.Context, Filter) ([]Link, error) {
	return s.Links, nil
}
