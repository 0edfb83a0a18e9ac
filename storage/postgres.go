package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"autosearch/models"
)

const insertBatchSize = 50

// PostgresStore persists snapshots to the listings table, one row per
// (search, id).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			search      TEXT        NOT NULL,
			id          TEXT        NOT NULL,
			title       TEXT        NOT NULL DEFAULT '',
			make        TEXT        NOT NULL DEFAULT '',
			model       TEXT        NOT NULL DEFAULT '',
			price       INTEGER     NOT NULL DEFAULT 0,
			year        INTEGER     NOT NULL DEFAULT 0,
			kilometers  INTEGER     NOT NULL DEFAULT 0,
			location    TEXT        NOT NULL DEFAULT '',
			url         TEXT        NOT NULL DEFAULT '',
			first_seen  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (search, id)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_first_seen ON listings(first_seen);
		CREATE INDEX IF NOT EXISTS idx_listings_make_model ON listings(make, model);
	`)
	return err
}

const selectColumns = `search, id, title, make, model, price, year, kilometers, location, url, first_seen, last_seen`

func (ps *PostgresStore) Load(ctx context.Context, search string) (models.Snapshot, error) {
	var rows []models.Listing
	if err := ps.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM listings WHERE search = $1`, search); err != nil {
		return nil, fmt.Errorf("postgres: load %q: %w", search, err)
	}

	snap := make(models.Snapshot, len(rows))
	for _, l := range rows {
		snap[l.ID] = l
	}
	return snap, nil
}

// Replace swaps the stored snapshot of search for snap in one transaction.
func (ps *PostgresStore) Replace(ctx context.Context, search string, snap models.Snapshot) error {
	tx, err := ps.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE search = $1`, search); err != nil {
		return fmt.Errorf("postgres: replace %q: delete: %w", search, err)
	}

	listings := snap.Listings()
	for i := range listings {
		listings[i].Search = search
	}
	for i := 0; i < len(listings); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(listings) {
			end = len(listings)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO listings (`+selectColumns+`)
			VALUES (:search, :id, :title, :make, :model, :price, :year, :kilometers, :location, :url, :first_seen, :last_seen)
		`, listings[i:end]); err != nil {
			return fmt.Errorf("postgres: replace %q: insert: %w", search, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: replace %q: commit: %w", search, err)
	}
	return nil
}

// All retrieves every stored listing, used by the inspection and export modes.
func (ps *PostgresStore) All(ctx context.Context) ([]models.Listing, error) {
	var rows []models.Listing
	if err := ps.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM listings ORDER BY search, id`); err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	return rows, nil
}

// Clear deletes all existing listings from the table.
func (ps *PostgresStore) Clear(ctx context.Context) (int, error) {
	res, err := ps.db.ExecContext(ctx, `DELETE FROM listings`)
	if err != nil {
		return 0, fmt.Errorf("postgres: clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: clear: %w", err)
	}
	return int(n), nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

var _ SnapshotStore = (*PostgresStore)(nil)
