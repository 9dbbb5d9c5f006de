// Package sqlite persists credential-store records in a local SQLite
// database. Intended for desktop hosts where several applications share one
// credential file and need transactional updates.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tidehook/authsess/pkg/credstore"

	_ "modernc.org/sqlite"
)

type Driver struct {
	db  *sql.DB
	dsn string
}

// New opens (or creates) the database at dsn and applies pending migrations.
func New(dsn string) (*Driver, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Serialize writers; SQLite handles one writer at a time anyway and this
	// avoids SQLITE_BUSY under concurrent renewal/teardown.
	db.SetMaxOpenConns(1)

	d := &Driver{db: db, dsn: dsn}
	if err := d.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) Put(ctx context.Context, key string, rec credstore.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO credentials (key, record, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET
			record = excluded.record,
			updated_at = CURRENT_TIMESTAMP;
	`, key, data)
	return err
}

func (d *Driver) Get(ctx context.Context, key string) (credstore.Record, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT record FROM credentials WHERE key = ?;`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credstore.Record{}, credstore.ErrNotFound
		}
		return credstore.Record{}, err
	}
	return decodeRecord(data)
}

func (d *Driver) Delete(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?;`, key)
	return err
}

func (d *Driver) Close() error { return d.db.Close() }

// Ping verifies the database connection is still alive.
func (d *Driver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
