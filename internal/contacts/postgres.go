package contacts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the contacts table. Execute it via
// [PostgresDirectory.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    relationship TEXT NOT NULL DEFAULT '',
    phone        TEXT NOT NULL DEFAULT '',
    whatsapp     TEXT NOT NULL DEFAULT '',
    email        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contacts_name ON contacts (lower(name));
`

// DB is the database interface used by [PostgresDirectory]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresDirectory is a Directory backed by a PostgreSQL database. The
// voice core only reads from it; rows are managed by the family screens.
type PostgresDirectory struct {
	db DB
}

var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory creates a directory over the given connection or
// pool. The caller is responsible for calling Migrate before issuing
// queries.
func NewPostgresDirectory(db DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	if _, err := d.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("contacts: migrate: %w", err)
	}
	return nil
}

// Seed inserts the given contacts, skipping IDs that already exist. Used to
// load the default household entries on first start.
func (d *PostgresDirectory) Seed(ctx context.Context, list []Contact) error {
	const query = `
		INSERT INTO contacts (id, name, relationship, phone, whatsapp, email)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`
	for _, c := range list {
		if _, err := d.db.Exec(ctx, query,
			c.ID, c.Name, c.Relationship, c.Phone, c.WhatsApp, c.Email,
		); err != nil {
			return fmt.Errorf("contacts: seed %q: %w", c.Name, err)
		}
	}
	return nil
}

// List implements Directory. Rows come back in insertion order so substring
// resolution stays deterministic.
func (d *PostgresDirectory) List(ctx context.Context) ([]Contact, error) {
	const query = `
		SELECT id, name, relationship, phone, whatsapp, email
		FROM contacts
		ORDER BY created_at, id`

	rows, err := d.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("contacts: list: %w", err)
	}
	defer rows.Close()

	var list []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Relationship, &c.Phone, &c.WhatsApp, &c.Email); err != nil {
			return nil, fmt.Errorf("contacts: list scan: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: list: %w", err)
	}
	return list, nil
}
