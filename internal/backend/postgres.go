package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/credself/credstore/internal/models"
)

// Postgres implements Operator against the relational database. Records
// are keyed by the user's surrogate identifier and the secret type, one
// row per user per type, serialized as JSON.
type Postgres[R any] struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// SecretType selects the row family this operator manages.
	SecretType models.SecretType
}

// NewPostgres creates a Postgres operator for the given secret type.
// db must be a valid connection to a PostgreSQL instance.
func NewPostgres[R any](db *sql.DB, st models.SecretType) *Postgres[R] {
	return &Postgres[R]{DB: db, SecretType: st}
}

// Kind reports models.Relational.
func (p *Postgres[R]) Kind() models.BackendKind { return models.Relational }

// NeedsGUID is true: rows are keyed by surrogate identifier.
func (p *Postgres[R]) NeedsGUID() bool { return true }

// Read fetches the stored record for the given surrogate identifier.
// A missing row is absence, returned as (nil, nil).
func (p *Postgres[R]) Read(ctx context.Context, user, guid string) (*R, error) {
	var data []byte
	err := p.DB.QueryRowContext(ctx, `
		SELECT data FROM credential_secrets WHERE guid = $1 AND secret_type = $2
	`, guid, string(p.SecretType)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, operational(models.Relational, "read", fmt.Errorf("select credential_secrets: %w", err))
	}

	var record R
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, operational(models.Relational, "read", fmt.Errorf("decode stored record: %w", err))
	}
	return &record, nil
}

// Write replaces the stored record, inserting the row if new.
func (p *Postgres[R]) Write(ctx context.Context, user, guid string, record R) error {
	data, err := json.Marshal(record)
	if err != nil {
		return operational(models.Relational, "write", fmt.Errorf("encode record: %w", err))
	}

	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO credential_secrets (guid, secret_type, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guid, secret_type) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, guid, string(p.SecretType), data, time.Now().UTC())
	if err != nil {
		return operational(models.Relational, "write", fmt.Errorf("upsert credential_secrets: %w", err))
	}
	return nil
}

// Clear deletes the stored record. Deleting a missing row succeeds.
func (p *Postgres[R]) Clear(ctx context.Context, user, guid string) error {
	_, err := p.DB.ExecContext(ctx, `
		DELETE FROM credential_secrets WHERE guid = $1 AND secret_type = $2
	`, guid, string(p.SecretType))
	if err != nil {
		return operational(models.Relational, "clear", fmt.Errorf("delete credential_secrets: %w", err))
	}
	return nil
}
