package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"likeness/internal/apikey/models"
	"likeness/internal/platform/postgres"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// PostgresStore persists keys in api_keys.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `id, key_hash, key_prefix, name, scopes, is_active, expires_at, last_used_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, key models.APIKey) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(key.ID), key.KeyHash, key.KeyPrefix, key.Name, pq.Array(key.Scopes),
		key.IsActive, key.ExpiresAt, key.LastUsedAt, key.CreatedAt, key.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (models.APIKey, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	return scanKey(row, "find api key by hash")
}

func (s *PostgresStore) Get(ctx context.Context, keyID id.APIKeyID) (models.APIKey, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, uuid.UUID(keyID))
	return scanKey(row, "get api key")
}

func (s *PostgresStore) List(ctx context.Context) ([]models.APIKey, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		key, err := scanKey(rows, "scan api key")
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) UpdateScopes(ctx context.Context, keyID id.APIKeyID, scopes []string, at time.Time) error {
	return s.exec(ctx, "update api key scopes",
		`UPDATE api_keys SET scopes = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(keyID), pq.Array(scopes), at)
}

func (s *PostgresStore) Deactivate(ctx context.Context, keyID id.APIKeyID, at time.Time) error {
	return s.exec(ctx, "deactivate api key",
		`UPDATE api_keys SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		uuid.UUID(keyID), at)
}

// TouchLastUsed only moves last_used_at forward.
func (s *PostgresStore) TouchLastUsed(ctx context.Context, keyID id.APIKeyID, at time.Time) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = $2
		WHERE id = $1 AND (last_used_at IS NULL OR last_used_at < $2)`,
		uuid.UUID(keyID), at)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner, op string) (models.APIKey, error) {
	var (
		key      models.APIKey
		rawID    uuid.UUID
		scopes   pq.StringArray
		expires  sql.NullTime
		lastUsed sql.NullTime
	)
	err := row.Scan(&rawID, &key.KeyHash, &key.KeyPrefix, &key.Name, &scopes,
		&key.IsActive, &expires, &lastUsed, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.APIKey{}, sentinel.ErrNotFound
		}
		return models.APIKey{}, fmt.Errorf("%s: %w", op, err)
	}
	key.ID = id.APIKeyID(rawID)
	key.Scopes = []string(scopes)
	if expires.Valid {
		t := expires.Time
		key.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	return key, nil
}
