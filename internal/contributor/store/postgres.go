package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"likeness/internal/contributor/models"
	"likeness/internal/platform/postgres"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// PostgresStore reads and flags rows of the contributors table. Flag updates
// join the transaction in ctx so an opt-out commits with its ledger event.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c models.Contributor) error {
	attrs, err := json.Marshal(c.Clone().Attributes)
	if err != nil {
		return fmt.Errorf("marshal contributor attributes: %w", err)
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO contributors (id, display_name, verified, opted_out, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(c.ID), c.DisplayName, c.Verified, c.OptedOut, attrs, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create contributor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, contributorID id.ContributorID) (models.Contributor, error) {
	var (
		c     models.Contributor
		raw   uuid.UUID
		attrs []byte
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, display_name, verified, opted_out, attributes, created_at, updated_at
		FROM contributors WHERE id = $1`, uuid.UUID(contributorID),
	).Scan(&raw, &c.DisplayName, &c.Verified, &c.OptedOut, &attrs, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Contributor{}, sentinel.ErrNotFound
		}
		return models.Contributor{}, fmt.Errorf("get contributor: %w", err)
	}
	c.ID = id.ContributorID(raw)
	if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
		return models.Contributor{}, fmt.Errorf("unmarshal contributor attributes: %w", err)
	}
	return c.Clone(), nil
}

func (s *PostgresStore) SetOptedOut(ctx context.Context, contributorID id.ContributorID, optedOut bool, at time.Time) error {
	return s.exec(ctx, "set contributor opt-out",
		`UPDATE contributors SET opted_out = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(contributorID), optedOut, at)
}

func (s *PostgresStore) SetVerified(ctx context.Context, contributorID id.ContributorID, at time.Time) error {
	return s.exec(ctx, "set contributor verified",
		`UPDATE contributors SET verified = TRUE, updated_at = $2 WHERE id = $1`,
		uuid.UUID(contributorID), at)
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
