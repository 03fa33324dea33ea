package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"likeness/internal/platform/postgres"
	"likeness/internal/usage/models"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e models.Event) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO usage_events (id, contributor_id, api_key_id, use_type, description, user_agent, client, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(e.ID), uuid.UUID(e.ContributorID), uuid.UUID(e.APIKeyID),
		e.UseType.String(), e.Description, e.UserAgent, e.Client, e.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create usage event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByContributor(ctx context.Context, contributorID id.ContributorID, limit int) ([]models.Event, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, contributor_id, api_key_id, use_type, description, user_agent, client, created_at
		FROM usage_events
		WHERE contributor_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, uuid.UUID(contributorID), limit)
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e                       models.Event
			eventID, contrib, keyID uuid.UUID
			useType                 string
		)
		if err := rows.Scan(&eventID, &contrib, &keyID, &useType, &e.Description, &e.UserAgent, &e.Client, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		e.ID = id.UsageID(eventID)
		e.ContributorID = id.ContributorID(contrib)
		e.APIKeyID = id.APIKeyID(keyID)
		e.UseType = id.ConsentCategory(useType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage events: %w", err)
	}
	return out, nil
}
