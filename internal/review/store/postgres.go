package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"likeness/internal/platform/postgres"
	"likeness/internal/review/models"
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

func (s *PostgresStore) Create(ctx context.Context, r models.Review) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO submission_reviews (submission_id, contributor_id, reviewer_id, decision, notes, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.SubmissionID, uuid.UUID(r.ContributorID), uuid.UUID(r.ReviewerID), string(r.Decision), r.Notes, r.ReviewedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, submissionID uuid.UUID) (models.Review, error) {
	var (
		r             models.Review
		contributorID uuid.UUID
		reviewerID    uuid.UUID
		decision      string
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT submission_id, contributor_id, reviewer_id, decision, notes, reviewed_at
		FROM submission_reviews WHERE submission_id = $1`, submissionID,
	).Scan(&r.SubmissionID, &contributorID, &reviewerID, &decision, &r.Notes, &r.ReviewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Review{}, sentinel.ErrNotFound
		}
		return models.Review{}, fmt.Errorf("get review: %w", err)
	}
	r.ContributorID = id.ContributorID(contributorID)
	r.ReviewerID = id.ContributorID(reviewerID)
	r.Decision = models.Decision(decision)
	return r, nil
}
