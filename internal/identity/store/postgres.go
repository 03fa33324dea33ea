package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"likeness/internal/identity/models"
	"likeness/internal/platform/postgres"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// PostgresStore persists identities in the identities table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, identity models.Identity) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`INSERT INTO identities (cid, contributor_id, created_at) VALUES ($1, $2, $3)`,
		identity.CID.String(), uuid.UUID(identity.ContributorID), identity.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByContributor(ctx context.Context, contributorID id.ContributorID) (models.Identity, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT cid, contributor_id, created_at FROM identities WHERE contributor_id = $1`,
		uuid.UUID(contributorID),
	)
	return scanIdentity(row, "find identity by contributor")
}

func (s *PostgresStore) FindByCID(ctx context.Context, cid id.CID) (models.Identity, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT cid, contributor_id, created_at FROM identities WHERE cid = $1`,
		cid.String(),
	)
	return scanIdentity(row, "find identity by cid")
}

func (s *PostgresStore) FindByCIDs(ctx context.Context, cids []id.CID) (map[id.CID]models.Identity, error) {
	out := make(map[id.CID]models.Identity, len(cids))
	if len(cids) == 0 {
		return out, nil
	}
	raw := make([]string, len(cids))
	for i, c := range cids {
		raw[i] = c.String()
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT cid, contributor_id, created_at FROM identities WHERE cid = ANY($1)`,
		pq.Array(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		identity, err := scanIdentity(rows, "scan identity")
		if err != nil {
			return nil, err
		}
		out[identity.CID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner, op string) (models.Identity, error) {
	var (
		cid           string
		contributorID uuid.UUID
		identity      models.Identity
	)
	if err := row.Scan(&cid, &contributorID, &identity.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Identity{}, sentinel.ErrNotFound
		}
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	identity.CID = id.CID(cid)
	identity.ContributorID = id.ContributorID(contributorID)
	return identity, nil
}
