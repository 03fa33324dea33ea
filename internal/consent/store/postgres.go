package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"likeness/internal/consent/models"
	"likeness/internal/platform/postgres"
	id "likeness/pkg/domain"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// PostgresStore persists the ledger in consent_events and the projection in
// consent_projections. Every method joins the transaction carried by ctx, if
// any, so an append and its projection write commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListEvents(ctx context.Context, cid id.CID) ([]models.Event, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, cid, seq, event_type, consent_scope, geo_restrictions, content_exclusions, source, actor, created_at
		FROM consent_events
		WHERE cid = $1
		ORDER BY seq`, cid.String())
	if err != nil {
		return nil, fmt.Errorf("list consent events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			eventID   uuid.UUID
			rawCID    string
			eventType string
			scope     []byte
			geo, excl pq.StringArray
			e         models.Event
		)
		if err := rows.Scan(&eventID, &rawCID, &e.Seq, &eventType, &scope, &geo, &excl, &e.Source, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan consent event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.CID = id.CID(rawCID)
		e.Type = models.EventType(eventType)
		// NULL scope means "not supplied", which a reinstate resolves from
		// the pre-revocation state.
		if scope != nil {
			if err := unmarshalCategories(scope, &e.Categories); err != nil {
				return nil, err
			}
		}
		// NULL arrays scan as nil: the event left the list unchanged.
		e.GeoRestrictions = []string(geo)
		e.ContentExclusions = []string(excl)
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e models.Event) error {
	var scope any
	if e.Categories != nil {
		b, err := marshalCategories(e.Categories)
		if err != nil {
			return err
		}
		scope = b
	}
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO consent_events (id, cid, seq, event_type, consent_scope, geo_restrictions, content_exclusions, source, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(e.ID), e.CID.String(), e.Seq, string(e.Type), scope,
		nullableArray(e.GeoRestrictions), nullableArray(e.ContentExclusions),
		e.Source, e.Actor, e.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrOutOfOrder
		}
		return fmt.Errorf("append consent event: %w", err)
	}
	return nil
}

const projectionColumns = `cid, status, consent_categories, geo_restrictions, content_exclusions, pre_revocation_categories, last_seq, last_event_at, updated_at`

func (s *PostgresStore) GetProjection(ctx context.Context, cid id.CID) (models.Projection, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+projectionColumns+` FROM consent_projections WHERE cid = $1`, cid.String())
	p, err := scanProjection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Projection{}, sentinel.ErrNotFound
		}
		return models.Projection{}, fmt.Errorf("get consent projection: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProjections(ctx context.Context, cids []id.CID) (map[id.CID]models.Projection, error) {
	out := make(map[id.CID]models.Projection, len(cids))
	if len(cids) == 0 {
		return out, nil
	}
	raw := make([]string, len(cids))
	for i, c := range cids {
		raw[i] = c.String()
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+projectionColumns+` FROM consent_projections WHERE cid = ANY($1)`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("get consent projections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent projection: %w", err)
		}
		out[p.CID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent projections: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PutProjection(ctx context.Context, p models.Projection) error {
	cats, err := marshalCategories(p.Categories)
	if err != nil {
		return err
	}
	pre, err := marshalCategories(p.PreRevocationCategories)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO consent_projections (`+projectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cid) DO UPDATE SET
			status = EXCLUDED.status,
			consent_categories = EXCLUDED.consent_categories,
			geo_restrictions = EXCLUDED.geo_restrictions,
			content_exclusions = EXCLUDED.content_exclusions,
			pre_revocation_categories = EXCLUDED.pre_revocation_categories,
			last_seq = EXCLUDED.last_seq,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at`,
		p.CID.String(), string(p.Status), cats,
		pq.Array(nonNilArray(p.GeoRestrictions)), pq.Array(nonNilArray(p.ContentExclusions)),
		pre, p.LastSeq, p.LastEventAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put consent projection: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM consent_projections WHERE status = 'active'),
			(SELECT COUNT(*) FROM consent_projections WHERE status = 'revoked'),
			(SELECT COUNT(*) FROM consent_events)`,
	).Scan(&stats.Active, &stats.Revoked, &stats.Events)
	if err != nil {
		return models.Stats{}, fmt.Errorf("consent stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjection(row rowScanner) (models.Projection, error) {
	var (
		p         models.Projection
		rawCID    string
		status    string
		cats, pre []byte
		geo, excl pq.StringArray
	)
	if err := row.Scan(&rawCID, &status, &cats, &geo, &excl, &pre, &p.LastSeq, &p.LastEventAt, &p.UpdatedAt); err != nil {
		return models.Projection{}, err
	}
	p.CID = id.CID(rawCID)
	p.Status = models.Status(status)
	if err := unmarshalCategories(cats, &p.Categories); err != nil {
		return models.Projection{}, err
	}
	if err := unmarshalCategories(pre, &p.PreRevocationCategories); err != nil {
		return models.Projection{}, err
	}
	p.GeoRestrictions = nonNilArray(geo)
	p.ContentExclusions = nonNilArray(excl)
	p.LastEventAt = p.LastEventAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func marshalCategories(c models.Categories) ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal consent scope: %w", err)
	}
	return b, nil
}

func unmarshalCategories(raw []byte, dst *models.Categories) error {
	*dst = models.Categories{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal consent scope: %w", err)
	}
	return nil
}

// nullableArray keeps nil (unchanged) distinct from empty (cleared).
func nullableArray(v []string) any {
	if v == nil {
		return nil
	}
	return pq.Array(v)
}

func nonNilArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
