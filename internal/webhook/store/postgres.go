package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"likeness/internal/platform/postgres"
	"likeness/internal/webhook/models"
	"likeness/pkg/platform/sentinel"
	"likeness/pkg/platform/tx"
)

// PostgresStore persists the outbox in webhook_outbox. Enqueue joins the
// transaction carried by ctx, so rows commit with the change that caused them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const messageColumns = `id, event_type, payload, emitted_at, status, attempts, next_attempt_at, last_error, delivered_at`

func (s *PostgresStore) Enqueue(ctx context.Context, msg models.Message) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO webhook_outbox (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.EventType, []byte(msg.Payload), msg.EmittedAt, string(msg.Status),
		msg.Attempts, msg.NextAttemptAt, msg.LastError, msg.DeliveredAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("enqueue webhook: %w", err)
	}
	return nil
}

// ClaimDue leases due rows with SKIP LOCKED so replicas never claim the same
// row inside one lease window.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE webhook_outbox
		SET next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM webhook_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at, emitted_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+messageColumns,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim webhooks: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed webhooks: %w", err)
	}
	slices.SortFunc(out, func(a, b models.Message) int { return a.EmittedAt.Compare(b.EmittedAt) })
	return out, nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, msgID uuid.UUID, attempts int, at time.Time) error {
	return s.exec(ctx, "mark webhook delivered", `
		UPDATE webhook_outbox
		SET status = 'delivered', attempts = $2, delivered_at = $3, last_error = ''
		WHERE id = $1`, msgID, attempts, at)
}

func (s *PostgresStore) MarkRetry(ctx context.Context, msgID uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return s.exec(ctx, "reschedule webhook", `
		UPDATE webhook_outbox
		SET attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1`, msgID, attempts, next, lastErr)
}

func (s *PostgresStore) MarkDead(ctx context.Context, msgID uuid.UUID, attempts int, lastErr string) error {
	return s.exec(ctx, "mark webhook dead", `
		UPDATE webhook_outbox
		SET status = 'dead', attempts = $2, last_error = $3
		WHERE id = $1`, msgID, attempts, lastErr)
}

func (s *PostgresStore) Get(ctx context.Context, msgID uuid.UUID) (models.Message, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM webhook_outbox WHERE id = $1`, msgID)
	return scanMessage(row)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM webhook_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count webhooks: %w", err)
	}
	defer rows.Close()

	out := map[models.Status]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan webhook count: %w", err)
		}
		out[models.Status(status)] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (models.Message, error) {
	var (
		m       models.Message
		status  string
		payload []byte
	)
	err := row.Scan(&m.ID, &m.EventType, &payload, &m.EmittedAt, &status,
		&m.Attempts, &m.NextAttemptAt, &m.LastError, &m.DeliveredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, sentinel.ErrNotFound
		}
		return models.Message{}, fmt.Errorf("scan webhook: %w", err)
	}
	m.Status = models.Status(status)
	m.Payload = payload
	return m, nil
}
