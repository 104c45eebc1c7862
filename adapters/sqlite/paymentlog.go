package sqlite

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/artpar/tacoscan/ports"
)

// PaymentLog implements ports.PaymentLog using SQLite.
type PaymentLog struct {
	db *DB
}

// NewPaymentLog creates a new SQLite payment log.
func NewPaymentLog(db *DB) *PaymentLog {
	return &PaymentLog{db: db}
}

// Create stores a new attempt.
func (s *PaymentLog) Create(ctx context.Context, r ports.PaymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_attempts
			(id, ritual_id, kind, period, slots, total, outcome, approve_tx, pay_tx, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RitualID, r.Kind, bigString(r.Period), r.Slots.String(), bigString(r.Total),
		string(r.Outcome), nullString(r.ApproveTx), nullString(r.PayTx), nullString(r.Error),
		r.CreatedAt.UTC(), nullTime(r.CompletedAt))
	return err
}

// Update replaces the mutable fields of an attempt.
func (s *PaymentLog) Update(ctx context.Context, r ports.PaymentRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET outcome = ?, approve_tx = ?, pay_tx = ?, error = ?, completed_at = ?
		WHERE id = ?
	`, string(r.Outcome), nullString(r.ApproveTx), nullString(r.PayTx), nullString(r.Error),
		nullTime(r.CompletedAt), r.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRitual returns attempts for a ritual, newest first.
func (s *PaymentLog) ListByRitual(ctx context.Context, ritualID string, limit int) ([]ports.PaymentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ritual_id, kind, period, slots, total, outcome, approve_tx, pay_tx, error, created_at, completed_at
		FROM payment_attempts
		WHERE ritual_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ritualID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ports.PaymentRecord
	for rows.Next() {
		r, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanPayment(rows *sql.Rows) (ports.PaymentRecord, error) {
	var (
		r                         ports.PaymentRecord
		period, total             sql.NullString
		slots, outcome            string
		approveTx, payTx, errText sql.NullString
		completedAt               sql.NullTime
	)
	err := rows.Scan(&r.ID, &r.RitualID, &r.Kind, &period, &slots, &total, &outcome,
		&approveTx, &payTx, &errText, &r.CreatedAt, &completedAt)
	if err != nil {
		return r, err
	}

	r.Period = parseBig(period.String)
	r.Slots = parseBig(slots)
	r.Total = parseBig(total.String)
	r.Outcome = ports.PaymentOutcome(outcome)
	r.ApproveTx = approveTx.String
	r.PayTx = payTx.String
	r.Error = errText.String
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return r, nil
}

func bigString(n *big.Int) sql.NullString {
	if n == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: n.String(), Valid: true}
}

func parseBig(s string) *big.Int {
	if s == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return n
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ ports.PaymentLog = (*PaymentLog)(nil)
