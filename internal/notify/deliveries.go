package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery is one send attempt to one recipient.
type Delivery struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Chars     int       `json:"chars"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryRepository is the delivery log in the deliveries table.
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a repository over db.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Record stores d, assigning an ID when it has none.
func (r *DeliveryRepository) Record(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	var errText sql.NullString
	if d.Error != "" {
		errText = sql.NullString{String: d.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, kind, recipient, success, error, chars, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Kind, d.Recipient, boolToInt(d.Success), errText, d.Chars, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit deliveries, newest first.
func (r *DeliveryRepository) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, recipient, success, error, chars, created_at
		 FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d         Delivery
			success   int
			errText   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.Kind, &d.Recipient, &success, &errText, &d.Chars, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Success = success == 1
		d.Error = errText.String
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
