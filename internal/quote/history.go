package quote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/newsbell/internal/domain"
	"github.com/aristath/newsbell/pkg/formulas"
)

// HistoryPoint is one recorded snapshot.
type HistoryPoint struct {
	Symbol        string          `json:"symbol"`
	Value         decimal.Decimal `json:"value"`
	ChangePercent *string         `json:"change_percent,omitempty"`
	AsOf          time.Time       `json:"as_of"`
	Provider      string          `json:"provider"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// HistoryRepository stores resolved snapshots in the quote_history table.
// It is used for trend reporting only, never as a fallback value.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository over db.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record stores snap. Snapshots without a value are ignored.
func (r *HistoryRepository) Record(ctx context.Context, snap *domain.QuoteSnapshot, recordedAt time.Time) error {
	if !snap.Available() {
		return nil
	}

	var change sql.NullString
	if snap.ChangePercent != nil {
		change = sql.NullString{String: *snap.ChangePercent, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quote_history (symbol, value, change_percent, as_of, provider, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Symbol, snap.Value.String(), change, snap.AsOf.Unix(), snap.ProviderUsed, recordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record quote for %s: %w", snap.Symbol, err)
	}
	return nil
}

// Recent returns up to n points for symbol, oldest first.
func (r *HistoryRepository) Recent(ctx context.Context, symbol string, n int) ([]HistoryPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, value, change_percent, as_of, provider, recorded_at
		 FROM quote_history WHERE symbol = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		symbol, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var (
			p          HistoryPoint
			value      string
			change     sql.NullString
			asOf, recd int64
		)
		if err := rows.Scan(&p.Symbol, &value, &change, &asOf, &p.Provider, &recd); err != nil {
			return nil, fmt.Errorf("failed to scan quote history: %w", err)
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("corrupt quote value %q: %w", value, err)
		}
		if change.Valid {
			c := change.String
			p.ChangePercent = &c
		}
		p.AsOf = time.Unix(asOf, 0)
		p.RecordedAt = time.Unix(recd, 0)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quote history: %w", err)
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Trend summarises the last n points of symbol with an SMA over window.
// It returns nil when there is no history.
func (r *HistoryRepository) Trend(ctx context.Context, symbol string, n, window int) (*formulas.Trend, error) {
	points, err := r.Recent(ctx, symbol, n)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		values = append(values, p.Value.InexactFloat64())
	}
	return formulas.CalculateTrend(values, window), nil
}
