package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"pairstream/internal/market"
)

const insertBatchSize = 500

// InsertTicks persists a batch of ticks, skipping rows that collide with an
// already stored (symbol, ts) pair. Returns the number of rows written.
func (p *PostgresClient) InsertTicks(ctx context.Context, ticks []market.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	records := make([]TickRecord, 0, len(ticks))
	for _, t := range ticks {
		records = append(records, TickRecord{
			Symbol: t.Symbol,
			TS:     t.TS,
			Price:  t.Price,
			Size:   t.Size,
		})
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "ts"},
		},
		DoNothing: true,
	}).CreateInBatches(records, insertBatchSize)

	if tx.Error != nil {
		return 0, tx.Error
	}
	return int(tx.RowsAffected), nil
}

// RecentTicks returns the most recent ticks for a symbol in ascending time
// order, at most limit rows.
func (p *PostgresClient) RecentTicks(ctx context.Context, symbol string, limit int) ([]market.Tick, error) {
	var records []TickRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("ts DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	// Query order is newest first; callers expect oldest first.
	ticks := make([]market.Tick, len(records))
	for i, r := range records {
		ticks[len(records)-1-i] = market.Tick{
			Symbol: r.Symbol,
			TS:     r.TS,
			Price:  r.Price,
			Size:   r.Size,
		}
	}
	return ticks, nil
}

// DeleteTicksBefore removes rows older than the cutoff, bounding table growth.
func (p *PostgresClient) DeleteTicksBefore(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("ts < ?", before).
		Delete(&TickRecord{}).Error
}
