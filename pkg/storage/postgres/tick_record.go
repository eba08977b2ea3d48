package postgres

import "time"

// TickRecord represents a normalized trade event stored in the database.
type TickRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index keeps replays after a reconnect idempotent
	Symbol string    `gorm:"type:text;not null;index:idx_tick_symbol_ts,unique"`
	TS     time.Time `gorm:"not null;index:idx_tick_symbol_ts,unique"`

	Price float64 `gorm:"type:numeric;not null"`
	Size  float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (TickRecord) TableName() string {
	return "tick_record"
}
