package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures one emitted alert for auditing and the
// show/export commands.
type AlertRecord struct {
	ID           int64
	Symbol       string
	BasisPct     decimal.Decimal
	ThresholdPct decimal.Decimal
	Reason       string
	CreatedAt    time.Time
}
