package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one daily close observation as stored in ClickHouse.
// Prices are kept as decimals end to end; returns are derived as floats
// only at the panel boundary.
type Bar struct {
	Date   time.Time       `db:"date"`
	Ticker string          `db:"ticker"`
	Close  decimal.Decimal `db:"close"`
}

// LevelSeries is a named non-return series (spread levels, index levels)
// fetched alongside the return panel.
type LevelSeries struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}
