package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Date returns the calendar day as midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// TruncateDay drops the time-of-day component, keeping the calendar date
// as seen in t's own location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// NightsBetween counts whole days between two calendar dates.
func NightsBetween(checkIn, checkOut time.Time) int {
	return int(TruncateDay(checkOut).Sub(TruncateDay(checkIn)).Hours() / 24)
}

// StayTotal prices a stay at a fixed nightly rate.
func StayTotal(rate decimal.Decimal, checkIn, checkOut time.Time) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(NightsBetween(checkIn, checkOut))))
}

// ToMinorUnits converts a major-unit amount to the processor's integer
// minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
