package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"300.00":  30000,
		"199.995": 20000,
		"0.005":   1,
		"0.004":   0,
		"-1.005":  -101,
		"12.3":    1230,
	}
	for in, want := range cases {
		assert.Equal(t, want, ToMinorUnits(decimal.RequireFromString(in)), in)
	}
	assert.Equal(t, "123.45", FromMinorUnits(12345).StringFixed(2))
}

func TestStayPricing(t *testing.T) {
	in := Date(2025, time.June, 28)
	out := Date(2025, time.July, 2)
	assert.Equal(t, 4, NightsBetween(in, out))
	assert.Equal(t, "599.96", StayTotal(decimal.RequireFromString("149.99"), in, out).StringFixed(2))

	// Time of day is ignored.
	assert.Equal(t, 1, NightsBetween(in.Add(23*time.Hour), Date(2025, time.June, 29)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, time.June, 1), d)

	_, err = ParseDate("06/01/2025")
	assert.Error(t, err)

	local := time.Date(2025, time.June, 1, 23, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	assert.Equal(t, Date(2025, time.June, 1), TruncateDay(local))
}

func TestReservationOverlapIsHalfOpen(t *testing.T) {
	res := &Reservation{CheckIn: Date(2025, time.June, 1), CheckOut: Date(2025, time.June, 4)}
	day := func(d int) time.Time { return Date(2025, time.June, d) }

	assert.True(t, res.Overlaps(day(3), day(5)))
	assert.True(t, res.Overlaps(day(2), day(3)))
	assert.True(t, res.Overlaps(day(1), day(10)))
	assert.False(t, res.Overlaps(day(4), day(6)), "check-in on the departure day")
	assert.False(t, res.Overlaps(day(0), day(1)), "check-out on the arrival day")
	assert.Equal(t, 3, res.Nights())
}

func TestReservationTransitions(t *testing.T) {
	allowed := []struct{ from, to ReservationStatus }{
		{ReservationPending, ReservationConfirmed},
		{ReservationPending, ReservationCancelled},
		{ReservationConfirmed, ReservationConfirmed},
		{ReservationConfirmed, ReservationCheckedIn},
		{ReservationConfirmed, ReservationCancelled},
		{ReservationCheckedIn, ReservationCheckedOut},
		{ReservationCheckedIn, ReservationCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.False(t, ReservationPending.CanTransition(ReservationCheckedIn))
	assert.False(t, ReservationCheckedOut.CanTransition(ReservationCancelled))
	assert.False(t, ReservationCancelled.CanTransition(ReservationConfirmed))

	assert.True(t, ReservationCheckedOut.Terminal())
	assert.True(t, ReservationCancelled.Terminal())
	assert.False(t, ReservationCheckedIn.Terminal())

	assert.True(t, ReservationCheckedIn.Blocking())
	assert.False(t, ReservationCheckedOut.Blocking())

	st, ok := ParseReservationStatus("CHECKED_IN")
	assert.True(t, ok)
	assert.Equal(t, ReservationCheckedIn, st)
	_, ok = ParseReservationStatus("checked_in")
	assert.False(t, ok)
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransition(PaymentSucceeded))
	assert.True(t, PaymentPending.CanTransition(PaymentFailed))
	assert.True(t, PaymentSucceeded.CanTransition(PaymentPartiallyRefunded))
	assert.False(t, PaymentPartiallyRefunded.CanTransition(PaymentRefunded))
	assert.False(t, PaymentFailed.CanTransition(PaymentSucceeded))

	assert.True(t, PaymentPending.Active())
	assert.True(t, PaymentSucceeded.Active())
	assert.False(t, PaymentRefunded.Active())
	assert.True(t, PaymentRefunded.Terminal())
}

func TestRoomFilterMatch(t *testing.T) {
	room := &Room{Type: RoomDeluxe, Capacity: 3, PricePerNight: decimal.RequireFromString("150.00"), Available: true}
	low := decimal.RequireFromString("150")
	high := decimal.RequireFromString("149.99")

	assert.True(t, RoomFilter{}.Match(room))
	assert.True(t, RoomFilter{Type: RoomDeluxe, MinPrice: &low, MinCapacity: 3, AvailableOnly: true}.Match(room))
	assert.False(t, RoomFilter{MaxPrice: &high}.Match(room))
	assert.False(t, RoomFilter{Type: RoomSuite}.Match(room))
	assert.False(t, RoomFilter{MinCapacity: 4}.Match(room))

	room.Available = false
	assert.False(t, RoomFilter{AvailableOnly: true}.Match(room))

	_, ok := ParseRoomType("PENTHOUSE")
	assert.False(t, ok)
}
