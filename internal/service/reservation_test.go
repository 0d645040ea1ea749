package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

func TestBookingLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	a, err := e.book(room.ID, june(1), june(4), 2)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, a.Status)
	assert.Equal(t, "300.00", a.TotalAmount.StringFixed(2))

	_, err = e.book(room.ID, june(3), june(5), 1)
	assert.True(t, errors.Is(err, apperrors.ErrResourceUnavailable))

	c, err := e.book(room.ID, june(4), june(6), 1)
	require.NoError(t, err)
	assert.Equal(t, "200.00", c.TotalAmount.StringFixed(2))

	p := e.pay(t, a.ID)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.Equal(t, "300.00", p.Amount.StringFixed(2))

	confirmed, err := e.reservations.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, confirmed.Status)

	cancelled, err := e.reservations.Cancel(ctx, a.ID, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, cancelled.Status)
	assert.Equal(t, "change of plans", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	refunded, err := e.payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundAmount)
	assert.Equal(t, "300.00", refunded.RefundAmount.StringFixed(2))

	// The freed interval is bookable again.
	_, err = e.book(room.ID, june(1), june(4), 2)
	assert.NoError(t, err)
}

func TestCreateAdjacentStaysDoNotConflict(t *testing.T) {
	e := newTestEnv(t)
	room := e.addRoom(t, 2, "80.00")

	_, err := e.book(room.ID, june(10), june(12), 1)
	require.NoError(t, err)

	_, err = e.book(room.ID, june(12), june(14), 1)
	assert.NoError(t, err, "check-out day is free for the next check-in")
	_, err = e.book(room.ID, june(8), june(10), 1)
	assert.NoError(t, err)
	_, err = e.book(room.ID, june(11), june(13), 1)
	assert.True(t, errors.Is(err, apperrors.ErrResourceUnavailable))
}

func TestCreateCapacityExceeded(t *testing.T) {
	e := newTestEnv(t)
	room := e.addRoom(t, 2, "100.00")
	before := testutil.ToFloat64(telemetry.BookingRejections.WithLabelValues("capacity"))

	_, err := e.book(room.ID, june(1), june(2), 3)
	assert.Equal(t, apperrors.KindCapacityExceeded, apperrors.KindOf(err))
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.BookingRejections.WithLabelValues("capacity")))

	stored, err := e.resRepo.ListByRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t)
	room := e.addRoom(t, 2, "100.00")

	cases := []struct {
		name     string
		roomID   string
		in, out  time.Time
		guests   int
		wantKind apperrors.Kind
	}{
		{"check-out equals check-in", room.ID, june(5), june(5), 1, apperrors.KindInvalidInput},
		{"check-out before check-in", room.ID, june(5), june(3), 1, apperrors.KindInvalidInput},
		{"no guests", room.ID, june(1), june(2), 0, apperrors.KindInvalidInput},
		{"unknown room", "missing", june(1), june(2), 1, apperrors.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.book(tc.roomID, tc.in, tc.out, tc.guests)
			assert.Equal(t, tc.wantKind, apperrors.KindOf(err))
		})
	}
}

func TestCreateTruncatesTimeOfDay(t *testing.T) {
	e := newTestEnv(t)
	room := e.addRoom(t, 2, "120.50")

	res, err := e.book(room.ID,
		time.Date(2025, time.June, 1, 15, 0, 0, 0, time.UTC),
		time.Date(2025, time.June, 3, 11, 0, 0, 0, time.UTC),
		1)
	require.NoError(t, err)
	assert.Equal(t, june(1), res.CheckIn)
	assert.Equal(t, june(3), res.CheckOut)
	assert.Equal(t, 2, res.Nights())
	assert.Equal(t, "241.00", res.TotalAmount.StringFixed(2))
}

func TestCreateClosedRoom(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")
	room.Available = false
	_, err := e.catalog.UpdateRoom(ctx, room.ID, room)
	require.NoError(t, err)

	_, err = e.book(room.ID, june(1), june(2), 1)
	assert.Equal(t, apperrors.KindResourceUnavailable, apperrors.KindOf(err))
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	e := newTestEnv(t)
	room := e.addRoom(t, 4, "100.00")
	other := e.addRoom(t, 4, "100.00")

	const callers = 16
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		conflicts   int
		otherErrors []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.book(room.ID, june(1), june(4), 2)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperrors.ErrResourceUnavailable):
				conflicts++
			default:
				otherErrors = append(otherErrors, err)
			}
		}()
	}
	// A different room never contends with the first.
	_, err := e.book(other.ID, june(1), june(4), 2)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
	assert.Empty(t, otherErrors)
}

// TestNoOverlapUnderRandomLoad drives random create/update/cancel calls from
// several goroutines and checks that blocking reservations never overlap.
func TestNoOverlapUnderRandomLoad(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rooms := []*models.Room{
		e.addRoom(t, 3, "90.00"),
		e.addRoom(t, 3, "110.00"),
		e.addRoom(t, 3, "150.00"),
	}

	var (
		mu  sync.Mutex
		ids []string
		wg  sync.WaitGroup
	)
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			randomStay := func() (time.Time, time.Time) {
				in := june(1).AddDate(0, 0, rng.Intn(30))
				return in, in.AddDate(0, 0, 1+rng.Intn(5))
			}
			pick := func() string {
				mu.Lock()
				defer mu.Unlock()
				if len(ids) == 0 {
					return ""
				}
				return ids[rng.Intn(len(ids))]
			}

			for op := 0; op < 150; op++ {
				switch n := rng.Intn(10); {
				case n < 6:
					in, out := randomStay()
					res, err := e.book(rooms[rng.Intn(len(rooms))].ID, in, out, 1+rng.Intn(3))
					if err == nil {
						mu.Lock()
						ids = append(ids, res.ID)
						mu.Unlock()
					}
				case n < 8:
					if id := pick(); id != "" {
						in, out := randomStay()
						_, _ = e.reservations.Update(ctx, id, UpdateReservationInput{CheckIn: in, CheckOut: out, Guests: 1})
					}
				default:
					if id := pick(); id != "" {
						_, _ = e.reservations.Cancel(ctx, id, "random")
					}
				}
			}
		}(int64(worker + 1))
	}
	wg.Wait()

	for _, room := range rooms {
		all, err := e.resRepo.ListByRoom(ctx, room.ID)
		require.NoError(t, err)
		var blocking []*models.Reservation
		for _, r := range all {
			if r.Status.Blocking() {
				blocking = append(blocking, r)
			}
		}
		for i := range blocking {
			for j := i + 1; j < len(blocking); j++ {
				a, b := blocking[i], blocking[j]
				assert.False(t, a.Overlaps(b.CheckIn, b.CheckOut),
					"room %s: %s [%s,%s) overlaps %s [%s,%s)", room.ID,
					a.ID, a.CheckIn.Format(models.DateLayout), a.CheckOut.Format(models.DateLayout),
					b.ID, b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout))
			}
		}
	}
}

func TestCancelTerminalReservations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	res, err := e.book(room.ID, june(1), june(3), 1)
	require.NoError(t, err)
	_, err = e.reservations.Cancel(ctx, res.ID, "first")
	require.NoError(t, err)
	_, err = e.reservations.Cancel(ctx, res.ID, "second")
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	stored, err := e.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.CancellationReason)

	stay, err := e.book(room.ID, june(5), june(7), 1)
	require.NoError(t, err)
	e.pay(t, stay.ID)
	_, err = e.reservations.CheckIn(ctx, stay.ID)
	require.NoError(t, err)
	_, err = e.reservations.CheckOut(ctx, stay.ID)
	require.NoError(t, err)
	_, err = e.reservations.Cancel(ctx, stay.ID, "too late")
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	_, err = e.reservations.Cancel(ctx, "missing", "")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCheckedOutStayFreesRoom(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	res, err := e.book(room.ID, june(1), june(3), 1)
	require.NoError(t, err)
	_, err = e.reservations.CheckIn(ctx, res.ID)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err), "pending stays cannot check in")

	e.pay(t, res.ID)
	_, err = e.reservations.CheckIn(ctx, res.ID)
	require.NoError(t, err)

	busy, err := e.oracle.Overlaps(ctx, room.ID, june(2), june(4), "")
	require.NoError(t, err)
	assert.True(t, busy)

	out, err := e.reservations.CheckOut(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedOut, out.Status)

	busy, err = e.oracle.Overlaps(ctx, room.ID, june(2), june(4), "")
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestConfirmIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")
	res, err := e.book(room.ID, june(1), june(2), 1)
	require.NoError(t, err)

	first, err := e.reservations.Confirm(ctx, res.ID)
	require.NoError(t, err)
	second, err := e.reservations.Confirm(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, first.Status)
	assert.Equal(t, models.ReservationConfirmed, second.Status)

	_, err = e.reservations.Confirm(ctx, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestUpdateReservation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	res, err := e.book(room.ID, june(1), june(4), 1)
	require.NoError(t, err)
	_, err = e.book(room.ID, june(6), june(8), 1)
	require.NoError(t, err)

	t.Run("overlapping its own interval", func(t *testing.T) {
		updated, err := e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(2), CheckOut: june(6), Guests: 2})
		require.NoError(t, err)
		assert.Equal(t, "400.00", updated.TotalAmount.StringFixed(2))
		assert.Equal(t, 2, updated.Guests)
	})

	t.Run("into another stay", func(t *testing.T) {
		_, err := e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(5), CheckOut: june(7), Guests: 1})
		assert.Equal(t, apperrors.KindResourceUnavailable, apperrors.KindOf(err))
	})

	t.Run("over capacity", func(t *testing.T) {
		_, err := e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(2), CheckOut: june(6), Guests: 3})
		assert.Equal(t, apperrors.KindCapacityExceeded, apperrors.KindOf(err))
	})

	t.Run("with active payment", func(t *testing.T) {
		_, err := e.payments.CreateIntent(ctx, res.ID)
		require.NoError(t, err)
		_, err = e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(2), CheckOut: june(5), Guests: 1})
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		_, err := e.reservations.Cancel(ctx, res.ID, "")
		require.NoError(t, err)
		_, err = e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(2), CheckOut: june(5), Guests: 1})
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := e.reservations.Update(ctx, "missing", UpdateReservationInput{CheckIn: june(2), CheckOut: june(5), Guests: 1})
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})

	stored, err := e.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("400")))
}

func TestUpdateWaitsForIntentInFlight(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")
	res, err := e.book(room.ID, june(1), june(4), 1)
	require.NoError(t, err)

	e.processor.entered = make(chan struct{})
	e.processor.release = make(chan struct{})

	intentDone := make(chan error, 1)
	go func() {
		_, err := e.payments.CreateIntent(ctx, res.ID)
		intentDone <- err
	}()
	<-e.processor.entered

	updateDone := make(chan error, 1)
	go func() {
		_, err := e.reservations.Update(ctx, res.ID, UpdateReservationInput{CheckIn: june(1), CheckOut: june(10), Guests: 1})
		updateDone <- err
	}()

	select {
	case err := <-updateDone:
		t.Fatalf("update finished while the intent was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(e.processor.release)
	require.NoError(t, <-intentDone)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(<-updateDone))

	stored, err := e.reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	payments, err := e.payments.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "300.00", stored.TotalAmount.StringFixed(2))
	assert.True(t, payments[0].Amount.Equal(stored.TotalAmount), "payment %s vs total %s", payments[0].Amount, stored.TotalAmount)
	assert.True(t, stored.CheckOut.Equal(june(4)))
}

func TestListReservations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	first, err := e.book(room.ID, june(1), june(2), 1)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	second, err := e.book(room.ID, june(3), june(4), 1)
	require.NoError(t, err)
	_, err = e.reservations.Cancel(ctx, first.ID, "")
	require.NoError(t, err)

	byUser, err := e.reservations.ListByUser(ctx, "guest-1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, second.ID, byUser[0].ID, "newest first")

	byRoom, err := e.reservations.ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, byRoom, 2)
	assert.Equal(t, first.ID, byRoom[0].ID, "ordered by check-in")

	pending, err := e.reservations.ListByStatus(ctx, models.ReservationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	_, err = e.reservations.ListByRoom(ctx, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestReservationEventsPublished(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	room := e.addRoom(t, 2, "100.00")

	res, err := e.book(room.ID, june(1), june(2), 1)
	require.NoError(t, err)
	_, err = e.reservations.Cancel(ctx, res.ID, "no longer needed")
	require.NoError(t, err)

	var states []string
	for _, ev := range e.publisher.ofType(models.EventStateChanged) {
		if ev.Entity == models.EntityReservation && ev.ID == res.ID {
			states = append(states, ev.PreviousState+">"+ev.State)
		}
	}
	assert.Equal(t, []string{">PENDING", "PENDING>CANCELLED"}, states)
}
