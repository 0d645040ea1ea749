package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/akylbek/payment-system/booking-engine/internal/clock"
	"github.com/akylbek/payment-system/booking-engine/internal/lock"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/repository"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

var errProcessorDown = errors.New("processor unavailable")

type refundCall struct {
	IntentID string
	Amount   int64
	Reason   string
}

// fakeProcessor keeps intents in memory. Intents start unsettled; tests
// settle them explicitly.
type fakeProcessor struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]string
	amounts   map[string]int64
	refunds   []refundCall
	createErr error
	getErr    error
	refundErr error
	hang      bool

	// When set, CreateIntent signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{intents: make(map[string]string), amounts: make(map[string]int64)}
}

func (f *fakeProcessor) CreateIntent(_ context.Context, amount int64, _ string, _ map[string]string) (*models.IntentResult, error) {
	if f.release != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	id := fmt.Sprintf("pi_%d", f.seq)
	f.intents[id] = "requires_payment_method"
	f.amounts[id] = amount
	return &models.IntentResult{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProcessor) GetIntent(ctx context.Context, intentID string) (*models.IntentStatus, error) {
	f.mu.Lock()
	hang, getErr := f.hang, f.getErr
	status, ok := f.intents[intentID]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, fmt.Errorf("no such intent %s", intentID)
	}
	return &models.IntentStatus{
		IntentID:   intentID,
		Status:     status,
		ChargeID:   "ch_" + intentID,
		ReceiptURL: "https://pay.example.test/receipts/" + intentID,
	}, nil
}

func (f *fakeProcessor) Refund(_ context.Context, intentID string, amount int64, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return "", f.refundErr
	}
	f.refunds = append(f.refunds, refundCall{IntentID: intentID, Amount: amount, Reason: reason})
	return fmt.Sprintf("re_%d", len(f.refunds)), nil
}

func (f *fakeProcessor) setStatus(intentID, status string) {
	f.mu.Lock()
	f.intents[intentID] = status
	f.mu.Unlock()
}

func (f *fakeProcessor) refundCalls() []refundCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]refundCall(nil), f.refunds...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.StateChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.StateChangeEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []models.StateChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.StateChangeEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	clock        *clock.Manual
	roomRepo     *repository.MemoryRoomRepository
	resRepo      *repository.MemoryReservationRepository
	payRepo      *repository.MemoryPaymentRepository
	guard        *lock.LocalGuard
	processor    *fakeProcessor
	publisher    *recordingPublisher
	catalog      *CatalogService
	oracle       *AvailabilityOracle
	reservations *ReservationService
	payments     *PaymentService
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		clock:     clock.NewManual(time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)),
		roomRepo:  repository.NewMemoryRoomRepository(),
		resRepo:   repository.NewMemoryReservationRepository(),
		payRepo:   repository.NewMemoryPaymentRepository(),
		guard:     lock.NewLocalGuard(),
		processor: newFakeProcessor(),
		publisher: &recordingPublisher{},
	}
	locks := lock.NewKeyedMutex()
	e.catalog = NewCatalogService(e.roomRepo, e.resRepo, locks, e.clock)
	e.oracle = NewAvailabilityOracle(e.roomRepo, e.resRepo)
	e.reservations = NewReservationService(e.resRepo, e.roomRepo, e.payRepo, e.oracle, locks, e.clock, e.publisher)
	e.payments = NewPaymentService(e.payRepo, e.resRepo, e.processor, e.guard, locks, e.clock, e.publisher, PaymentConfig{
		Currency:         "usd",
		ProcessorTimeout: time.Second,
		ConfirmLockTTL:   time.Minute,
	})
	e.orchestrator = NewOrchestrator(e.reservations, e.payments, e.publisher)
	return e
}

func (e *testEnv) addRoom(t *testing.T, capacity int, rate string) *models.Room {
	t.Helper()
	room, err := e.catalog.CreateRoom(context.Background(), &models.Room{
		Name:          fmt.Sprintf("Room %d-%s", capacity, rate),
		Type:          models.RoomStandard,
		Capacity:      capacity,
		PricePerNight: decimal.RequireFromString(rate),
		Available:     true,
	})
	require.NoError(t, err)
	return room
}

func (e *testEnv) book(roomID string, checkIn, checkOut time.Time, guests int) (*models.Reservation, error) {
	return e.reservations.Create(context.Background(), CreateReservationInput{
		UserID:   "guest-1",
		RoomID:   roomID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   guests,
	})
}

// pay runs the happy payment path: intent, processor settlement, confirm.
func (e *testEnv) pay(t *testing.T, reservationID string) *models.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := e.payments.CreateIntent(ctx, reservationID)
	require.NoError(t, err)
	e.processor.setStatus(p.IntentID, models.IntentSucceeded)
	p, err = e.payments.Confirm(ctx, p.IntentID)
	require.NoError(t, err)
	return p
}

func june(day int) time.Time {
	return models.Date(2025, time.June, day)
}

// recordSpans routes the package tracer into an in-memory recorder for the
// rest of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := telemetry.Tracer
	telemetry.Tracer = tp.Tracer("test")
	t.Cleanup(func() {
		telemetry.Tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	return names
}
