package reservation

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/pricing"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func testVehicle() vehicle.Vehicle {
	return vehicle.DemoFleet()[0]
}

func newTestRegistry(t *testing.T) (*Registry, *ride.Manager, *fakeClock, account.Store) {
	t.Helper()

	store := account.NewMemStore()
	clock := newFakeClock()
	locks := account.NewLocks()
	rides := ride.NewManager(store, locks, slog.Default(), ride.WithClock(clock.Now))
	t.Cleanup(rides.Stop)

	g := NewRegistry(store, rides, locks, slog.Default(), WithClock(clock.Now), WithLocation(time.UTC))
	t.Cleanup(g.Stop)

	err := store.Put(context.Background(), account.New("user-1", "Test User", "test@example.com", "12345678"))
	require.NoError(t, err)

	return g, rides, clock, store
}

func TestReserveAndCancel(t *testing.T) {
	g, _, _, store := newTestRegistry(t)
	ctx := context.Background()

	// slot five minutes out
	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 14, 35)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.ID)
	assert.Equal(t, "2024-05-17 14:35", res.Slot())

	require.NoError(t, g.Cancel(ctx, "user-1", res.ID))

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, a.Reservations)
	assert.Nil(t, a.CurrentRide, "cancelling must not create a ride")

	assert.ErrorIs(t, g.Cancel(ctx, "user-1", res.ID), ErrNotFound)
}

func TestReserveRejectsDuplicateSlot(t *testing.T) {
	g, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 0)
	require.NoError(t, err)

	_, err = g.Reserve(ctx, "user-1", vehicle.DemoFleet()[1], "2024-05-18", 9, 0)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestReserveValidatesSlot(t *testing.T) {
	g, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := g.Reserve(ctx, "user-1", testVehicle(), "not-a-date", 9, 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 24, 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 60)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestEditReplacesSlotAndKeepsIdentity(t *testing.T) {
	g, _, _, store := newTestRegistry(t)
	ctx := context.Background()

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 0)
	require.NoError(t, err)

	updated, err := g.Edit(ctx, "user-1", res.ID, "2024-05-19", 10, 30)
	require.NoError(t, err)
	assert.Equal(t, res.ID, updated.ID)
	assert.Equal(t, "2024-05-19 10:30", updated.Slot())

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, a.Reservations, 1)
	assert.Equal(t, updated, a.Reservations[0])

	_, err = g.Edit(ctx, "user-1", uuid.New(), "2024-05-19", 11, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditRejectsOccupiedSlot(t *testing.T) {
	g, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 0)
	require.NoError(t, err)
	second, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 10, 0)
	require.NoError(t, err)

	_, err = g.Edit(ctx, "user-1", second.ID, "2024-05-18", 9, 0)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// editing a reservation onto its own slot is fine
	_, err = g.Edit(ctx, "user-1", second.ID, "2024-05-18", 10, 0)
	assert.NoError(t, err)
}

func TestStartNow(t *testing.T) {
	g, _, _, store := newTestRegistry(t)
	ctx := context.Background()

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 15, 0)
	require.NoError(t, err)

	r, err := g.StartNow(ctx, "user-1", res.ID)
	require.NoError(t, err)
	assert.Equal(t, "AB 12345", r.Vehicle.Plate)

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, a.Reservations, "reservation is consumed")
	require.NotNil(t, a.CurrentRide)
	assert.Zero(t, a.Balance, "starting a ride must not touch the balance")
}

func TestStartNowRequiresIdle(t *testing.T) {
	g, rides, _, store := newTestRegistry(t)
	ctx := context.Background()

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 15, 0)
	require.NoError(t, err)

	_, err = rides.Start(ctx, "user-1", vehicle.DemoFleet()[1].Snap())
	require.NoError(t, err)

	_, err = g.StartNow(ctx, "user-1", res.ID)
	assert.True(t, ride.IsRideInProgress(err))

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, a.Reservations, 1, "reservation survives the failed start")
}

func TestStartNowUnknownReservation(t *testing.T) {
	g, _, _, _ := newTestRegistry(t)

	_, err := g.StartNow(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountdown(t *testing.T) {
	g, _, clock, _ := newTestRegistry(t)
	ctx := context.Background()

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 14, 35)
	require.NoError(t, err)

	d, err := g.Countdown(ctx, "user-1", res.ID)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	clock.Advance(4 * time.Minute)
	d, err = g.Countdown(ctx, "user-1", res.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	// past the slot the countdown clamps at zero
	clock.Advance(10 * time.Minute)
	d, err = g.Countdown(ctx, "user-1", res.ID)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestListPrunesExpired(t *testing.T) {
	g, rides, clock, store := newTestRegistry(t)
	ctx := context.Background()

	var expired []account.Reservation
	var mu sync.Mutex
	g.OnExpire = func(_ string, r account.Reservation) {
		mu.Lock()
		expired = append(expired, r)
		mu.Unlock()
	}

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 14, 35)
	require.NoError(t, err)
	keep, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 0)
	require.NoError(t, err)

	// an active ride must not be disturbed by expiry
	_, err = rides.Start(ctx, "user-1", vehicle.DemoFleet()[1].Snap())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	list, err := g.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	mu.Lock()
	require.Len(t, expired, 1)
	assert.Equal(t, res.ID, expired[0].ID)
	mu.Unlock()

	// pruning again is a no-op
	list, err = g.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	mu.Lock()
	assert.Len(t, expired, 1, "expiry fires exactly once")
	mu.Unlock()

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, a.CurrentRide, "expiry must not touch the active ride")
}

func TestExpireIsIdempotent(t *testing.T) {
	g, _, clock, store := newTestRegistry(t)
	ctx := context.Background()

	var count int
	var mu sync.Mutex
	g.OnExpire = func(string, account.Reservation) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	res, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 14, 35)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	g.expire("user-1", res.ID)
	g.expire("user-1", res.ID)

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, a.Reservations)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

// gatedStore parks the next Put until released, holding its caller inside
// the write so another operation can be aimed at the same record.
type gatedStore struct {
	inner account.Store

	mu      sync.Mutex
	hold    chan struct{}
	entered chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, userID string) (account.Account, error) {
	return s.inner.Get(ctx, userID)
}

func (s *gatedStore) Put(ctx context.Context, a account.Account) error {
	s.mu.Lock()
	hold, entered := s.hold, s.entered
	s.hold, s.entered = nil, nil
	s.mu.Unlock()

	if hold != nil {
		close(entered)
		<-hold
	}
	return s.inner.Put(ctx, a)
}

func (s *gatedStore) parkNextPut() (release func(), entered chan struct{}) {
	hold := make(chan struct{})
	entered = make(chan struct{})
	s.mu.Lock()
	s.hold, s.entered = hold, entered
	s.mu.Unlock()
	return func() { close(hold) }, entered
}

func TestReserveOverlappingEndKeepsBothWrites(t *testing.T) {
	store := &gatedStore{inner: account.NewMemStore()}
	clock := newFakeClock()
	locks := account.NewLocks()
	rides := ride.NewManager(store, locks, slog.Default(), ride.WithClock(clock.Now))
	t.Cleanup(rides.Stop)
	g := NewRegistry(store, rides, locks, slog.Default(), WithClock(clock.Now), WithLocation(time.UTC))
	t.Cleanup(g.Stop)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, account.New("user-1", "", "", "")))

	_, err := rides.Start(ctx, "user-1", testVehicle().Snap())
	require.NoError(t, err)

	// Park Reserve mid-write, then end the ride while it is parked.
	release, entered := store.parkNextPut()

	reserveErr := make(chan error, 1)
	go func() {
		_, rerr := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-18", 9, 0)
		reserveErr <- rerr
	}()
	<-entered

	var (
		ended  bool
		endErr error
	)
	endDone := make(chan struct{})
	go func() {
		defer close(endDone)
		_, ended, endErr = rides.End(ctx, "user-1")
	}()

	// let End reach the record lock before letting Reserve finish
	time.Sleep(20 * time.Millisecond)
	release()

	require.NoError(t, <-reserveErr)
	<-endDone
	require.NoError(t, endErr)
	assert.True(t, ended)

	a, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, a.CurrentRide, "ended ride must stay ended")
	assert.Equal(t, -pricing.FlatFee, a.Balance)
	require.Len(t, a.History, 1)
	assert.Len(t, a.Reservations, 1)
}

func TestPastSlotExpiresViaTimer(t *testing.T) {
	g, _, clock, store := newTestRegistry(t)
	ctx := context.Background()

	// fake clock sits after the slot, so the timer arms at zero delay
	clock.Advance(24 * time.Hour)

	_, err := g.Reserve(ctx, "user-1", testVehicle(), "2024-05-17", 14, 35)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		a, gerr := store.Get(ctx, "user-1")
		return gerr == nil && len(a.Reservations) == 0
	}, time.Second, 5*time.Millisecond)
}
