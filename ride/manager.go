package ride

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/vehicle"
)

var (
	// ErrNoActiveRide is returned by Progress when the user is idle.
	ErrNoActiveRide = errors.New("no ride in progress")
	// ErrReservationNotFound is returned by StartFromReservation.
	ErrReservationNotFound = errors.New("reservation not found")
)

type rideInProgressError struct {
	plate string
}

func (e *rideInProgressError) Error() string {
	return "ride in progress on vehicle " + e.plate
}

// PlateFromRideInProgressError reports the plate of the vehicle blocking a
// start attempt, when err is that kind of conflict.
func PlateFromRideInProgressError(err error) (string, bool) {
	var riperr *rideInProgressError
	if errors.As(err, &riperr) {
		return riperr.plate, true
	}
	return "", false
}

// IsRideInProgress reports whether err is the one-active-ride guard firing.
func IsRideInProgress(err error) bool {
	var riperr *rideInProgressError
	return errors.As(err, &riperr)
}

// Manager owns the ride transitions and one billing ticker per active ride.
// Every transition runs under the user's record lock, shared with the
// reservation registry and the profile handlers, so no writer can clobber
// another's changes to the account record.
type Manager struct {
	store  account.Store
	locks  *account.Locks
	logger *slog.Logger
	now    Clock
	tick   time.Duration

	// OnTick, when set, observes each recomputed Progress. Set before use.
	OnTick func(userID string, p Progress)

	// mu guards tickers only.
	mu      sync.Mutex
	tickers map[string]chan struct{}
}

type Option func(*Manager)

// WithClock substitutes the time source, for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.now = c }
}

// WithTickInterval changes the billing tick cadence from the default second.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.tick = d }
}

func NewManager(store account.Store, locks *account.Locks, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   locks,
		logger:  logger,
		now:     time.Now,
		tick:    time.Second,
		tickers: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a ride on the given vehicle. It fails when the user already
// has an active ride, leaving that ride untouched.
func (m *Manager) Start(ctx context.Context, userID string, snap vehicle.Snapshot) (account.Ride, error) {
	m.locks.Lock(userID)
	defer m.locks.Unlock(userID)

	return m.start(ctx, userID, snap, uuid.Nil)
}

// StartFromReservation converts one of the user's reservations into an
// active ride. The reservation is consumed in the same write; the balance
// is untouched.
func (m *Manager) StartFromReservation(ctx context.Context, userID string, reservationID uuid.UUID) (account.Ride, error) {
	m.locks.Lock(userID)
	defer m.locks.Unlock(userID)

	return m.start(ctx, userID, vehicle.Snapshot{}, reservationID)
}

// start is the single transition out of Idle. consume is the reservation
// supplying the vehicle and removed in the same write, or uuid.Nil when
// renting directly with snap. Caller holds the user's record lock.
func (m *Manager) start(ctx context.Context, userID string, snap vehicle.Snapshot, consume uuid.UUID) (account.Ride, error) {
	a, err := m.store.Get(ctx, userID)
	if err != nil {
		return account.Ride{}, err
	}

	if a.CurrentRide != nil {
		return account.Ride{}, &rideInProgressError{plate: a.CurrentRide.Vehicle.Plate}
	}

	if consume != uuid.Nil {
		res, ok := a.FindReservation(consume)
		if !ok {
			return account.Ride{}, ErrReservationNotFound
		}
		snap = res.Vehicle
		a.RemoveReservation(consume)
	}

	r := New(snap, m.now())
	a.CurrentRide = &r
	if err := m.store.Put(ctx, a); err != nil {
		return account.Ride{}, err
	}

	m.startTicker(userID)
	m.logger.Info("ride started", "user", userID, "plate", snap.Plate, "rate", snap.PricePerMinute)
	return r, nil
}

// Progress returns the active ride's elapsed time and running total, or
// ErrNoActiveRide.
func (m *Manager) Progress(ctx context.Context, userID string) (Progress, error) {
	a, err := m.store.Get(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	if a.CurrentRide == nil {
		return Progress{}, ErrNoActiveRide
	}
	return ProgressAt(*a.CurrentRide, m.now()), nil
}

// End finishes the active ride: a receipt is prepended to history, the
// total is debited from the balance, the ride is cleared and its ticker
// cancelled. Ending with no active ride is a no-op, reported by ok=false.
func (m *Manager) End(ctx context.Context, userID string) (rcpt account.Receipt, ok bool, err error) {
	m.locks.Lock(userID)
	defer m.locks.Unlock(userID)

	a, err := m.store.Get(ctx, userID)
	if err != nil {
		return account.Receipt{}, false, err
	}
	if a.CurrentRide == nil {
		return account.Receipt{}, false, nil
	}

	rcpt = receipt(*a.CurrentRide, m.now())
	a.Archive(rcpt)
	a.Balance -= rcpt.Total
	a.CurrentRide = nil

	if err := m.store.Put(ctx, a); err != nil {
		return account.Receipt{}, false, err
	}

	m.stopTicker(userID)
	m.logger.Info("ride ended", "user", userID, "plate", rcpt.Vehicle.Plate, "total", rcpt.Total, "elapsed", rcpt.Elapsed)
	return rcpt, true, nil
}

// Stop cancels every outstanding billing ticker. Called on server shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, stop := range m.tickers {
		close(stop)
		delete(m.tickers, userID)
	}
}

// startTicker schedules the recurring billing recomputation for userID.
func (m *Manager) startTicker(userID string) {
	m.mu.Lock()
	if stop, ok := m.tickers[userID]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	m.tickers[userID] = stop
	m.mu.Unlock()

	go func() {
		t := time.NewTicker(m.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if !m.fireTick(userID) {
					return
				}
			}
		}
	}()
}

// fireTick recomputes progress for one tick. A tick that lands after the
// ride has ended finds no active ride and reports false so the loop exits
// instead of touching cleared state.
func (m *Manager) fireTick(userID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.tick)
	defer cancel()

	p, err := m.Progress(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNoActiveRide) {
			m.logger.Error("billing tick failed", "user", userID, "error", err)
		}
		return false
	}

	if m.OnTick != nil {
		m.OnTick(userID, p)
	}
	return true
}

// stopTicker cancels the billing ticker for userID.
func (m *Manager) stopTicker(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stop, ok := m.tickers[userID]; ok {
		close(stop)
		delete(m.tickers, userID)
	}
}
