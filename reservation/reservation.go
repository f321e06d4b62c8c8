// Package reservation manages future-dated claims on vehicles: each has a
// generated identity, a wall-clock target slot and a countdown that expires
// the reservation when it reaches zero.
package reservation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

var (
	ErrNotFound = errors.New("reservation not found")
	// ErrSlotTaken rejects a second reservation for the same (date, hour,
	// minute) slot.
	ErrSlotTaken   = errors.New("time slot already reserved")
	ErrInvalidSlot = errors.New("invalid reservation time")
)

// Registry owns reservation mutations and one expiry timer per reservation.
// Every mutation runs under the user's record lock, shared with the ride
// manager and the profile handlers. Expiry is also enforced lazily on
// reads, so a restarted process converges without rescheduling.
type Registry struct {
	store  account.Store
	rides  *ride.Manager
	locks  *account.Locks
	logger *slog.Logger
	now    ride.Clock
	loc    *time.Location

	// OnExpire, when set, observes each expired reservation. Set before use.
	OnExpire func(userID string, r account.Reservation)

	// mu guards timers only.
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

type Option func(*Registry)

// WithClock substitutes the time source, for tests.
func WithClock(c ride.Clock) Option {
	return func(r *Registry) { r.now = c }
}

// WithLocation sets the wall-clock location reservations are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) { r.loc = loc }
}

func NewRegistry(store account.Store, rides *ride.Manager, locks *account.Locks, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		rides:  rides,
		locks:  locks,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
		timers: make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reserve books a vehicle for a future slot. Two reservations may not share
// a slot; the slot is an attribute, the generated ID is the identity.
func (g *Registry) Reserve(ctx context.Context, userID string, v vehicle.Vehicle, date string, hour, minute int) (account.Reservation, error) {
	res := account.Reservation{
		ID:      uuid.New(),
		Vehicle: v.Snap(),
		Date:    date,
		Hour:    hour,
		Minute:  minute,
	}
	target, err := g.validate(res)
	if err != nil {
		return account.Reservation{}, err
	}

	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	a, err := g.store.Get(ctx, userID)
	if err != nil {
		return account.Reservation{}, err
	}
	if a.SlotTaken(res.Slot(), res.ID) {
		return account.Reservation{}, ErrSlotTaken
	}

	a.Reservations = append([]account.Reservation{res}, a.Reservations...)
	if err := g.store.Put(ctx, a); err != nil {
		return account.Reservation{}, err
	}

	g.schedule(userID, res.ID, target)
	g.logger.Info("reservation created", "user", userID, "plate", res.Vehicle.Plate, "slot", res.Slot())
	return res, nil
}

// Cancel removes the reservation and its expiry timer.
func (g *Registry) Cancel(ctx context.Context, userID string, id uuid.UUID) error {
	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	a, err := g.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !a.RemoveReservation(id) {
		return ErrNotFound
	}
	if err := g.store.Put(ctx, a); err != nil {
		return err
	}

	g.unschedule(id)
	g.logger.Info("reservation cancelled", "user", userID, "reservation", id)
	return nil
}

// Edit replaces the reservation's slot and restarts its countdown.
func (g *Registry) Edit(ctx context.Context, userID string, id uuid.UUID, date string, hour, minute int) (account.Reservation, error) {
	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	a, err := g.store.Get(ctx, userID)
	if err != nil {
		return account.Reservation{}, err
	}

	idx := -1
	for i, r := range a.Reservations {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return account.Reservation{}, ErrNotFound
	}

	updated := a.Reservations[idx]
	updated.Date, updated.Hour, updated.Minute = date, hour, minute
	target, err := g.validate(updated)
	if err != nil {
		return account.Reservation{}, err
	}
	if a.SlotTaken(updated.Slot(), id) {
		return account.Reservation{}, ErrSlotTaken
	}

	a.Reservations[idx] = updated
	if err := g.store.Put(ctx, a); err != nil {
		return account.Reservation{}, err
	}

	g.unschedule(id)
	g.schedule(userID, id, target)
	g.logger.Info("reservation edited", "user", userID, "reservation", id, "slot", updated.Slot())
	return updated, nil
}

// StartNow converts the reservation into an active ride. It fails with the
// same one-active-ride guard as a direct rent.
func (g *Registry) StartNow(ctx context.Context, userID string, id uuid.UUID) (account.Ride, error) {
	r, err := g.rides.StartFromReservation(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ride.ErrReservationNotFound) {
			return account.Ride{}, ErrNotFound
		}
		return account.Ride{}, err
	}

	g.unschedule(id)
	return r, nil
}

// Countdown reports the time remaining until the reservation's slot,
// clamped at zero once the slot has passed.
func (g *Registry) Countdown(ctx context.Context, userID string, id uuid.UUID) (time.Duration, error) {
	a, err := g.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	res, ok := a.FindReservation(id)
	if !ok {
		return 0, ErrNotFound
	}

	target, err := res.TargetTime(g.loc)
	if err != nil {
		return 0, ErrInvalidSlot
	}
	d := target.Sub(g.now())
	if d < 0 {
		d = 0
	}
	return d, nil
}

// List returns the user's reservations, most recent first, pruning any
// whose slot has already passed.
func (g *Registry) List(ctx context.Context, userID string) ([]account.Reservation, error) {
	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	a, err := g.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	kept := a.Reservations[:0]
	var expired []account.Reservation
	for _, r := range a.Reservations {
		target, terr := r.TargetTime(g.loc)
		if terr == nil && !target.After(now) {
			expired = append(expired, r)
			continue
		}
		kept = append(kept, r)
	}

	if len(expired) > 0 {
		a.Reservations = kept
		if err := g.store.Put(ctx, a); err != nil {
			return nil, err
		}
		for _, r := range expired {
			g.unschedule(r.ID)
			g.notifyExpired(userID, r)
		}
	}

	out := make([]account.Reservation, len(kept))
	copy(out, kept)
	return out, nil
}

// Stop cancels every outstanding expiry timer. Called on server shutdown.
func (g *Registry) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}

func (g *Registry) validate(r account.Reservation) (time.Time, error) {
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return time.Time{}, ErrInvalidSlot
	}
	target, err := r.TargetTime(g.loc)
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	return target, nil
}

// schedule arms the expiry timer for one reservation.
func (g *Registry) schedule(userID string, id uuid.UUID, target time.Time) {
	d := target.Sub(g.now())
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, func() {
		g.expire(userID, id)
	})

	g.mu.Lock()
	g.timers[id] = t
	g.mu.Unlock()
}

// unschedule disarms the timer so a stale callback cannot fire after the
// reservation is gone.
func (g *Registry) unschedule(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.timers[id]; ok {
		t.Stop()
		delete(g.timers, id)
	}
}

// expire removes a reservation whose countdown reached zero. It is
// idempotent: a reservation already cancelled, started or expired is left
// alone.
func (g *Registry) expire(userID string, id uuid.UUID) {
	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := g.store.Get(ctx, userID)
	if err != nil {
		g.logger.Error("reservation expiry failed", "user", userID, "reservation", id, "error", err)
		return
	}
	res, ok := a.FindReservation(id)
	if !ok {
		g.unschedule(id)
		return
	}

	a.RemoveReservation(id)
	if err := g.store.Put(ctx, a); err != nil {
		g.logger.Error("reservation expiry failed", "user", userID, "reservation", id, "error", err)
		return
	}

	g.unschedule(id)
	g.logger.Info("reservation expired", "user", userID, "reservation", id, "slot", res.Slot())
	g.notifyExpired(userID, res)
}

func (g *Registry) notifyExpired(userID string, r account.Reservation) {
	if g.OnExpire != nil {
		g.OnExpire(userID, r)
	}
}
