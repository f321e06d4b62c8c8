// Package account holds the per-user record: profile, balance, payment
// cards, the current ride, reservations and ride history. The record is
// persisted whole; callers read it, mutate it and write it back.
package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citydrive/carshare-backend/vehicle"
)

type Account struct {
	// ID is the auth provider's subject for this user. It is the storage
	// key, not part of the record body.
	ID string `json:"-"`

	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`

	// Balance in kr. May go negative when a ride costs more than the
	// prepaid amount.
	Balance int `json:"balance"`

	Cards        []Card        `json:"cards"`
	CurrentRide  *Ride         `json:"currentRide,omitempty"`
	Reservations []Reservation `json:"reservations"`
	History      []Receipt     `json:"history"`
}

// New returns a fresh record for a first sign-in.
func New(id, name, email, phone string) Account {
	return Account{
		ID:           id,
		Name:         name,
		Email:        email,
		Phone:        phone,
		Cards:        []Card{},
		Reservations: []Reservation{},
		History:      []Receipt{},
	}
}

type Card struct {
	Holder      string `json:"holder"`
	Number      string `json:"number"`
	ExpireMonth string `json:"expireMonth"`
	ExpireYear  string `json:"expireYear"`
	CVV         string `json:"cvv"`
	// Type is the card scheme selected in the UI (e.g. "visa",
	// "mastercard").
	Type string `json:"type"`
}

// Last4 returns the trailing digits shown on the stored-card tiles.
func (c Card) Last4() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Ride is an active rental. At most one exists per account.
type Ride struct {
	Vehicle vehicle.Snapshot `json:"vehicle"`
	// StartedAt is a whole-second epoch timestamp.
	StartedAt int64 `json:"startedAt"`
	// StartedDisplay is the "d/m hh:mm" label shown on the ride card.
	StartedDisplay string `json:"startedDisplay"`
}

// Receipt is the immutable summary of a completed ride.
type Receipt struct {
	Vehicle vehicle.Snapshot `json:"vehicle"`
	// Elapsed is the final timer value, HH:MM:SS.
	Elapsed string `json:"elapsed"`
	Total   int    `json:"total"`
	// Date is the ride's start label, EndedAt the exact end instant.
	Date    string `json:"date"`
	EndedAt int64  `json:"endedAt"`
}

// Reservation is a future-dated claim on a vehicle. The time slot is an
// attribute; identity is the generated ID.
type Reservation struct {
	ID      uuid.UUID        `json:"id"`
	Vehicle vehicle.Snapshot `json:"vehicle"`
	// Date is the target day, "2006-01-02" local wall-clock.
	Date   string `json:"date"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// Slot is the (date, hour, minute) composite two reservations may not share.
func (r Reservation) Slot() string {
	return fmt.Sprintf("%s %02d:%02d", r.Date, r.Hour, r.Minute)
}

// TargetTime resolves the reservation's wall-clock slot in loc.
func (r Reservation) TargetTime(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", r.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(r.Hour)*time.Hour + time.Duration(r.Minute)*time.Minute), nil
}

// AddCard prepends, keeping most-recent-first order.
func (a *Account) AddCard(c Card) {
	a.Cards = append([]Card{c}, a.Cards...)
}

// RemoveCard deletes the first card with a matching number and reports
// whether one was found.
func (a *Account) RemoveCard(number string) bool {
	for i, c := range a.Cards {
		if c.Number == number {
			a.Cards = append(a.Cards[:i], a.Cards[i+1:]...)
			return true
		}
	}
	return false
}

// Archive prepends a receipt, keeping most-recent-first order.
func (a *Account) Archive(r Receipt) {
	a.History = append([]Receipt{r}, a.History...)
}

// FindReservation returns the reservation with the given ID, if present.
func (a *Account) FindReservation(id uuid.UUID) (Reservation, bool) {
	for _, r := range a.Reservations {
		if r.ID == id {
			return r, true
		}
	}
	return Reservation{}, false
}

// RemoveReservation deletes by ID and reports whether one was found.
func (a *Account) RemoveReservation(id uuid.UUID) bool {
	for i, r := range a.Reservations {
		if r.ID == id {
			a.Reservations = append(a.Reservations[:i], a.Reservations[i+1:]...)
			return true
		}
	}
	return false
}

// SlotTaken reports whether any reservation other than except occupies the
// given slot.
func (a *Account) SlotTaken(slot string, except uuid.UUID) bool {
	for _, r := range a.Reservations {
		if r.ID != except && r.Slot() == slot {
			return true
		}
	}
	return false
}
