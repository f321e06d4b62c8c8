// Package ride owns the rental session lifecycle: a user is either idle or
// has exactly one active ride, with a running billing timer until the ride
// ends and is archived to history.
package ride

import (
	"fmt"
	"time"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/pricing"
	"github.com/citydrive/carshare-backend/vehicle"
)

// Clock supplies the current time. Tests substitute a simulated one.
type Clock func() time.Time

// New builds the active-ride record for a rental starting now.
func New(snap vehicle.Snapshot, now time.Time) account.Ride {
	return account.Ride{
		Vehicle:        snap,
		StartedAt:      now.Unix(),
		StartedDisplay: startLabel(now),
	}
}

// startLabel matches the "d/m hh:mm" header on the current-ride card.
func startLabel(t time.Time) string {
	return fmt.Sprintf("%d/%d %02d:%02d", t.Day(), int(t.Month()), t.Hour(), t.Minute())
}

// Progress is the derived view of an active ride at some instant.
type Progress struct {
	Vehicle        vehicle.Snapshot `json:"vehicle"`
	StartedAt      int64            `json:"startedAt"`
	StartedDisplay string           `json:"startedDisplay"`
	ElapsedSeconds int64            `json:"elapsedSeconds"`
	Elapsed        string           `json:"elapsed"`
	RunningTotal   int              `json:"runningTotal"`
}

// ProgressAt computes elapsed time and running cost for r at now.
func ProgressAt(r account.Ride, now time.Time) Progress {
	secs := pricing.ElapsedSeconds(r.StartedAt, now.Unix())
	return Progress{
		Vehicle:        r.Vehicle,
		StartedAt:      r.StartedAt,
		StartedDisplay: r.StartedDisplay,
		ElapsedSeconds: secs,
		Elapsed:        pricing.FormatElapsed(secs),
		RunningTotal:   pricing.RunningTotal(r.StartedAt, r.Vehicle.PricePerMinute, now),
	}
}

// receipt freezes r into its archived form as of now.
func receipt(r account.Ride, now time.Time) account.Receipt {
	p := ProgressAt(r, now)
	return account.Receipt{
		Vehicle: r.Vehicle,
		Elapsed: p.Elapsed,
		Total:   p.RunningTotal,
		Date:    r.StartedDisplay,
		EndedAt: now.Unix(),
	}
}
