// Package pricing computes ride costs from elapsed time and a per-minute rate.
package pricing

import (
	"fmt"
	"time"
)

// FlatFee is the fixed boarding charge, in kr., added to every ride
// regardless of duration.
const FlatFee = 4

// Cost returns the total price for a ride of m whole minutes at rate kr. per
// minute. Partial minutes have already been floored away by ElapsedMinutes.
func Cost(m, rate int) int {
	return m*rate + FlatFee
}

// ElapsedMinutes converts a start/now pair of whole-second epoch timestamps
// into billable minutes. Negative spans (clock skew) clamp to zero.
func ElapsedMinutes(startedAt, now int64) int {
	diff := now - startedAt
	if diff < 0 {
		diff = 0
	}
	return int(diff / 60)
}

// ElapsedSeconds returns the whole seconds between start and now, clamped at
// zero.
func ElapsedSeconds(startedAt, now int64) int64 {
	diff := now - startedAt
	if diff < 0 {
		diff = 0
	}
	return diff
}

// FormatElapsed renders a second count as HH:MM:SS, matching the running
// timer shown in the UI.
func FormatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds / 60) % 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// RunningTotal returns the cost of a ride in progress at the given instant.
func RunningTotal(startedAt int64, rate int, now time.Time) int {
	return Cost(ElapsedMinutes(startedAt, now.Unix()), rate)
}
