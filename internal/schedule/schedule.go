// Package schedule computes and formats the due times for a lead's
// follow-up emails. Pure time arithmetic, no side effects.
package schedule

import "time"

// DefaultOffsets are the follow-up delays measured from generation
// time. The first email goes out on the next sweep after generation.
var DefaultOffsets = []time.Duration{0, 60 * time.Minute, 120 * time.Minute}

// Times returns one due timestamp per offset, each generated+offset.
// Offsets are applied in the order given; callers pass a
// non-decreasing list so the resulting slots are in send order.
func Times(generated time.Time, offsets []time.Duration) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, off := range offsets {
		out[i] = generated.Add(off)
	}
	return out
}

// FormatDue renders a due timestamp for display as "MM/DD HH:00".
// Minutes are always shown as :00 because the sweep granularity is one
// hour; the display promises no more precision than the scheduler
// delivers.
func FormatDue(t time.Time) string {
	// Truncate on the wall clock, not absolute time, so zones with
	// fractional-hour offsets still render :00.
	return t.Format("01/02 15") + ":00"
}
