package badges

import (
	"time"
)

// Window is one scoring week, stored in UTC. End is the last millisecond of the week.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WindowCalculator derives the canonical week for an instant.
type WindowCalculator struct {
	loc       *time.Location
	weekStart time.Weekday
	grace     time.Duration
}

// NewWindowCalculator creates a calculator for weeks beginning at 00:00 on weekStart in
// loc. Awards expire grace after their window ends.
func NewWindowCalculator(loc *time.Location, weekStart time.Weekday, grace time.Duration) *WindowCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &WindowCalculator{loc: loc, weekStart: weekStart, grace: grace}
}

// CurrentWindow returns the week containing now. It is a pure function of now; callers
// should pass millisecond-truncated instants.
func (c *WindowCalculator) CurrentWindow(now time.Time) Window {
	local := now.In(c.loc)
	back := (int(local.Weekday()) - int(c.weekStart) + 7) % 7
	y, m, d := local.Date()

	start := time.Date(y, m, d-back, 0, 0, 0, 0, c.loc)
	next := time.Date(y, m, d-back+7, 0, 0, 0, 0, c.loc)

	return Window{
		Start: start.UTC(),
		End:   next.Add(-time.Millisecond).UTC(),
	}
}

// ExpiresAt returns the expiry instant for awards of window w.
func (c *WindowCalculator) ExpiresAt(w Window) time.Time {
	return w.End.Add(c.grace)
}

// Location returns the calendar timezone.
func (c *WindowCalculator) Location() *time.Location {
	return c.loc
}
