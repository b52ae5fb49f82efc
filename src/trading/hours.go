package trading

import "time"

// SessionWindow describes the exchange trading session in its local
// timezone. All checks convert the supplied instant into the session
// location first, so callers can pass clock readings from any zone.
type SessionWindow struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int

	// StopNewTrades is how long before the close new entries are blocked.
	// Open positions are still managed and exited inside this window.
	StopNewTrades time.Duration
}

// NSEWindow returns the NSE equity derivatives session, 09:15 to 15:30 IST,
// with new entries blocked in the final 15 minutes.
func NSEWindow() SessionWindow {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// IST has no DST; a fixed offset is equivalent.
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return SessionWindow{
		Location:      loc,
		OpenHour:      9,
		OpenMinute:    15,
		CloseHour:     15,
		CloseMinute:   30,
		StopNewTrades: 15 * time.Minute,
	}
}

// openAt and closeAt return the session boundaries for the day containing t
func (w SessionWindow) openAt(t time.Time) time.Time {
	t = t.In(w.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), w.OpenHour, w.OpenMinute, 0, 0, w.Location)
}

func (w SessionWindow) closeAt(t time.Time) time.Time {
	t = t.In(w.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), w.CloseHour, w.CloseMinute, 0, 0, w.Location)
}

// IsOpen reports whether the session is open at t. Weekends are closed;
// exchange holidays are not modelled and must be handled operationally.
func (w SessionWindow) IsOpen(t time.Time) bool {
	local := t.In(w.Location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !local.Before(w.openAt(t)) && local.Before(w.closeAt(t))
}

// AllowNewEntries reports whether a new position may be opened at t: the
// session must be open and the close must be further away than the
// stop-new-trades cutoff.
func (w SessionWindow) AllowNewEntries(t time.Time) bool {
	if !w.IsOpen(t) {
		return false
	}
	return w.closeAt(t).Sub(t.In(w.Location)) > w.StopNewTrades
}

// TimeToClose returns the remaining session time at t, zero if closed
func (w SessionWindow) TimeToClose(t time.Time) time.Duration {
	if !w.IsOpen(t) {
		return 0
	}
	return w.closeAt(t).Sub(t.In(w.Location))
}
