package logic

import "time"

// onAt returns the ON time on the calendar day of t.
func onAt(t time.Time, p Params) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, p.OnHour, p.OnMinute, 0, 0, t.Location())
}

// within reports whether t lies in [start, start+d).
func within(t, start time.Time, d time.Duration) bool {
	return !t.Before(start) && t.Before(start.Add(d))
}

// Desired returns the light state the schedule dictates at now.
//
// Two windows are checked: the one anchored at today's ON time and the one
// anchored at yesterday's, which covers the part of an overnight photoperiod
// that spills past midnight.
func Desired(now time.Time, p Params) State {
	todayOn := onAt(now, p)
	if within(now, todayOn, p.Photoperiod) {
		return StateOn
	}
	if within(now, todayOn.AddDate(0, 0, -1), p.Photoperiod) {
		return StateOn
	}
	return StateOff
}

// NextOn returns the ON alarm target for a schedule computed at now: today's
// ON time while the current hour is before OnHour, otherwise tomorrow's.
// Only the hour is compared.
func NextOn(now time.Time, p Params) time.Time {
	on := onAt(now, p)
	if now.Hour() >= p.OnHour {
		on = on.AddDate(0, 0, 1)
	}
	return on
}

// NextOff returns the OFF alarm target for the photoperiod starting at on.
func NextOff(on time.Time, p Params) time.Time {
	return on.Add(p.Photoperiod)
}

// OnAfterOff returns the ON alarm target to program when the OFF alarm fires
// at now. It is always the next calendar day.
func OnAfterOff(now time.Time, p Params) time.Time {
	return onAt(now, p).AddDate(0, 0, 1)
}
