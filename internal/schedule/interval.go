package schedule

import "time"

// Anchor is the configured start instant of a schedule: hour and minute in
// UTC, plus the week multiplier for weekly cadences (0 is treated as 1).
type Anchor struct {
	Hour           int
	Minute         int
	WeekMultiplier int
}

// NextRun computes the next due instant for a policy, strictly after now
// except when now lands exactly on an anchor instant (zero sub-second), in
// which case it returns now (run-now semantics).
//
// Pure and deterministic: identical inputs yield identical outputs. All
// computation is in UTC; the result has second precision.
func NextRun(now time.Time, policy RepeatPolicy, a Anchor) time.Time {
	now = now.UTC()
	switch {
	case policy == RepeatNone || policy == RepeatDaily:
		return nextDaily(now, a)
	case policy == RepeatWeekly:
		return nextWeekly(now, a)
	case policy == RepeatMonthly:
		return nextMonthly(now, a)
	default:
		if n, ok := policy.MinuteStep(); ok {
			return nextEveryNMinutes(now, n, a.Minute)
		}
		if n, ok := policy.HourStep(); ok {
			return nextNHourly(now, n, a)
		}
		// Unknown policy: fall back to daily so a stored record never wedges.
		return nextDaily(now, a)
	}
}

func anchorToday(now time.Time, a Anchor) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, 0, 0, time.UTC)
}

func nextDaily(now time.Time, a Anchor) time.Time {
	anchor := anchorToday(now, a)
	if now.After(anchor) {
		return anchor.AddDate(0, 0, 1)
	}
	return anchor
}

// nextEveryNMinutes finds the smallest minute >= now congruent to the anchor
// minute modulo n. An exact on-anchor instant (zero seconds) qualifies.
func nextEveryNMinutes(now time.Time, n int, anchorMinute int) time.Time {
	add := ((anchorMinute-now.Minute())%n + n) % n
	if add == 0 && (now.Second() > 0 || now.Nanosecond() > 0) {
		add = n
	}
	return now.Truncate(time.Minute).Add(time.Duration(add) * time.Minute)
}

// nextNHourly advances from today's anchor instant by the smallest
// non-negative multiple of n hours that reaches or passes now, landing
// exactly on an anchor-aligned boundary.
func nextNHourly(now time.Time, n int, a Anchor) time.Time {
	anchor := anchorToday(now, a)
	if !now.After(anchor) {
		return anchor
	}
	step := int64(n) * 3600
	diff := now.Unix() - anchor.Unix()
	k := (diff + step - 1) / step // ceiling division
	next := anchor.Add(time.Duration(k*step) * time.Second)
	// Unix() drops sub-second remainder; an exact boundary that now has
	// already passed by nanoseconds must advance one more step.
	if next.Before(now) {
		next = next.Add(time.Duration(step) * time.Second)
	}
	return next
}

func nextWeekly(now time.Time, a Anchor) time.Time {
	anchor := anchorToday(now, a)
	if !now.After(anchor) {
		return anchor
	}
	weeks := a.WeekMultiplier
	if weeks < 1 {
		weeks = 1
	}
	return anchor.AddDate(0, 0, 7*weeks)
}

// nextMonthly uses a fixed 30-day offset, not calendar months.
func nextMonthly(now time.Time, a Anchor) time.Time {
	anchor := anchorToday(now, a)
	if !now.After(anchor) {
		return anchor
	}
	return anchor.AddDate(0, 0, 30)
}
