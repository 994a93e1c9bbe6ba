package dispatch

import (
	"time"
)

// Window returns the start of the one-minute deduplication window
// containing t.
func Window(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// Due reports whether a reminder is due at now for a prayer scheduled
// at prayerAt with the given lead. The reminder fires when
// prayerAt-lead and now fall in the same minute, so the predicate is
// true for exactly one tick per day as long as the sweep runs at least
// once a minute. A missed tick means a missed reminder; there is no
// catch-up.
func Due(now, prayerAt time.Time, lead time.Duration) bool {
	due := prayerAt.Add(-lead)
	return due.Truncate(time.Minute).Equal(now.Truncate(time.Minute))
}

// AtOnDay re-anchors a schedule's time-of-day onto the sweep day in the
// sweep's location. Schedules are stored as naive times-of-day; the
// sweep decides what "today" and "local" mean.
func AtOnDay(t time.Time, day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}
