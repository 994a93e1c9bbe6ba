package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	"github.com/RaselmamunSD/Zuhha/internal/metrics"
)

// Sweeper runs the per-minute dispatch pass: for every active
// subscription and every selected prayer it evaluates the due-time
// predicate and the dedup gate, and enqueues a pending dispatch-log row
// when both pass. Delivery happens elsewhere; nothing here blocks on a
// provider.
type Sweeper struct {
	Store *core.Store
	Loc   *time.Location
	Log   zerolog.Logger
}

func NewSweeper(store *core.Store, loc *time.Location, log zerolog.Logger) *Sweeper {
	if loc == nil {
		loc = time.Local
	}
	return &Sweeper{Store: store, Loc: loc, Log: log.With().Str("component", "sweeper").Logger()}
}

// Stats summarizes one sweep pass, for logging and metrics only.
type Stats struct {
	Targets    int
	Enqueued   int
	Deduped    int
	NoSchedule int
}

// Run executes one sweep for the minute containing now.
func (sw *Sweeper) Run(ctx context.Context, now time.Time) (stats Stats, err error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.SweepRuns.WithLabelValues(result).Inc()
	}()

	now = now.In(sw.Loc)
	window := Window(now)

	targets, err := sw.Store.ListSweepTargets(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats = Stats{Targets: len(targets)}
	if len(targets) == 0 {
		return stats, nil
	}

	schedules, err := sw.loadSchedules(ctx, targets, now)
	if err != nil {
		return stats, err
	}

	warned := map[int64]bool{}
	for _, t := range targets {
		sc, ok := schedules[t.CityID]
		if !ok {
			// Missing schedule data never escalates past a warning.
			if !warned[t.CityID] {
				sw.Log.Warn().Int64("city_id", t.CityID).Time("day", now).Msg("no prayer schedule for city today")
				warned[t.CityID] = true
			}
			stats.NoSchedule++
			continue
		}
		lead := time.Duration(core.NormalizeLeadMinutes(t.Sub.LeadMinutes)) * time.Minute
		for _, prayer := range t.Sub.SelectedPrayers {
			prayerAt, ok := sc.TimeFor(prayer)
			if !ok {
				// Unknown prayer names (and daily/weekly summary
				// selections) are skipped by the minute sweep.
				continue
			}
			at := AtOnDay(prayerAt, now)
			if !Due(now, at, lead) {
				continue
			}
			already, err := sw.Store.AlreadyDispatched(ctx, t.Sub.ID, prayer, window)
			if err != nil {
				return stats, err
			}
			if already {
				stats.Deduped++
				metrics.SweepDeduped.Inc()
				continue
			}
			msg := RenderReminder(t.Sub.Language, prayer, at.Format("15:04"), int(lead.Minutes()))
			_, dup, err := sw.Store.EnqueueDispatch(ctx, t.Sub.ID, prayer, window, msg)
			if err != nil {
				return stats, err
			}
			if dup {
				// Overlapping sweep in the same window lost the race
				// on the unique index; treat it as handled.
				stats.Deduped++
				metrics.SweepDeduped.Inc()
				continue
			}
			stats.Enqueued++
			metrics.SweepEnqueued.Inc()
			sw.Log.Debug().
				Int64("subscription_id", t.Sub.ID).
				Str("prayer", prayer).
				Time("window", window).
				Msg("reminder enqueued")
		}
	}
	return stats, nil
}

// RunDailySummary enqueues a daily schedule message for every active
// subscription that selected "daily". Meant to run once per day.
func (sw *Sweeper) RunDailySummary(ctx context.Context, now time.Time) (Stats, error) {
	return sw.runSummary(ctx, now, core.SummaryDaily)
}

// RunWeeklySummary enqueues a 7-day overview for subscriptions that
// selected "weekly". Meant to run Friday evenings.
func (sw *Sweeper) RunWeeklySummary(ctx context.Context, now time.Time) (Stats, error) {
	return sw.runSummary(ctx, now, core.SummaryWeekly)
}

func (sw *Sweeper) runSummary(ctx context.Context, now time.Time, kind string) (Stats, error) {
	now = now.In(sw.Loc)
	window := Window(now)

	targets, err := sw.Store.ListSweepTargets(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{}
	day := dateOf(now)
	for _, t := range targets {
		if !contains(t.Sub.SelectedPrayers, kind) {
			continue
		}
		stats.Targets++

		var msg string
		switch kind {
		case core.SummaryDaily:
			sc, err := sw.Store.GetSchedule(ctx, t.CityID, day)
			if err == core.ErrNotFound {
				sw.Log.Warn().Int64("city_id", t.CityID).Msg("no schedule for daily summary")
				stats.NoSchedule++
				continue
			}
			if err != nil {
				return stats, err
			}
			msg = RenderDailySummary(sc)
		case core.SummaryWeekly:
			week, err := sw.Store.ListSchedules(ctx, t.CityID, day, day.AddDate(0, 0, 6))
			if err != nil {
				return stats, err
			}
			if len(week) == 0 {
				sw.Log.Warn().Int64("city_id", t.CityID).Msg("no schedules for weekly summary")
				stats.NoSchedule++
				continue
			}
			msg = RenderWeeklySummary(week)
		}

		already, err := sw.Store.AlreadyDispatched(ctx, t.Sub.ID, kind, window)
		if err != nil {
			return stats, err
		}
		if already {
			stats.Deduped++
			continue
		}
		if _, dup, err := sw.Store.EnqueueDispatch(ctx, t.Sub.ID, kind, window, msg); err != nil {
			return stats, err
		} else if dup {
			stats.Deduped++
			continue
		}
		stats.Enqueued++
		metrics.SweepEnqueued.Inc()
	}
	return stats, nil
}

// RunCleanup deletes dispatch logs past the retention cutoff.
func (sw *Sweeper) RunCleanup(ctx context.Context, retention time.Duration) error {
	n, err := sw.Store.CleanupDispatchLogs(ctx, retention)
	if err != nil {
		return err
	}
	sw.Log.Info().Int64("deleted", n).Msg("dispatch log cleanup")
	return nil
}

// loadSchedules batch-loads today's schedule for every distinct city
// the targets reference, in one query.
func (sw *Sweeper) loadSchedules(ctx context.Context, targets []core.SweepTarget, now time.Time) (map[int64]core.Schedule, error) {
	seen := map[int64]bool{}
	var cityIDs []int64
	for _, t := range targets {
		if !seen[t.CityID] {
			seen[t.CityID] = true
			cityIDs = append(cityIDs, t.CityID)
		}
	}
	return sw.Store.GetSchedules(ctx, cityIDs, dateOf(now))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
