package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	database "github.com/RaselmamunSD/Zuhha/internal/db"
	"github.com/RaselmamunSD/Zuhha/internal/dispatch"
)

type sweepEnv struct {
	store  *core.Store
	cityID int64
	day    time.Time
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()
	ctx := context.Background()
	store := &core.Store{DB: database.StartTestPostgres(t)}

	countryID, err := store.CreateCountry(ctx, core.Country{Name: "Bangladesh", Code: "BD", PhoneCode: "+880"})
	require.NoError(t, err)
	cityID, err := store.CreateCity(ctx, core.City{Name: "Dhaka", CountryID: countryID, Latitude: 23.8103, Longitude: 90.4125, Timezone: "Asia/Dhaka"})
	require.NoError(t, err)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertSchedule(ctx, core.ScheduleInput{
		CityID: cityID, Day: day,
		Fajr: "04:10", Sunrise: "05:30", Dhuhr: "12:15",
		Asr: "16:30", Maghrib: "18:45", Isha: "20:10",
	}))
	return &sweepEnv{store: store, cityID: cityID, day: day}
}

func (e *sweepEnv) subscribe(t *testing.T, prayers []string, lead int) core.Subscription {
	t.Helper()
	ctx := context.Background()
	sub, err := e.store.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email:           uuid.NewString() + "@example.com",
		Phone:           "+8801700000000",
		Channel:         core.ChannelWhatsApp,
		CityID:          &e.cityID,
		SelectedPrayers: prayers,
		LeadMinutes:     lead,
		Language:        "en",
		ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, e.store.ForceActivate(ctx, sub.ID, time.Now()))
	return sub
}

func (e *sweepEnv) sweeper() *dispatch.Sweeper {
	return dispatch.NewSweeper(e.store, time.UTC, zerolog.Nop())
}

func TestSweep_EnqueuesOnlyAtDueMinute(t *testing.T) {
	e := newSweepEnv(t)
	sub := e.subscribe(t, []string{core.PrayerDhuhr}, 10)
	sw := e.sweeper()
	ctx := context.Background()

	// 12:15 dhuhr with a 10 minute lead is due at 12:05 and nowhere else.
	early := e.day.Add(12*time.Hour + 4*time.Minute)
	stats, err := sw.Run(ctx, early)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Enqueued)

	due := e.day.Add(12*time.Hour + 5*time.Minute + 30*time.Second)
	stats, err = sw.Run(ctx, due)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)

	logs, err := e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, core.PrayerDhuhr, logs[0].PrayerName)
	require.Equal(t, core.StatusPending, logs[0].Status)
	require.Contains(t, logs[0].Message, "Dhuhr")
	require.Contains(t, logs[0].Message, "12:15")
}

func TestSweep_SecondRunInSameMinuteDedupes(t *testing.T) {
	e := newSweepEnv(t)
	sub := e.subscribe(t, []string{core.PrayerDhuhr}, 10)
	sw := e.sweeper()
	ctx := context.Background()
	due := e.day.Add(12*time.Hour + 5*time.Minute)

	stats, err := sw.Run(ctx, due)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)

	stats, err = sw.Run(ctx, due.Add(20*time.Second))
	require.NoError(t, err)
	require.Equal(t, 0, stats.Enqueued)
	require.Equal(t, 1, stats.Deduped)

	logs, err := e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestSweep_UnselectedPrayersSkipped(t *testing.T) {
	e := newSweepEnv(t)
	e.subscribe(t, []string{core.PrayerFajr}, 10)
	sw := e.sweeper()

	// Dhuhr due minute, but the subscriber only wants fajr.
	stats, err := sw.Run(context.Background(), e.day.Add(12*time.Hour+5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, stats.Enqueued)
}

func TestSweep_MissingScheduleWarnsAndSkips(t *testing.T) {
	e := newSweepEnv(t)
	e.subscribe(t, []string{core.PrayerDhuhr}, 10)
	sw := e.sweeper()

	// A day with no published schedule yields no reminders and no error.
	stats, err := sw.Run(context.Background(), e.day.AddDate(0, 0, 1).Add(12*time.Hour+5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, stats.Enqueued)
	require.Equal(t, 1, stats.NoSchedule)
}

func TestSweep_LeadChoicesProduceDistinctMinutes(t *testing.T) {
	e := newSweepEnv(t)
	sub10 := e.subscribe(t, []string{core.PrayerMaghrib}, 10)
	sub30 := e.subscribe(t, []string{core.PrayerMaghrib}, 30)
	sw := e.sweeper()
	ctx := context.Background()

	// Maghrib 18:45: the 30 minute lead fires at 18:15.
	stats, err := sw.Run(ctx, e.day.Add(18*time.Hour+15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)
	logs, err := e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub30.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	// The 10 minute lead fires at 18:35.
	stats, err = sw.Run(ctx, e.day.Add(18*time.Hour+35*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)
	logs, err = e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub10.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestDailySummary(t *testing.T) {
	e := newSweepEnv(t)
	sub := e.subscribe(t, []string{core.SummaryDaily}, 10)
	sw := e.sweeper()
	ctx := context.Background()

	at := e.day.Add(18 * time.Hour)
	stats, err := sw.RunDailySummary(ctx, at)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)

	// Second run in the same minute is a no-op.
	stats, err = sw.RunDailySummary(ctx, at.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, 0, stats.Enqueued)
	require.Equal(t, 1, stats.Deduped)

	logs, err := e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, core.SummaryDaily, logs[0].PrayerName)
	require.Contains(t, logs[0].Message, "Today's Prayer Times")
}

func TestWeeklySummary(t *testing.T) {
	e := newSweepEnv(t)
	sub := e.subscribe(t, []string{core.SummaryWeekly}, 10)
	sw := e.sweeper()
	ctx := context.Background()

	stats, err := sw.RunWeeklySummary(ctx, e.day.Add(18*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Enqueued)

	logs, err := e.store.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Contains(t, logs[0].Message, "Weekly Prayer Times Summary")
	require.Contains(t, logs[0].Message, e.day.Format("2006-01-02"))
}
