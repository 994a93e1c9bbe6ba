package core_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	database "github.com/RaselmamunSD/Zuhha/internal/db"
)

func newStore(t *testing.T) *core.Store {
	pool := database.StartTestPostgres(t)
	return &core.Store{DB: pool}
}

func createUser(t *testing.T, s *core.Store, name string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.CreateUserRequest{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

func seedCity(t *testing.T, s *core.Store) int64 {
	t.Helper()
	ctx := context.Background()
	countryID, err := s.CreateCountry(ctx, core.Country{Name: "Bangladesh-" + uuid.NewString()[:8], Code: uuid.NewString()[:2], PhoneCode: "+880"})
	require.NoError(t, err)
	cityID, err := s.CreateCity(ctx, core.City{Name: "Dhaka", CountryID: countryID, Latitude: 23.8103, Longitude: 90.4125, Timezone: "Asia/Dhaka"})
	require.NoError(t, err)
	return cityID
}

func seedSubscription(t *testing.T, s *core.Store, cityID int64, prayers []string) core.Subscription {
	t.Helper()
	ctx := context.Background()
	sub, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email:           uuid.NewString() + "@example.com",
		Phone:           "+8801700000000",
		Channel:         core.ChannelWhatsApp,
		CityID:          &cityID,
		SelectedPrayers: prayers,
		LeadMinutes:     10,
		Language:        "en",
		ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, s.ForceActivate(ctx, sub.ID, time.Now()))
	return sub
}

func TestCreateUser_ProfileCreatedWithUser(t *testing.T) {
	s := newStore(t)
	u := createUser(t, s, "rahim")

	p, err := s.GetProfile(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, p.UserID)
	require.Equal(t, core.DefaultLeadMinutes, p.LeadMinutes)
}

func TestCreateUser_DuplicateEmailAndUsername(t *testing.T) {
	s := newStore(t)
	createUser(t, s, "karim")

	_, err := s.CreateUser(context.Background(), core.CreateUserRequest{
		Username: "other", Email: "karim@example.com", PasswordHash: "x",
	})
	require.ErrorIs(t, err, core.ErrEmailTaken)

	_, err = s.CreateUser(context.Background(), core.CreateUserRequest{
		Username: "karim", Email: "karim2@example.com", PasswordHash: "x",
	})
	require.ErrorIs(t, err, core.ErrUsernameTaken)
}

func TestUpdateProfile_LeadMinutesCoerced(t *testing.T) {
	s := newStore(t)
	u := createUser(t, s, "fatima")

	p, err := s.UpdateProfile(context.Background(), u.ID, core.UpdateProfileRequest{
		Phone:       "+8801700000000",
		LeadMinutes: 17, // not in the choice set
		Language:    "bn",
	})
	require.NoError(t, err)
	require.Equal(t, core.DefaultLeadMinutes, p.LeadMinutes)

	p, err = s.UpdateProfile(context.Background(), u.ID, core.UpdateProfileRequest{
		Phone: "+8801700000000", LeadMinutes: 30, Language: "bn",
	})
	require.NoError(t, err)
	require.Equal(t, 30, p.LeadMinutes)
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)

	token := uuid.NewString()
	sub, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email:           "sub@example.com",
		Phone:           "+8801711111111",
		Channel:         core.ChannelWhatsApp,
		CityID:          &cityID,
		SelectedPrayers: []string{core.PrayerFajr, core.PrayerMaghrib},
		LeadMinutes:     20,
		ActivationToken: token,
	})
	require.NoError(t, err)
	require.False(t, sub.IsActive)

	// Same email again is rejected.
	_, err = s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email: "sub@example.com", Phone: "+880", Channel: core.ChannelWhatsApp,
		CityID: &cityID, ActivationToken: uuid.NewString(),
	})
	require.ErrorIs(t, err, core.ErrEmailTaken)

	_, err = s.ActivateSubscription(ctx, "bogus-token")
	require.ErrorIs(t, err, core.ErrInvalidToken)

	activated, err := s.ActivateSubscription(ctx, token)
	require.NoError(t, err)
	require.True(t, activated.IsActive)
	require.NotNil(t, activated.ActivatedAt)

	require.NoError(t, s.UnsubscribeByEmail(ctx, "sub@example.com"))
	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.NotNil(t, got.UnsubscribedAt)
}

func TestCreateSubscription_InvalidChannel(t *testing.T) {
	s := newStore(t)
	cityID := seedCity(t, s)
	_, err := s.CreateSubscription(context.Background(), core.CreateSubscriptionRequest{
		Email: "x@example.com", Channel: "sms", CityID: &cityID, ActivationToken: uuid.NewString(),
	})
	require.ErrorIs(t, err, core.ErrInvalidChannel)
}

func TestInsertSchedule_Immutable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	in := core.ScheduleInput{
		CityID: cityID, Day: day,
		Fajr: "04:10", Sunrise: "05:30", Dhuhr: "12:05",
		Asr: "16:30", Maghrib: "18:45", Isha: "20:10",
	}
	require.NoError(t, s.InsertSchedule(ctx, in))

	in.Dhuhr = "12:30"
	require.ErrorIs(t, s.InsertSchedule(ctx, in), core.ErrImmutable)

	sc, err := s.GetSchedule(ctx, cityID, day)
	require.NoError(t, err)
	require.Equal(t, 12, sc.Dhuhr.Hour())
	require.Equal(t, 5, sc.Dhuhr.Minute())
}

func TestEnqueueDispatch_OneRowPerWindow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerDhuhr})
	window := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	var firsts int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, already, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerDhuhr, window, "msg")
			require.NoError(t, err)
			if !already {
				atomic.AddInt64(&firsts, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), firsts)

	var count int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_logs WHERE subscription_id=$1`, sub.ID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	already, err := s.AlreadyDispatched(ctx, sub.ID, core.PrayerDhuhr, window)
	require.NoError(t, err)
	require.True(t, already)

	// The next minute is a fresh window.
	already, err = s.AlreadyDispatched(ctx, sub.ID, core.PrayerDhuhr, window.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, already)
}

func TestDispatchDeliveryLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerFajr})
	window := time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC)

	id, already, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerFajr, window, "fajr soon")
	require.NoError(t, err)
	require.False(t, already)

	ids, err := s.ClaimPendingDispatches(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, ids)

	d, err := s.LoadDispatchForSend(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.ChannelWhatsApp, d.Channel)
	require.Equal(t, sub.Phone, d.Recipient)
	require.Equal(t, "fajr soon", d.Message)
	require.Equal(t, 1, d.Attempts)

	// Transient failure: row goes back to pending with a send_after.
	require.NoError(t, s.MarkDispatchRetry(ctx, id, time.Hour, "provider timeout"))
	ids, err = s.ClaimPendingDispatches(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids, "retry delay must keep the row out of the claim set")

	require.NoError(t, s.MarkDispatchSent(ctx, id, "SM123"))
	logs, err := s.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, core.StatusSent, logs[0].Status)
	require.NotNil(t, logs[0].SentAt)
	require.Equal(t, "SM123", *logs[0].ProviderSID)
}

func TestMarkDispatchFailed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerIsha})
	window := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

	id, _, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerIsha, window, "isha soon")
	require.NoError(t, err)
	require.NoError(t, s.MarkDispatchFailed(ctx, id, "unreachable"))

	already, err := s.AlreadyDispatched(ctx, sub.ID, core.PrayerIsha, window)
	require.NoError(t, err)
	require.False(t, already, "failed rows do not count as dispatched")
}

func TestRequeueStaleSending(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerMaghrib})
	window := time.Date(2025, 6, 1, 18, 35, 0, 0, time.UTC)

	id, _, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerMaghrib, window, "maghrib soon")
	require.NoError(t, err)
	ids, err := s.ClaimPendingDispatches(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, ids)

	// A freshly claimed row is in flight, not stale.
	n, err := s.RequeueStaleSending(ctx, time.Minute)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.DB.Exec(ctx, `UPDATE dispatch_logs SET claimed_at=now() - interval '5 minutes' WHERE id=$1`, id)
	require.NoError(t, err)
	n, err = s.RequeueStaleSending(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	var status string
	require.NoError(t, s.DB.QueryRow(ctx, `SELECT status FROM dispatch_logs WHERE id=$1`, id).Scan(&status))
	require.Equal(t, core.StatusPending, status)

	// The requeued row is claimable again.
	ids, err = s.ClaimPendingDispatches(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, ids)
}

func TestConcurrentClaim_SkipLocked_NoDuplicates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerDhuhr})

	const total = 100
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < total; i++ {
		_, already, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerDhuhr, base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		require.False(t, already)
	}

	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var claimed int64

	timeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if atomic.LoadInt64(&claimed) >= int64(total) {
					return
				}
				select {
				case <-timeout.Done():
					return
				default:
				}

				ids, err := s.ClaimPendingDispatches(ctx, 10)
				require.NoError(t, err)
				if len(ids) == 0 {
					time.Sleep(5 * time.Millisecond)
					continue
				}

				mu.Lock()
				for _, id := range ids {
					if seen[id] {
						mu.Unlock()
						t.Errorf("duplicate claim: %d", id)
						return
					}
					seen[id] = true
				}
				mu.Unlock()
				atomic.AddInt64(&claimed, int64(len(ids)))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(total), atomic.LoadInt64(&claimed), "did not claim all rows before timeout")
	require.Len(t, seen, total)
}

func TestListSweepTargets_OnlyActiveWithCity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)

	active := seedSubscription(t, s, cityID, []string{core.PrayerAsr})

	// Inactive subscription never reaches the sweep.
	_, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email: "inactive@example.com", Phone: "+880", Channel: core.ChannelWhatsApp,
		CityID: &cityID, SelectedPrayers: []string{core.PrayerAsr}, ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)

	// Active but with no prayers selected: nothing to dispatch.
	empty := seedSubscription(t, s, cityID, nil)
	_ = empty

	targets, err := s.ListSweepTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, active.ID, targets[0].Sub.ID)
	require.Equal(t, cityID, targets[0].CityID)
}

func TestListSweepTargets_LocationResolution(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	mosqueID, err := s.CreateMosque(ctx, core.Mosque{Name: "Baitul Mukarram", CityID: cityID})
	require.NoError(t, err)

	// Only a mosque: the sweep resolves it to the mosque's city.
	viaMosque, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email: uuid.NewString() + "@example.com", Phone: "+8801700000001",
		Channel: core.ChannelWhatsApp, MosqueID: &mosqueID,
		SelectedPrayers: []string{core.PrayerFajr}, LeadMinutes: 10,
		Language: "en", ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, s.ForceActivate(ctx, viaMosque.ID, time.Now()))

	// Neither city nor mosque: no location to look schedules up for.
	noLocation, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email: uuid.NewString() + "@example.com", Phone: "+8801700000002",
		Channel: core.ChannelWhatsApp,
		SelectedPrayers: []string{core.PrayerFajr}, LeadMinutes: 10,
		Language: "en", ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, s.ForceActivate(ctx, noLocation.ID, time.Now()))

	targets, err := s.ListSweepTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, viaMosque.ID, targets[0].Sub.ID)
	require.Equal(t, cityID, targets[0].CityID)
	require.Nil(t, targets[0].Sub.CityID)
}

func TestCleanupDispatchLogs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	cityID := seedCity(t, s)
	sub := seedSubscription(t, s, cityID, []string{core.PrayerFajr})

	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now()
	_, _, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerFajr, old, "old")
	require.NoError(t, err)
	_, _, err = s.EnqueueDispatch(ctx, sub.ID, core.PrayerFajr, recent, "recent")
	require.NoError(t, err)

	// Age the first row's created_at past the cutoff.
	_, err = s.DB.Exec(ctx, `UPDATE dispatch_logs SET created_at=now() - interval '40 days' WHERE message='old'`)
	require.NoError(t, err)

	n, err := s.CleanupDispatchLogs(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	logs, err := s.ListDispatchLogs(ctx, core.DispatchLogFilter{SubscriptionID: &sub.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "recent", logs[0].Message)
}
