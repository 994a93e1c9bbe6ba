package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	database "github.com/RaselmamunSD/Zuhha/internal/db"
	"github.com/RaselmamunSD/Zuhha/internal/provider"
	"github.com/RaselmamunSD/Zuhha/internal/worker"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (p *recordingProvider) Send(_ context.Context, to, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.sent = append(p.sent, to)
	return "prov-" + to, nil
}

func (p *recordingProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func seedDispatch(t *testing.T, s *core.Store, channel string, window time.Time) (core.Subscription, int64) {
	t.Helper()
	ctx := context.Background()

	countryID, err := s.CreateCountry(ctx, core.Country{Name: "BD-" + uuid.NewString()[:8], Code: uuid.NewString()[:2], PhoneCode: "+880"})
	require.NoError(t, err)
	cityID, err := s.CreateCity(ctx, core.City{Name: "Dhaka", CountryID: countryID, Latitude: 23.81, Longitude: 90.41, Timezone: "Asia/Dhaka"})
	require.NoError(t, err)

	sub, err := s.CreateSubscription(ctx, core.CreateSubscriptionRequest{
		Email:           uuid.NewString() + "@example.com",
		Phone:           "+8801700000000",
		Channel:         channel,
		CityID:          &cityID,
		SelectedPrayers: []string{core.PrayerFajr},
		ActivationToken: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, s.ForceActivate(ctx, sub.ID, time.Now()))

	id, already, err := s.EnqueueDispatch(ctx, sub.ID, core.PrayerFajr, window, "fajr soon")
	require.NoError(t, err)
	require.False(t, already)
	return sub, id
}

func runEngineFor(t *testing.T, s *core.Store, provs worker.Providers, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := worker.RunEngine(ctx, s, provs, worker.Options{
		BatchSize:    10,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		IdleSleep:    10 * time.Millisecond,
	}, zerolog.Nop())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func waitForStatus(t *testing.T, s *core.Store, id int64, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status string
		err := s.DB.QueryRow(context.Background(), `SELECT status FROM dispatch_logs WHERE id=$1`, id).Scan(&status)
		require.NoError(t, err)
		if status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dispatch %d never reached status %q", id, want)
}

func TestEngine_DeliversPendingDispatch(t *testing.T) {
	s := &core.Store{DB: database.StartTestPostgres(t)}
	_, id := seedDispatch(t, s, core.ChannelWhatsApp, time.Now().Truncate(time.Minute))

	prov := &recordingProvider{}
	runEngineFor(t, s, worker.Providers{core.ChannelWhatsApp: prov}, 2*time.Second)

	waitForStatus(t, s, id, core.StatusSent)
	require.Equal(t, 1, prov.sentCount())

	var sid string
	require.NoError(t, s.DB.QueryRow(context.Background(), `SELECT provider_sid FROM dispatch_logs WHERE id=$1`, id).Scan(&sid))
	require.Equal(t, "prov-+8801700000000", sid)
}

func TestEngine_StrandedSendingRowRequeuedOnStartup(t *testing.T) {
	s := &core.Store{DB: database.StartTestPostgres(t)}
	_, id := seedDispatch(t, s, core.ChannelWhatsApp, time.Now().Truncate(time.Minute))

	// Simulate a worker that died mid-send: claimed long ago, never marked.
	_, err := s.DB.Exec(context.Background(),
		`UPDATE dispatch_logs SET status='sending', claimed_at=now() - interval '5 minutes' WHERE id=$1`, id)
	require.NoError(t, err)

	prov := &recordingProvider{}
	runEngineFor(t, s, worker.Providers{core.ChannelWhatsApp: prov}, 2*time.Second)

	waitForStatus(t, s, id, core.StatusSent)
	require.Equal(t, 1, prov.sentCount())
}

func TestEngine_PermanentFailureMarksFailed(t *testing.T) {
	s := &core.Store{DB: database.StartTestPostgres(t)}
	_, id := seedDispatch(t, s, core.ChannelEmail, time.Now().Truncate(time.Minute))

	prov := &recordingProvider{fail: provider.ErrPermanent}
	runEngineFor(t, s, worker.Providers{core.ChannelEmail: prov}, 2*time.Second)

	waitForStatus(t, s, id, core.StatusFailed)
}

func TestEngine_TransientFailureSchedulesRetry(t *testing.T) {
	s := &core.Store{DB: database.StartTestPostgres(t)}
	_, id := seedDispatch(t, s, core.ChannelWhatsApp, time.Now().Truncate(time.Minute))

	prov := &recordingProvider{fail: errors.New("socket timeout")}
	runEngineFor(t, s, worker.Providers{core.ChannelWhatsApp: prov}, 2*time.Second)

	// Back to pending with a future send_after, attempts recorded.
	var status, errMsg string
	var attempts int
	var sendAfter time.Time
	require.NoError(t, s.DB.QueryRow(context.Background(),
		`SELECT status, attempts, error_message, send_after FROM dispatch_logs WHERE id=$1`, id).
		Scan(&status, &attempts, &errMsg, &sendAfter))
	require.Equal(t, core.StatusPending, status)
	require.GreaterOrEqual(t, attempts, 1)
	require.Equal(t, "socket timeout", errMsg)
	require.True(t, sendAfter.After(time.Now()))
}

func TestEngine_MissingChannelProviderFails(t *testing.T) {
	s := &core.Store{DB: database.StartTestPostgres(t)}
	_, id := seedDispatch(t, s, core.ChannelEmail, time.Now().Truncate(time.Minute))

	// Only whatsapp is wired; the email row cannot be delivered.
	runEngineFor(t, s, worker.Providers{core.ChannelWhatsApp: &recordingProvider{}}, 2*time.Second)

	waitForStatus(t, s, id, core.StatusFailed)
}
