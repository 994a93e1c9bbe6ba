package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	"github.com/RaselmamunSD/Zuhha/internal/metrics"
	"github.com/RaselmamunSD/Zuhha/internal/provider"
)

type Options struct {
	BatchSize    int           // how many log rows to claim per poll
	Concurrency  int           // number of sender goroutines
	PollInterval time.Duration // cadence while work keeps coming
	IdleSleep    time.Duration // sleep when queue empty
	DBBackoffMin time.Duration
	DBBackoffMax time.Duration
	ProviderQPS  float64 // sustained provider rate
	ProviderBurst int
	SendTimeout  time.Duration // per-send timeout
	MaxAttempts  int           // delivery attempts before failed
	RetryDelay   time.Duration // base delay between delivery attempts
	StaleAfter   time.Duration // sending rows older than this get requeued at startup
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.IdleSleep <= 0 {
		o.IdleSleep = time.Second
	}
	if o.DBBackoffMin <= 0 {
		o.DBBackoffMin = 200 * time.Millisecond
	}
	if o.DBBackoffMax <= 0 {
		o.DBBackoffMax = 5 * time.Second
	}
	if o.ProviderQPS <= 0 {
		o.ProviderQPS = 50
	}
	if o.ProviderBurst <= 0 {
		o.ProviderBurst = 100
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = time.Minute
	}
	return o
}

// Providers maps a delivery channel to its transport.
type Providers map[string]provider.Provider

// RunEngine is the delivery loop: claim pending dispatch-log rows,
// fan them out to a fixed pool of senders, and record the outcome on
// each row. It returns when ctx is canceled.
func RunEngine(ctx context.Context, store *core.Store, provs Providers, opt Options, log zerolog.Logger) error {
	opt = opt.withDefaults()
	log = log.With().Str("component", "delivery").Logger()

	// Rows a previous process claimed but never finished stay in
	// sending forever; hand them back before the claim loop starts.
	if n, err := store.RequeueStaleSending(ctx, opt.StaleAfter); err != nil {
		log.Warn().Err(err).Msg("requeue stale sending rows")
	} else if n > 0 {
		log.Info().Int64("rows", n).Msg("requeued stale sending rows")
	}

	// Rate limiter for providers (global for this process).
	limiter := rate.NewLimiter(rate.Limit(opt.ProviderQPS), opt.ProviderBurst)

	// Fixed-size sender pool.
	jobs := make(chan int64, opt.BatchSize*2)
	var wg sync.WaitGroup
	wg.Add(opt.Concurrency)
	for i := 0; i < opt.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-jobs:
					sendOne(ctx, store, provs, limiter, id, opt, log)
				}
			}
		}()
	}

	// Poll loop: claim batches and dispatch.
	dbBackoff := opt.DBBackoffMin
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		ids, err := store.ClaimPendingDispatches(ctx, opt.BatchSize)
		if err != nil {
			metrics.ClaimTotal.WithLabelValues("error").Inc()
			sleep := jitter(dbBackoff, 0.20)
			log.Warn().Err(err).Dur("backoff", sleep).Msg("claim error")
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(sleep):
			}
			dbBackoff = minDur(opt.DBBackoffMax, time.Duration(float64(dbBackoff)*1.6))
			continue
		}
		dbBackoff = opt.DBBackoffMin // reset on success
		metrics.ClaimBatchSize.Observe(float64(len(ids)))

		if len(ids) == 0 {
			metrics.ClaimTotal.WithLabelValues("empty").Inc()
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(opt.IdleSleep):
			}
			continue
		}
		metrics.ClaimTotal.WithLabelValues("ok").Inc()

		for _, id := range ids {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case jobs <- id:
			}
		}

		// short cadence while there is flow
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-time.After(opt.PollInterval):
		}
	}
}

func sendOne(ctx context.Context, store *core.Store, provs Providers, limiter *rate.Limiter, id int64, opt Options, log zerolog.Logger) {
	d, err := store.LoadDispatchForSend(ctx, id)
	if err != nil {
		_ = store.MarkDispatchFailed(ctx, id, "load: "+err.Error())
		return
	}

	prov, ok := provs[d.Channel]
	if !ok {
		// No transport for this channel is not retryable.
		_ = store.MarkDispatchFailed(ctx, id, "no provider for channel "+d.Channel)
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		// context canceled; the row stays in sending until the stale
		// requeue at the next startup hands it back.
		return
	}

	cctx, cancel := context.WithTimeout(ctx, opt.SendTimeout)
	defer cancel()

	start := time.Now()
	sid, err := prov.Send(cctx, d.Recipient, d.Message)
	metrics.ProviderSendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, provider.ErrPermanent) || d.Attempts >= opt.MaxAttempts {
			metrics.ProviderSendTotal.WithLabelValues(d.Channel, "perm_fail").Inc()
			log.Warn().Int64("log_id", id).Int("attempts", d.Attempts).Err(err).Msg("delivery failed permanently")
			_ = store.MarkDispatchFailed(ctx, id, err.Error())
			return
		}
		metrics.ProviderSendTotal.WithLabelValues(d.Channel, "temp_fail").Inc()
		metrics.RetryTotal.Inc()
		_ = store.MarkDispatchRetry(ctx, id, jitter(opt.RetryDelay, 0.20), err.Error())
		return
	}

	metrics.ProviderSendTotal.WithLabelValues(d.Channel, "sent").Inc()
	_ = store.MarkDispatchSent(ctx, id, sid)
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := int64(float64(d) * frac)
	if delta <= 0 {
		return d
	}
	// random in [-delta, +delta]
	n := rand.Int64N(2*delta+1) - delta
	return d + time.Duration(n)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
