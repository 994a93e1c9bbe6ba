package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// countsAsDispatched are the statuses the dedup gate treats as "this
// window was already handled". failed is deliberately absent: a row
// only reaches failed after the delivery layer exhausted its retries,
// and by then the window has long passed anyway.
var countsAsDispatched = []string{StatusPending, StatusSending, StatusSent, StatusDelivered, StatusRead}

// AlreadyDispatched reports whether a log row exists for the
// subscription and prayer inside [windowStart, windowStart+1m).
func (s *Store) AlreadyDispatched(ctx context.Context, subID int64, prayer string, windowStart time.Time) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dispatch_logs
			WHERE subscription_id=$1 AND prayer_name=$2
			  AND window_start >= $3 AND window_start < $4
			  AND status = ANY($5)
		)
	`, subID, prayer, windowStart, windowStart.Add(time.Minute), countsAsDispatched).Scan(&exists)
	return exists, err
}

// EnqueueDispatch inserts a pending log row for (subscription, prayer,
// window). The unique index makes a concurrent duplicate a no-op:
// already=true means some other sweep got here first.
func (s *Store) EnqueueDispatch(ctx context.Context, subID int64, prayer string, windowStart time.Time, message string) (id int64, already bool, err error) {
	rows, err := s.DB.Query(ctx, `
		INSERT INTO dispatch_logs(subscription_id, prayer_name, window_start, message, status)
		VALUES($1,$2,$3,$4,'pending')
		ON CONFLICT (subscription_id, prayer_name, window_start) DO NOTHING
		RETURNING id
	`, subID, prayer, windowStart, message)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, true, rows.Err()
	}
	if err := rows.Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, rows.Err()
}

// ClaimPendingDispatches moves up to limit rows pending->sending using
// SKIP LOCKED and returns their ids.
func (s *Store) ClaimPendingDispatches(ctx context.Context, limit int) ([]int64, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM dispatch_logs
		WHERE status='pending' AND send_after <= now()
		ORDER BY created_at
		LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `UPDATE dispatch_logs SET status='sending', attempts=attempts+1, claimed_at=now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return ids, tx.Commit(ctx)
}

// Delivery is what the delivery engine needs to send one log row.
type Delivery struct {
	ID        int64
	Channel   string
	Recipient string
	Message   string
	Attempts  int
}

func (s *Store) LoadDispatchForSend(ctx context.Context, id int64) (Delivery, error) {
	var d Delivery
	var email, phone string
	err := s.DB.QueryRow(ctx, `
		SELECT d.id, sub.channel, sub.email, sub.phone, d.message, d.attempts
		FROM dispatch_logs d
		JOIN subscriptions sub ON sub.id = d.subscription_id
		WHERE d.id=$1
	`, id).Scan(&d.ID, &d.Channel, &email, &phone, &d.Message, &d.Attempts)
	if err != nil {
		return Delivery{}, err
	}
	if d.Channel == ChannelEmail {
		d.Recipient = email
	} else {
		d.Recipient = phone
	}
	return d, nil
}

func (s *Store) MarkDispatchSent(ctx context.Context, id int64, providerSID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE dispatch_logs SET status='sent', provider_sid=$2, sent_at=now() WHERE id=$1
	`, id, providerSID)
	return err
}

// MarkDispatchRetry puts a row back to pending with a send_after delay.
func (s *Store) MarkDispatchRetry(ctx context.Context, id int64, retryIn time.Duration, errMsg string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE dispatch_logs
		SET status='pending', send_after=now()+$2::interval, error_message=$3
		WHERE id=$1
	`, id, retryIn.String(), errMsg)
	return err
}

func (s *Store) MarkDispatchFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE dispatch_logs SET status='failed', error_message=$2 WHERE id=$1
	`, id, errMsg)
	return err
}

// RequeueStaleSending returns rows stuck in sending back to pending.
// A row only stays in sending past olderThan when the process that
// claimed it died mid-send; a NULL claimed_at predates the column and
// is treated the same way.
func (s *Store) RequeueStaleSending(ctx context.Context, olderThan time.Duration) (int64, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE dispatch_logs
		SET status='pending', claimed_at=NULL
		WHERE status='sending'
		  AND (claimed_at IS NULL OR claimed_at < now() - $1::interval)
	`, olderThan.String())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type DispatchLogFilter struct {
	UserID         *string
	SubscriptionID *int64
	Limit          int
	Offset         int
}

func (s *Store) ListDispatchLogs(ctx context.Context, f DispatchLogFilter) ([]DispatchLog, error) {
	q := `SELECT d.id, d.subscription_id, d.prayer_name, d.window_start, d.message, d.status,
	             d.attempts, NULLIF(d.provider_sid,''), NULLIF(d.error_message,''), d.sent_at, d.created_at
	      FROM dispatch_logs d`
	args := []any{}
	idx := 1
	where := " WHERE true"
	if f.UserID != nil {
		q += ` JOIN subscriptions sub ON sub.id = d.subscription_id`
		where += fmt.Sprintf(" AND sub.user_id=$%d", idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.SubscriptionID != nil {
		where += fmt.Sprintf(" AND d.subscription_id=$%d", idx)
		args = append(args, *f.SubscriptionID)
		idx++
	}
	q += where + fmt.Sprintf(" ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DispatchLog
	for rows.Next() {
		var l DispatchLog
		if err := rows.Scan(&l.ID, &l.SubscriptionID, &l.PrayerName, &l.WindowStart, &l.Message,
			&l.Status, &l.Attempts, &l.ProviderSID, &l.ErrorMessage, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CleanupDispatchLogs is the retention sweep: delete rows older than
// the cutoff and report how many went away.
func (s *Store) CleanupDispatchLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM dispatch_logs WHERE created_at < now() - $1::interval
	`, olderThan.String())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
