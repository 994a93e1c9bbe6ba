package core

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func (s *Store) SubscribeNewsletter(ctx context.Context, email, verificationCode string) (NewsletterSubscription, error) {
	var n NewsletterSubscription
	err := s.DB.QueryRow(ctx, `
		INSERT INTO newsletter_subscriptions(email, verification_code)
		VALUES($1,$2)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, is_active, is_verified, prayer_updates, important_announcements,
		          subscribed_at, unsubscribed_at
	`, email, verificationCode).Scan(&n.ID, &n.Email, &n.IsActive, &n.IsVerified,
		&n.PrayerUpdates, &n.ImportantAnnouncements, &n.SubscribedAt, &n.UnsubscribedAt)
	if err == pgx.ErrNoRows {
		return NewsletterSubscription{}, ErrEmailTaken
	}
	return n, err
}

func (s *Store) UnsubscribeNewsletter(ctx context.Context, email string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE newsletter_subscriptions
		SET is_active=false, unsubscribed_at=now()
		WHERE email=$1
	`, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) VerifyNewsletter(ctx context.Context, code string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE newsletter_subscriptions
		SET is_verified=true, verification_code=''
		WHERE verification_code=$1 AND verification_code <> ''
	`, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidToken
	}
	return nil
}
