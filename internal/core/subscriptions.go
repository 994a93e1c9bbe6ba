package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type CreateSubscriptionRequest struct {
	UserID          *string
	Email           string
	Phone           string
	Channel         string
	CityID          *int64
	MosqueID        *int64
	SelectedPrayers []string
	LeadMinutes     int
	Language        string
	ActivationToken string
}

func (s *Store) CreateSubscription(ctx context.Context, r CreateSubscriptionRequest) (Subscription, error) {
	if r.Channel != ChannelWhatsApp && r.Channel != ChannelEmail {
		return Subscription{}, ErrInvalidChannel
	}
	lead := NormalizeLeadMinutes(r.LeadMinutes)
	var sub Subscription
	err := s.DB.QueryRow(ctx, `
		INSERT INTO subscriptions(user_id, email, phone, channel, city_id, mosque_id,
		                          selected_prayers, lead_minutes, language, is_active, activation_token)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, user_id, email, phone, channel, city_id, mosque_id, selected_prayers,
		          lead_minutes, language, is_active, activated_at, unsubscribed_at, created_at
	`, r.UserID, r.Email, r.Phone, r.Channel, r.CityID, r.MosqueID,
		r.SelectedPrayers, lead, r.Language, r.ActivationToken).Scan(
		&sub.ID, &sub.UserID, &sub.Email, &sub.Phone, &sub.Channel, &sub.CityID, &sub.MosqueID,
		&sub.SelectedPrayers, &sub.LeadMinutes, &sub.Language, &sub.IsActive,
		&sub.ActivatedAt, &sub.UnsubscribedAt, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return Subscription{}, ErrEmailTaken
	}
	return sub, err
}

// ActivateSubscription flips a subscription active by its one-time token.
func (s *Store) ActivateSubscription(ctx context.Context, token string) (Subscription, error) {
	var sub Subscription
	err := s.DB.QueryRow(ctx, `
		UPDATE subscriptions
		SET is_active=true, activated_at=now(), activation_token='', updated_at=now()
		WHERE activation_token=$1 AND activation_token <> ''
		RETURNING id, user_id, email, phone, channel, city_id, mosque_id, selected_prayers,
		          lead_minutes, language, is_active, activated_at, unsubscribed_at, created_at
	`, token).Scan(
		&sub.ID, &sub.UserID, &sub.Email, &sub.Phone, &sub.Channel, &sub.CityID, &sub.MosqueID,
		&sub.SelectedPrayers, &sub.LeadMinutes, &sub.Language, &sub.IsActive,
		&sub.ActivatedAt, &sub.UnsubscribedAt, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return Subscription{}, ErrInvalidToken
	}
	return sub, err
}

func (s *Store) UnsubscribeByEmail(ctx context.Context, email string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE subscriptions SET is_active=false, unsubscribed_at=now(), updated_at=now()
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

func (s *Store) ListSubscriptions(ctx context.Context, userID *string) ([]Subscription, error) {
	q := `SELECT id, user_id, email, phone, channel, city_id, mosque_id, selected_prayers,
	             lead_minutes, language, is_active, activated_at, unsubscribed_at, created_at
	      FROM subscriptions`
	args := []any{}
	if userID != nil {
		q += ` WHERE user_id=$1`
		args = append(args, *userID)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Email, &sub.Phone, &sub.Channel,
			&sub.CityID, &sub.MosqueID, &sub.SelectedPrayers, &sub.LeadMinutes, &sub.Language,
			&sub.IsActive, &sub.ActivatedAt, &sub.UnsubscribedAt, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// SweepTarget is a subscription as the sweep sees it: with the location
// resolved to a concrete city (its own, or its mosque's).
type SweepTarget struct {
	Sub    Subscription
	CityID int64
}

// ListSweepTargets returns active subscriptions with a non-empty prayer
// selection and a resolvable location. Subscriptions without one are
// excluded here, before any schedule lookup happens.
func (s *Store) ListSweepTargets(ctx context.Context) ([]SweepTarget, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT s.id, s.user_id, s.email, s.phone, s.channel, s.city_id, s.mosque_id,
		       s.selected_prayers, s.lead_minutes, s.language, s.is_active,
		       s.activated_at, s.unsubscribed_at, s.created_at,
		       COALESCE(s.city_id, m.city_id) AS resolved_city_id
		FROM subscriptions s
		LEFT JOIN mosques m ON m.id = s.mosque_id
		WHERE s.is_active
		  AND cardinality(s.selected_prayers) > 0
		  AND COALESCE(s.city_id, m.city_id) IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SweepTarget
	for rows.Next() {
		var t SweepTarget
		if err := rows.Scan(&t.Sub.ID, &t.Sub.UserID, &t.Sub.Email, &t.Sub.Phone, &t.Sub.Channel,
			&t.Sub.CityID, &t.Sub.MosqueID, &t.Sub.SelectedPrayers, &t.Sub.LeadMinutes,
			&t.Sub.Language, &t.Sub.IsActive, &t.Sub.ActivatedAt, &t.Sub.UnsubscribedAt,
			&t.Sub.CreatedAt, &t.CityID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetSubscription(ctx context.Context, id int64) (Subscription, error) {
	var sub Subscription
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, email, phone, channel, city_id, mosque_id, selected_prayers,
		       lead_minutes, language, is_active, activated_at, unsubscribed_at, created_at
		FROM subscriptions WHERE id=$1
	`, id).Scan(&sub.ID, &sub.UserID, &sub.Email, &sub.Phone, &sub.Channel, &sub.CityID,
		&sub.MosqueID, &sub.SelectedPrayers, &sub.LeadMinutes, &sub.Language, &sub.IsActive,
		&sub.ActivatedAt, &sub.UnsubscribedAt, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

// Touch timestamps are driven by the DB; keep a helper for tests that
// need a subscription activated without the token round-trip.
func (s *Store) ForceActivate(ctx context.Context, id int64, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE subscriptions SET is_active=true, activated_at=$2, activation_token='' WHERE id=$1
	`, id, at)
	return err
}
