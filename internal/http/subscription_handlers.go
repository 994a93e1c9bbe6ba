package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RaselmamunSD/Zuhha/internal/core"
)

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email           string   `json:"email"`
		Phone           string   `json:"phone"`
		Channel         string   `json:"channel"`
		CityID          *int64   `json:"city_id"`
		MosqueID        *int64   `json:"mosque_id"`
		SelectedPrayers []string `json:"selected_prayers"`
		LeadMinutes     int      `json:"lead_minutes"`
		Language        string   `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	if in.Channel == core.ChannelWhatsApp && in.Phone == "" {
		writeErr(w, 422, "phone_required")
		return
	}
	if in.CityID == nil && in.MosqueID == nil {
		writeErr(w, 422, "city_or_mosque_required")
		return
	}
	for _, p := range in.SelectedPrayers {
		if _, ok := (core.Schedule{}).TimeFor(p); !ok || p == core.PrayerSunrise {
			writeErr(w, 422, "invalid_prayer")
			return
		}
	}

	// Anonymous subscriptions are allowed; a valid bearer token just
	// links the subscription to the account.
	var userID *string
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if claims, err := s.Tokens.ParseAccess(strings.TrimPrefix(header, "Bearer ")); err == nil {
			userID = &claims.UserID
		}
	}
	sub, err := s.Store.CreateSubscription(r.Context(), core.CreateSubscriptionRequest{
		UserID:          userID,
		Email:           in.Email,
		Phone:           in.Phone,
		Channel:         in.Channel,
		CityID:          in.CityID,
		MosqueID:        in.MosqueID,
		SelectedPrayers: in.SelectedPrayers,
		LeadMinutes:     in.LeadMinutes,
		Language:        in.Language,
		ActivationToken: uuid.NewString(),
	})
	switch {
	case errors.Is(err, core.ErrInvalidChannel):
		writeErr(w, 422, "invalid_channel")
		return
	case errors.Is(err, core.ErrEmailTaken):
		writeErr(w, 409, "subscription_exists")
		return
	case err != nil:
		writeErr(w, 500, err.Error())
		return
	}
	s.Log.Info().Int64("subscription_id", sub.ID).Str("channel", sub.Channel).Msg("subscription created")
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) activateSubscription(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Token == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	sub, err := s.Store.ActivateSubscription(r.Context(), in.Token)
	if errors.Is(err, core.ErrInvalidToken) {
		writeErr(w, 404, "invalid_token")
		return
	}
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, sub)
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	if err := s.Store.UnsubscribeByEmail(r.Context(), in.Email); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeErr(w, 404, "subscription_not_found")
			return
		}
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFrom(r)
	if !ok {
		writeErr(w, 401, "invalid_token")
		return
	}
	uid := id.String()
	filter := &uid
	if c := claimsFrom(r); c != nil && c.IsAdmin && r.URL.Query().Get("all") == "true" {
		filter = nil
	}
	out, err := s.Store.ListSubscriptions(r.Context(), filter)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) subscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	sub, err := s.Store.SubscribeNewsletter(r.Context(), in.Email, uuid.NewString())
	if errors.Is(err, core.ErrEmailTaken) {
		writeErr(w, 409, "already_subscribed")
		return
	}
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) verifyNewsletter(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Code == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	if err := s.Store.VerifyNewsletter(r.Context(), in.Code); err != nil {
		if errors.Is(err, core.ErrInvalidToken) {
			writeErr(w, 404, "invalid_code")
			return
		}
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) unsubscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	if err := s.Store.UnsubscribeNewsletter(r.Context(), in.Email); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeErr(w, 404, "not_subscribed")
			return
		}
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) listDispatchLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFrom(r)
	if !ok {
		writeErr(w, 401, "invalid_token")
		return
	}
	uid := id.String()
	f := core.DispatchLogFilter{UserID: &uid, Limit: 50}
	q := r.URL.Query()
	if c := claimsFrom(r); c != nil && c.IsAdmin {
		if v := q.Get("subscription_id"); v != "" {
			sid, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeErr(w, 400, "invalid_subscription_id")
				return
			}
			f = core.DispatchLogFilter{SubscriptionID: &sid, Limit: 50}
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeErr(w, 400, "invalid_limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, 400, "invalid_offset")
			return
		}
		f.Offset = n
	}
	out, err := s.Store.ListDispatchLogs(r.Context(), f)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

// runDispatch lets operators force a sweep for the current minute
// without waiting for the scheduler tick.
func (s *Server) runDispatch(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Sweeper.Run(r.Context(), time.Now())
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]int{
		"targets":     stats.Targets,
		"enqueued":    stats.Enqueued,
		"deduped":     stats.Deduped,
		"no_schedule": stats.NoSchedule,
	})
}
