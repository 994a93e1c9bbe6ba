package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RaselmamunSD/Zuhha/internal/auth"
	"github.com/RaselmamunSD/Zuhha/internal/core"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Email == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	if len(in.Password) < 8 {
		writeErr(w, 422, "password_too_short")
		return
	}
	if in.PasswordConfirm != "" && in.PasswordConfirm != in.Password {
		writeErr(w, 422, "password_mismatch")
		return
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	u, err := s.Store.CreateUser(r.Context(), core.CreateUserRequest{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	switch {
	case errors.Is(err, core.ErrEmailTaken):
		writeErr(w, 409, "email_taken")
		return
	case errors.Is(err, core.ErrUsernameTaken):
		writeErr(w, 409, "username_taken")
		return
	case err != nil:
		writeErr(w, 500, err.Error())
		return
	}
	pair, err := s.Tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u, "access": pair.Access, "refresh": pair.Refresh})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	u, err := s.Store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil || !auth.CheckPassword(u.PasswordHash, in.Password) {
		writeErr(w, 401, "invalid_credentials")
		return
	}
	if !u.IsActive {
		writeErr(w, 403, "account_disabled")
		return
	}
	pair, err := s.Tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]string{"access": pair.Access, "refresh": pair.Refresh})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Refresh == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	claims, err := s.Tokens.ParseRefresh(in.Refresh)
	if err != nil {
		writeErr(w, 401, "invalid_token")
		return
	}
	// Re-read the user so a freshly revoked or promoted account takes
	// effect on the next rotation.
	u, err := s.Store.GetUser(r.Context(), claims.UserID)
	if err != nil || !u.IsActive {
		writeErr(w, 401, "invalid_token")
		return
	}
	pair, err := s.Tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]string{"access": pair.Access, "refresh": pair.Refresh})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFrom(r)
	if !ok {
		writeErr(w, 401, "invalid_token")
		return
	}
	u, err := s.Store.GetUser(r.Context(), id.String())
	if err != nil {
		writeErr(w, 404, "user_not_found")
		return
	}
	p, err := s.Store.GetProfile(r.Context(), id.String())
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"user": u, "profile": p})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFrom(r)
	if !ok {
		writeErr(w, 401, "invalid_token")
		return
	}
	var in struct {
		Phone               string `json:"phone"`
		CityID              *int64 `json:"city_id"`
		CalculationMethod   string `json:"calculation_method"`
		JuristicMethod      string `json:"juristic_method"`
		FajrNotification    bool   `json:"fajr_notification"`
		DhuhrNotification   bool   `json:"dhuhr_notification"`
		AsrNotification     bool   `json:"asr_notification"`
		MaghribNotification bool   `json:"maghrib_notification"`
		IshaNotification    bool   `json:"isha_notification"`
		LeadMinutes         int    `json:"lead_minutes"`
		Language            string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, 400, "invalid_body")
		return
	}
	p, err := s.Store.UpdateProfile(r.Context(), id.String(), core.UpdateProfileRequest{
		Phone:               in.Phone,
		CityID:              in.CityID,
		CalculationMethod:   in.CalculationMethod,
		JuristicMethod:      in.JuristicMethod,
		FajrNotification:    in.FajrNotification,
		DhuhrNotification:   in.DhuhrNotification,
		AsrNotification:     in.AsrNotification,
		MaghribNotification: in.MaghribNotification,
		IshaNotification:    in.IshaNotification,
		LeadMinutes:         in.LeadMinutes,
		Language:            in.Language,
	})
	if errors.Is(err, core.ErrNotFound) {
		writeErr(w, 404, "profile_not_found")
		return
	}
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, p)
}
