package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RaselmamunSD/Zuhha/internal/core"
)

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	out, err := s.Store.ListCountries(r.Context())
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) createCountry(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string `json:"name"`
		Code      string `json:"code"`
		PhoneCode string `json:"phone_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Code == "" {
		writeErr(w, 400, "invalid_body")
		return
	}
	id, err := s.Store.CreateCountry(r.Context(), core.Country{Name: in.Name, Code: in.Code, PhoneCode: in.PhoneCode, IsActive: true})
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	var countryID *int64
	if v := r.URL.Query().Get("country_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, 400, "invalid_country_id")
			return
		}
		countryID = &id
	}
	out, err := s.Store.ListCities(r.Context(), countryID)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) createCity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string  `json:"name"`
		CountryID int64   `json:"country_id"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.CountryID == 0 {
		writeErr(w, 400, "invalid_body")
		return
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			writeErr(w, 422, "invalid_timezone")
			return
		}
	}
	id, err := s.Store.CreateCity(r.Context(), core.City{
		Name: in.Name, CountryID: in.CountryID,
		Latitude: in.Latitude, Longitude: in.Longitude,
		Timezone: in.Timezone, IsActive: true,
	})
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listPrayerTimes(w http.ResponseWriter, r *http.Request) {
	cityID, err := strconv.ParseInt(r.URL.Query().Get("city_id"), 10, 64)
	if err != nil {
		writeErr(w, 400, "invalid_city_id")
		return
	}
	from, to := time.Now().UTC(), time.Now().UTC().AddDate(0, 0, 7)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			writeErr(w, 400, "invalid_from")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			writeErr(w, 400, "invalid_to")
			return
		}
	}
	out, err := s.Store.ListSchedules(r.Context(), cityID, from, to)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) todayPrayerTimes(w http.ResponseWriter, r *http.Request) {
	cityID, err := strconv.ParseInt(r.URL.Query().Get("city_id"), 10, 64)
	if err != nil {
		writeErr(w, 400, "invalid_city_id")
		return
	}
	sc, err := s.Store.GetSchedule(r.Context(), cityID, time.Now().In(s.Sweeper.Loc))
	if errors.Is(err, core.ErrNotFound) {
		writeErr(w, 404, "schedule_not_found")
		return
	}
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, sc)
}

type scheduleDay struct {
	Day     string `json:"day"`
	Fajr    string `json:"fajr"`
	Sunrise string `json:"sunrise"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
}

// publishPrayerTimes bulk-inserts schedules for a city. Days already
// published are immutable and are reported as skipped, not replaced.
func (s *Server) publishPrayerTimes(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CityID int64         `json:"city_id"`
		Days   []scheduleDay `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.CityID == 0 || len(in.Days) == 0 {
		writeErr(w, 400, "invalid_body")
		return
	}

	inputs := make([]core.ScheduleInput, 0, len(in.Days))
	for _, d := range in.Days {
		day, err := time.Parse("2006-01-02", d.Day)
		if err != nil {
			writeErr(w, 400, "invalid_day")
			return
		}
		for _, hhmm := range []string{d.Fajr, d.Sunrise, d.Dhuhr, d.Asr, d.Maghrib, d.Isha} {
			if _, err := time.Parse("15:04", hhmm); err != nil {
				writeErr(w, 422, "invalid_time")
				return
			}
		}
		inputs = append(inputs, core.ScheduleInput{
			CityID: in.CityID, Day: day,
			Fajr: d.Fajr, Sunrise: d.Sunrise, Dhuhr: d.Dhuhr,
			Asr: d.Asr, Maghrib: d.Maghrib, Isha: d.Isha,
		})
	}

	inserted, skipped := 0, 0
	for _, sc := range inputs {
		err := s.Store.InsertSchedule(r.Context(), sc)
		if errors.Is(err, core.ErrImmutable) {
			skipped++
			continue
		}
		if err != nil {
			writeErr(w, 500, err.Error())
			return
		}
		inserted++
	}
	if inserted == 0 {
		writeJSON(w, http.StatusConflict, map[string]int{"inserted": 0, "skipped": skipped})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted, "skipped": skipped})
}
