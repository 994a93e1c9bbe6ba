package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RaselmamunSD/Zuhha/internal/core"
	"github.com/RaselmamunSD/Zuhha/internal/geo"
)

func (s *Server) listMosques(w http.ResponseWriter, r *http.Request) {
	var f core.MosqueFilter
	q := r.URL.Query()
	if v := q.Get("city_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, 400, "invalid_city_id")
			return
		}
		f.CityID = &id
	}
	for param, dst := range map[string]**bool{
		"verified":    &f.IsVerified,
		"has_parking": &f.HasParking,
		"has_jumuah":  &f.HasJumuah,
	} {
		if v := q.Get(param); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeErr(w, 400, "invalid_"+param)
				return
			}
			*dst = &b
		}
	}
	out, err := s.Store.ListMosques(r.Context(), f)
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) nearbyMosques(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		writeErr(w, 400, "invalid_latitude")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		writeErr(w, 400, "invalid_longitude")
		return
	}
	radius := 10.0
	if v := q.Get("radius"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil || radius <= 0 {
			writeErr(w, 400, "invalid_radius")
			return
		}
	}
	mosques, err := s.Store.ListLocatedMosques(r.Context())
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, geo.Nearby(mosques, lat, lng, radius))
}

func (s *Server) getMosque(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErr(w, 400, "invalid_id")
		return
	}
	m, err := s.Store.GetMosque(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		writeErr(w, 404, "mosque_not_found")
		return
	}
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, m)
}

type mosqueBody struct {
	Name             string   `json:"name"`
	CityID           int64    `json:"city_id"`
	Address          string   `json:"address"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Phone            string   `json:"phone"`
	Email            string   `json:"email"`
	Website          string   `json:"website"`
	HasParking       bool     `json:"has_parking"`
	HasWuduArea      bool     `json:"has_wudu_area"`
	HasWomenFacility bool     `json:"has_women_facility"`
	HasJumuah        bool     `json:"has_jumuah"`
	Capacity         int      `json:"capacity"`
}

func (b mosqueBody) toModel() core.Mosque {
	return core.Mosque{
		Name: b.Name, CityID: b.CityID, Address: b.Address,
		Latitude: b.Latitude, Longitude: b.Longitude,
		Phone: b.Phone, Email: b.Email, Website: b.Website,
		HasParking: b.HasParking, HasWuduArea: b.HasWuduArea,
		HasWomenFacility: b.HasWomenFacility, HasJumuah: b.HasJumuah,
		Capacity: b.Capacity, IsActive: true,
	}
}

func (s *Server) createMosque(w http.ResponseWriter, r *http.Request) {
	var in mosqueBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.CityID == 0 {
		writeErr(w, 400, "invalid_body")
		return
	}
	id, err := s.Store.CreateMosque(r.Context(), in.toModel())
	if err != nil {
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) updateMosque(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErr(w, 400, "invalid_id")
		return
	}
	var in mosqueBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.CityID == 0 {
		writeErr(w, 400, "invalid_body")
		return
	}
	m := in.toModel()
	m.ID = id
	if err := s.Store.UpdateMosque(r.Context(), m); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeErr(w, 404, "mosque_not_found")
			return
		}
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) verifyMosque(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErr(w, 400, "invalid_id")
		return
	}
	if err := s.Store.VerifyMosque(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeErr(w, 404, "mosque_not_found")
			return
		}
		writeErr(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]bool{"ok": true})
}
