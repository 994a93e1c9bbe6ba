package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type MosqueFilter struct {
	CityID     *int64
	IsVerified *bool
	HasParking *bool
	HasJumuah  *bool
}

func (s *Store) ListMosques(ctx context.Context, f MosqueFilter) ([]Mosque, error) {
	q := `SELECT id, name, city_id, address, latitude, longitude, phone, email, website,
	             has_parking, has_wudu_area, has_women_facility, has_jumuah, capacity,
	             is_verified, is_active, created_at
	      FROM mosques WHERE is_active`
	args := []any{}
	idx := 1
	if f.CityID != nil {
		q += fmt.Sprintf(" AND city_id=$%d", idx)
		args = append(args, *f.CityID)
		idx++
	}
	if f.IsVerified != nil {
		q += fmt.Sprintf(" AND is_verified=$%d", idx)
		args = append(args, *f.IsVerified)
		idx++
	}
	if f.HasParking != nil {
		q += fmt.Sprintf(" AND has_parking=$%d", idx)
		args = append(args, *f.HasParking)
		idx++
	}
	if f.HasJumuah != nil {
		q += fmt.Sprintf(" AND has_jumuah=$%d", idx)
		args = append(args, *f.HasJumuah)
		idx++
	}
	q += " ORDER BY name"
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMosques(rows)
}

// ListLocatedMosques returns active mosques that have coordinates, for
// the nearby lookup. Radius filtering happens in the geo package.
func (s *Store) ListLocatedMosques(ctx context.Context) ([]Mosque, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, city_id, address, latitude, longitude, phone, email, website,
		       has_parking, has_wudu_area, has_women_facility, has_jumuah, capacity,
		       is_verified, is_active, created_at
		FROM mosques
		WHERE is_active AND latitude IS NOT NULL AND longitude IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMosques(rows)
}

func scanMosques(rows pgx.Rows) ([]Mosque, error) {
	var out []Mosque
	for rows.Next() {
		var m Mosque
		if err := rows.Scan(&m.ID, &m.Name, &m.CityID, &m.Address, &m.Latitude, &m.Longitude,
			&m.Phone, &m.Email, &m.Website, &m.HasParking, &m.HasWuduArea, &m.HasWomenFacility,
			&m.HasJumuah, &m.Capacity, &m.IsVerified, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetMosque(ctx context.Context, id int64) (Mosque, error) {
	var m Mosque
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, city_id, address, latitude, longitude, phone, email, website,
		       has_parking, has_wudu_area, has_women_facility, has_jumuah, capacity,
		       is_verified, is_active, created_at
		FROM mosques WHERE id=$1
	`, id).Scan(&m.ID, &m.Name, &m.CityID, &m.Address, &m.Latitude, &m.Longitude,
		&m.Phone, &m.Email, &m.Website, &m.HasParking, &m.HasWuduArea, &m.HasWomenFacility,
		&m.HasJumuah, &m.Capacity, &m.IsVerified, &m.IsActive, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return Mosque{}, ErrNotFound
	}
	return m, err
}

func (s *Store) CreateMosque(ctx context.Context, m Mosque) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO mosques(name, city_id, address, latitude, longitude, phone, email, website,
		                    has_parking, has_wudu_area, has_women_facility, has_jumuah, capacity)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, m.Name, m.CityID, m.Address, m.Latitude, m.Longitude, m.Phone, m.Email, m.Website,
		m.HasParking, m.HasWuduArea, m.HasWomenFacility, m.HasJumuah, m.Capacity).Scan(&id)
	return id, err
}

func (s *Store) UpdateMosque(ctx context.Context, m Mosque) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE mosques
		SET name=$2, city_id=$3, address=$4, latitude=$5, longitude=$6, phone=$7, email=$8,
		    website=$9, has_parking=$10, has_wudu_area=$11, has_women_facility=$12,
		    has_jumuah=$13, capacity=$14, is_active=$15, updated_at=now()
		WHERE id=$1
	`, m.ID, m.Name, m.CityID, m.Address, m.Latitude, m.Longitude, m.Phone, m.Email,
		m.Website, m.HasParking, m.HasWuduArea, m.HasWomenFacility, m.HasJumuah, m.Capacity, m.IsActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) VerifyMosque(ctx context.Context, id int64) error {
	ct, err := s.DB.Exec(ctx, `UPDATE mosques SET is_verified=true, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
