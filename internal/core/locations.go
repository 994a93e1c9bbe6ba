package core

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func (s *Store) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, code, phone_code, is_active
		FROM countries WHERE is_active ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Country
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.PhoneCode, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCountry(ctx context.Context, c Country) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO countries(name, code, phone_code) VALUES($1,$2,$3) RETURNING id
	`, c.Name, c.Code, c.PhoneCode).Scan(&id)
	return id, err
}

func (s *Store) ListCities(ctx context.Context, countryID *int64) ([]City, error) {
	q := `SELECT id, name, country_id, latitude, longitude, timezone, is_active
	      FROM cities WHERE is_active`
	args := []any{}
	if countryID != nil {
		q += ` AND country_id=$1`
		args = append(args, *countryID)
	}
	q += ` ORDER BY name`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.CountryID, &c.Latitude, &c.Longitude, &c.Timezone, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCity(ctx context.Context, id int64) (City, error) {
	var c City
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, country_id, latitude, longitude, timezone, is_active
		FROM cities WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.CountryID, &c.Latitude, &c.Longitude, &c.Timezone, &c.IsActive)
	if err == pgx.ErrNoRows {
		return City{}, ErrNotFound
	}
	return c, err
}

func (s *Store) CreateCity(ctx context.Context, c City) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO cities(name, country_id, latitude, longitude, timezone)
		VALUES($1,$2,$3,$4,$5) RETURNING id
	`, c.Name, c.CountryID, c.Latitude, c.Longitude, c.Timezone).Scan(&id)
	return id, err
}
