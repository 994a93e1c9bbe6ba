package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const scheduleCols = `id, city_id, day, fajr::text, sunrise::text, dhuhr::text, asr::text, maghrib::text, isha::text`

// GetSchedule loads the prayer schedule for one city and date.
func (s *Store) GetSchedule(ctx context.Context, cityID int64, day time.Time) (Schedule, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+scheduleCols+` FROM prayer_times WHERE city_id=$1 AND day=$2
	`, cityID, day)
	sc, err := scanSchedule(row)
	if err == pgx.ErrNoRows {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

// GetSchedules batch-loads one day's schedules for a set of cities in a
// single query. The result is keyed by city id; absent cities are
// simply missing from the map.
func (s *Store) GetSchedules(ctx context.Context, cityIDs []int64, day time.Time) (map[int64]Schedule, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+scheduleCols+` FROM prayer_times WHERE city_id = ANY($1) AND day=$2
	`, cityIDs, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Schedule, len(cityIDs))
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out[sc.CityID] = sc
	}
	return out, rows.Err()
}

// ListSchedules returns schedules for a city over [from, to].
func (s *Store) ListSchedules(ctx context.Context, cityID int64, from, to time.Time) ([]Schedule, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+scheduleCols+` FROM prayer_times
		WHERE city_id=$1 AND day >= $2 AND day <= $3
		ORDER BY day
	`, cityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type ScheduleInput struct {
	CityID  int64
	Day     time.Time
	Fajr    string
	Sunrise string
	Dhuhr   string
	Asr     string
	Maghrib string
	Isha    string
}

// InsertSchedule publishes one day's schedule. Published schedules are
// immutable: inserting over an existing (city, day) returns ErrImmutable.
func (s *Store) InsertSchedule(ctx context.Context, in ScheduleInput) error {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO prayer_times(city_id, day, fajr, sunrise, dhuhr, asr, maghrib, isha)
		VALUES($1,$2,$3::time,$4::time,$5::time,$6::time,$7::time,$8::time)
		ON CONFLICT (city_id, day) DO NOTHING
	`, in.CityID, in.Day, in.Fajr, in.Sunrise, in.Dhuhr, in.Asr, in.Maghrib, in.Isha)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrImmutable
	}
	return nil
}

func scanSchedule(row pgx.Row) (Schedule, error) {
	var sc Schedule
	var fajr, sunrise, dhuhr, asr, maghrib, isha string
	if err := row.Scan(&sc.ID, &sc.CityID, &sc.Day, &fajr, &sunrise, &dhuhr, &asr, &maghrib, &isha); err != nil {
		return Schedule{}, err
	}
	var err error
	if sc.Fajr, err = onDay(sc.Day, fajr); err != nil {
		return Schedule{}, err
	}
	if sc.Sunrise, err = onDay(sc.Day, sunrise); err != nil {
		return Schedule{}, err
	}
	if sc.Dhuhr, err = onDay(sc.Day, dhuhr); err != nil {
		return Schedule{}, err
	}
	if sc.Asr, err = onDay(sc.Day, asr); err != nil {
		return Schedule{}, err
	}
	if sc.Maghrib, err = onDay(sc.Day, maghrib); err != nil {
		return Schedule{}, err
	}
	if sc.Isha, err = onDay(sc.Day, isha); err != nil {
		return Schedule{}, err
	}
	return sc, nil
}

// onDay anchors a Postgres time-of-day literal ("HH:MM:SS") to a date.
func onDay(day time.Time, hhmmss string) (time.Time, error) {
	t, err := time.Parse("15:04:05", hhmmss)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", hhmmss, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
}
