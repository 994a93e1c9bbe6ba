package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

var (
	ErrNotFound       = errors.New("not_found")
	ErrEmailTaken     = errors.New("email_taken")
	ErrUsernameTaken  = errors.New("username_taken")
	ErrInvalidToken   = errors.New("invalid_token")
	ErrImmutable      = errors.New("immutable_record")
	ErrAlreadyExists  = errors.New("already_exists")
	ErrInvalidChannel = errors.New("invalid_channel")
)

type CreateUserRequest struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// CreateUser inserts the user and its profile row in one transaction.
// A user row never exists without exactly one profile row.
func (s *Store) CreateUser(ctx context.Context, r CreateUserRequest) (User, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var taken bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, r.Email).Scan(&taken)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, ErrEmailTaken
	}
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, r.Username).Scan(&taken)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, ErrUsernameTaken
	}

	var u User
	err = tx.QueryRow(ctx, `
		INSERT INTO users(username, email, password_hash, first_name, last_name)
		VALUES($1,$2,$3,$4,$5)
		RETURNING id, username, email, password_hash, first_name, last_name, is_admin, is_active, created_at
	`, r.Username, r.Email, r.PasswordHash, r.FirstName, r.LastName).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO user_profiles(user_id) VALUES($1)`, u.ID)
	if err != nil {
		return User{}, err
	}
	return u, tx.Commit(ctx)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_admin, is_active, created_at
		FROM users WHERE email=$1
	`, email).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.IsActive, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_admin, is_active, created_at
		FROM users WHERE id=$1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.IsActive, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.DB.QueryRow(ctx, `
		SELECT user_id, phone, city_id, calculation_method, juristic_method,
		       fajr_notification, dhuhr_notification, asr_notification,
		       maghrib_notification, isha_notification, lead_minutes, language, updated_at
		FROM user_profiles WHERE user_id=$1
	`, userID).Scan(&p.UserID, &p.Phone, &p.CityID, &p.CalculationMethod, &p.JuristicMethod,
		&p.FajrNotification, &p.DhuhrNotification, &p.AsrNotification,
		&p.MaghribNotification, &p.IshaNotification, &p.LeadMinutes, &p.Language, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	return p, err
}

type UpdateProfileRequest struct {
	Phone               string
	CityID              *int64
	CalculationMethod   string
	JuristicMethod      string
	FajrNotification    bool
	DhuhrNotification   bool
	AsrNotification     bool
	MaghribNotification bool
	IshaNotification    bool
	LeadMinutes         int
	Language            string
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, r UpdateProfileRequest) (Profile, error) {
	lead := NormalizeLeadMinutes(r.LeadMinutes)
	ct, err := s.DB.Exec(ctx, `
		UPDATE user_profiles
		SET phone=$2, city_id=$3, calculation_method=$4, juristic_method=$5,
		    fajr_notification=$6, dhuhr_notification=$7, asr_notification=$8,
		    maghrib_notification=$9, isha_notification=$10,
		    lead_minutes=$11, language=$12, updated_at=now()
		WHERE user_id=$1
	`, userID, r.Phone, r.CityID, r.CalculationMethod, r.JuristicMethod,
		r.FajrNotification, r.DhuhrNotification, r.AsrNotification,
		r.MaghribNotification, r.IshaNotification, lead, r.Language)
	if err != nil {
		return Profile{}, err
	}
	if ct.RowsAffected() == 0 {
		return Profile{}, ErrNotFound
	}
	return s.GetProfile(ctx, userID)
}
