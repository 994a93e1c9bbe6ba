package core

import (
	"time"
)

// Prayer names recognized by the dispatch sweep. "daily" and "weekly"
// select the summary messages rather than a single prayer reminder.
const (
	PrayerFajr    = "fajr"
	PrayerSunrise = "sunrise"
	PrayerDhuhr   = "dhuhr"
	PrayerAsr     = "asr"
	PrayerMaghrib = "maghrib"
	PrayerIsha    = "isha"

	SummaryDaily  = "daily"
	SummaryWeekly = "weekly"
)

// NotifiablePrayers are the prayers a subscriber can get reminders for.
// Sunrise is published in schedules but never dispatched.
var NotifiablePrayers = []string{PrayerFajr, PrayerDhuhr, PrayerAsr, PrayerMaghrib, PrayerIsha}

// Delivery channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// Dispatch log statuses.
const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// LeadMinuteChoices is the closed set of reminder lead times. Values
// outside the set coerce to DefaultLeadMinutes.
var LeadMinuteChoices = []int{10, 20, 30}

const DefaultLeadMinutes = 10

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsAdmin      bool      `json:"is_admin"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Profile struct {
	UserID              string    `json:"user_id"`
	Phone               string    `json:"phone"`
	CityID              *int64    `json:"city_id,omitempty"`
	CalculationMethod   string    `json:"calculation_method"`
	JuristicMethod      string    `json:"juristic_method"`
	FajrNotification    bool      `json:"fajr_notification"`
	DhuhrNotification   bool      `json:"dhuhr_notification"`
	AsrNotification     bool      `json:"asr_notification"`
	MaghribNotification bool      `json:"maghrib_notification"`
	IshaNotification    bool      `json:"isha_notification"`
	LeadMinutes         int       `json:"lead_minutes"`
	Language            string    `json:"language"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Country struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	PhoneCode string `json:"phone_code"`
	IsActive  bool   `json:"is_active"`
}

type City struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	CountryID int64   `json:"country_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	IsActive  bool    `json:"is_active"`
}

type Mosque struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	CityID           int64     `json:"city_id"`
	Address          string    `json:"address"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	Website          string    `json:"website"`
	HasParking       bool      `json:"has_parking"`
	HasWuduArea      bool      `json:"has_wudu_area"`
	HasWomenFacility bool      `json:"has_women_facility"`
	HasJumuah        bool      `json:"has_jumuah"`
	Capacity         int       `json:"capacity"`
	IsVerified       bool      `json:"is_verified"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	DistanceKM       *float64  `json:"distance_km,omitempty"`
}

// Schedule holds the six daily prayer times for one city and date.
type Schedule struct {
	ID      int64     `json:"id"`
	CityID  int64     `json:"city_id"`
	Day     time.Time `json:"day"`
	Fajr    time.Time `json:"fajr"`
	Sunrise time.Time `json:"sunrise"`
	Dhuhr   time.Time `json:"dhuhr"`
	Asr     time.Time `json:"asr"`
	Maghrib time.Time `json:"maghrib"`
	Isha    time.Time `json:"isha"`
}

// TimeFor returns the schedule entry for a prayer name, or false when
// the name does not map to a schedule column.
func (s Schedule) TimeFor(prayer string) (time.Time, bool) {
	switch prayer {
	case PrayerFajr:
		return s.Fajr, true
	case PrayerSunrise:
		return s.Sunrise, true
	case PrayerDhuhr:
		return s.Dhuhr, true
	case PrayerAsr:
		return s.Asr, true
	case PrayerMaghrib:
		return s.Maghrib, true
	case PrayerIsha:
		return s.Isha, true
	}
	return time.Time{}, false
}

type Subscription struct {
	ID              int64      `json:"id"`
	UserID          *string    `json:"user_id,omitempty"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Channel         string     `json:"channel"`
	CityID          *int64     `json:"city_id,omitempty"`
	MosqueID        *int64     `json:"mosque_id,omitempty"`
	SelectedPrayers []string   `json:"selected_prayers"`
	LeadMinutes     int        `json:"lead_minutes"`
	Language        string     `json:"language"`
	IsActive        bool       `json:"is_active"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	UnsubscribedAt  *time.Time `json:"unsubscribed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Recipient is the channel-specific address the delivery layer sends to.
func (s Subscription) Recipient() string {
	if s.Channel == ChannelEmail {
		return s.Email
	}
	return s.Phone
}

type DispatchLog struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscription_id"`
	PrayerName     string     `json:"prayer_name"`
	WindowStart    time.Time  `json:"window_start"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	ProviderSID    *string    `json:"provider_sid,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type NewsletterSubscription struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	IsActive               bool       `json:"is_active"`
	IsVerified             bool       `json:"is_verified"`
	PrayerUpdates          bool       `json:"prayer_updates"`
	ImportantAnnouncements bool       `json:"important_announcements"`
	SubscribedAt           time.Time  `json:"subscribed_at"`
	UnsubscribedAt         *time.Time `json:"unsubscribed_at,omitempty"`
}

// NormalizeLeadMinutes coerces a lead time to the closed choice set.
func NormalizeLeadMinutes(m int) int {
	for _, c := range LeadMinuteChoices {
		if m == c {
			return m
		}
	}
	return DefaultLeadMinutes
}
