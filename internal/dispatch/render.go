package dispatch

import (
	"fmt"
	"strings"

	"github.com/RaselmamunSD/Zuhha/internal/core"
)

// prayerNames maps language -> prayer -> localized display name.
// Unknown languages fall back to English.
var prayerNames = map[string]map[string]string{
	"en": {
		core.PrayerFajr:    "Fajr",
		core.PrayerDhuhr:   "Dhuhr",
		core.PrayerAsr:     "Asr",
		core.PrayerMaghrib: "Maghrib",
		core.PrayerIsha:    "Isha",
	},
	"bn": {
		core.PrayerFajr:    "ফজর",
		core.PrayerDhuhr:   "যোহর",
		core.PrayerAsr:     "আছর",
		core.PrayerMaghrib: "মাগরিব",
		core.PrayerIsha:    "এশা",
	},
	"ar": {
		core.PrayerFajr:    "الفجر",
		core.PrayerDhuhr:   "الظهر",
		core.PrayerAsr:     "العصر",
		core.PrayerMaghrib: "المغرب",
		core.PrayerIsha:    "العشاء",
	},
}

func localizedPrayer(language, prayer string) string {
	names, ok := prayerNames[language]
	if !ok {
		names = prayerNames["en"]
	}
	if n, ok := names[prayer]; ok {
		return n
	}
	if prayer == "" {
		return prayer
	}
	return strings.ToUpper(prayer[:1]) + prayer[1:]
}

// RenderReminder builds the per-prayer reminder message.
func RenderReminder(language, prayer string, prayerAt string, leadMinutes int) string {
	return fmt.Sprintf("🕋 %s prayer in %d minutes at %s", localizedPrayer(language, prayer), leadMinutes, prayerAt)
}

// RenderDailySummary builds the six-line daily schedule message.
func RenderDailySummary(sc core.Schedule) string {
	var b strings.Builder
	b.WriteString("📅 Today's Prayer Times:\n\n")
	fmt.Fprintf(&b, "🌅 Fajr: %s\n", sc.Fajr.Format("15:04"))
	fmt.Fprintf(&b, "☀️ Dhuhr: %s\n", sc.Dhuhr.Format("15:04"))
	fmt.Fprintf(&b, "🌤️ Asr: %s\n", sc.Asr.Format("15:04"))
	fmt.Fprintf(&b, "🌅 Maghrib: %s\n", sc.Maghrib.Format("15:04"))
	fmt.Fprintf(&b, "🌙 Isha: %s\n\n", sc.Isha.Format("15:04"))
	b.WriteString("JazakAllah Khair! 🙏")
	return b.String()
}

// RenderWeeklySummary builds the 7-day overview message.
func RenderWeeklySummary(schedules []core.Schedule) string {
	var b strings.Builder
	b.WriteString("📅 Weekly Prayer Times Summary:\n\n")
	for i, sc := range schedules {
		if i >= 7 {
			break
		}
		fmt.Fprintf(&b, "%s:\n", sc.Day.Format("2006-01-02"))
		fmt.Fprintf(&b, "  Fajr: %s | Dhuhr: %s\n", sc.Fajr.Format("15:04"), sc.Dhuhr.Format("15:04"))
		fmt.Fprintf(&b, "  Asr: %s | Maghrib: %s | Isha: %s\n\n",
			sc.Asr.Format("15:04"), sc.Maghrib.Format("15:04"), sc.Isha.Format("15:04"))
	}
	b.WriteString("JazakAllah Khair! 🙏")
	return b.String()
}
