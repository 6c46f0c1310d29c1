package domain

import (
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyEvery2Days Frequency = "every_2_days"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
)

// Period returns the fixed recurrence interval. Monthly has none because
// calendar months differ in length.
func (f Frequency) Period() (time.Duration, bool) {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyEvery2Days:
		return 48 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyEvery2Days, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	case "":
		return FrequencyDaily, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Site identifies what is being backed up.
type Site struct {
	Root       string `json:"root"`
	URL        string `json:"url"`
	Name       string `json:"name"`
	AppVersion string `json:"app_version"`
}

// Settings is the configuration a job runs with. A copy is frozen into each
// job at start and never re-read while the job is in flight.
type Settings struct {
	Site            Site     `json:"site"`
	Destination     string   `json:"destination"`
	RetainDays      int      `json:"retain_days"`
	ExcludeDirs     []string `json:"exclude_dirs"`
	ExcludePatterns []string `json:"exclude_patterns"`
	NamePattern     string   `json:"name_pattern"`
}

// Clone returns a deep copy so the job never aliases live configuration.
func (s Settings) Clone() Settings {
	out := s
	out.ExcludeDirs = append([]string(nil), s.ExcludeDirs...)
	out.ExcludePatterns = append([]string(nil), s.ExcludePatterns...)
	return out
}

// Schedule is the recurrence policy for automatic backups.
type Schedule struct {
	Enabled   bool           `json:"enabled"`
	Frequency Frequency      `json:"frequency"`
	Time      string         `json:"time"`
	Location  *time.Location `json:"-"`
}
