// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/connector and cmd/vgctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultVirtuagymBaseURL = "https://api.virtuagym.com/api/v1"
	DefaultTimezone         = "Europe/Amsterdam"
)

// DefaultExcludedMemberships are membership names that never count as
// expiring contracts.
var DefaultExcludedMemberships = []string{"Premium Flex", "Student Flex"}

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Virtuagym upstream
	ClubID                    string
	APIKey                    string
	ClubSecret                string
	VirtuagymBaseURL          string
	UpstreamRequestsPerMinute int

	// Homey downstream (empty = notifications disabled)
	HomeyURL string

	// Club timezone for all day-boundary and display-time math
	Timezone string

	// Poller
	PollInterval     time.Duration
	InterEventDelay  time.Duration
	SpikeThreshold   int
	CooldownDuration time.Duration

	// Daily scheduler
	ScheduleCheckInterval time.Duration
	MemberCheckDelay      time.Duration
	ReportCooldown        time.Duration
	ExcludedMemberships   []string

	// HTTP server
	APIHost          string
	APIPort          int
	CORSAllowOrigins []string
}

// Load reads configuration from environment variables with sensible
// defaults. CLUB_ID, API_KEY, and CLUB_SECRET are required.
func Load() (*Config, error) {
	var missing []string
	for _, key := range []string{"CLUB_ID", "API_KEY", "CLUB_SECRET"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return &Config{
		ClubID:                    os.Getenv("CLUB_ID"),
		APIKey:                    os.Getenv("API_KEY"),
		ClubSecret:                os.Getenv("CLUB_SECRET"),
		VirtuagymBaseURL:          envOr("VIRTUAGYM_BASE_URL", DefaultVirtuagymBaseURL),
		UpstreamRequestsPerMinute: envInt("VG_REQUESTS_PER_MINUTE", 20),

		HomeyURL: envOr("HOMEY_URL", ""),

		Timezone: envOr("CLUB_TIMEZONE", DefaultTimezone),

		PollInterval:     envDuration("POLL_INTERVAL", 120*time.Second),
		InterEventDelay:  envDuration("INTER_EVENT_DELAY", 1500*time.Millisecond),
		SpikeThreshold:   envInt("SPIKE_THRESHOLD", 12),
		CooldownDuration: envDuration("COOLDOWN_DURATION", 10*time.Minute),

		ScheduleCheckInterval: envDuration("SCHEDULE_CHECK_INTERVAL", 60*time.Second),
		MemberCheckDelay:      envDuration("MEMBER_CHECK_DELAY", time.Second),
		ReportCooldown:        envDuration("REPORT_COOLDOWN", 7*24*time.Hour),
		ExcludedMemberships:   envList("EXCLUDED_MEMBERSHIPS", DefaultExcludedMemberships),

		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envInt("API_PORT", envInt("PORT", 3000)),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),
	}, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
