package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CLUB_ID", "1234")
	t.Setenv("API_KEY", "key")
	t.Setenv("CLUB_SECRET", "secret")
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("CLUB_ID", "")
	t.Setenv("API_KEY", "")
	t.Setenv("CLUB_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLUB_ID")
	assert.Contains(t, err.Error(), "API_KEY")
	assert.NotContains(t, err.Error(), "CLUB_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultVirtuagymBaseURL, cfg.VirtuagymBaseURL)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, 120*time.Second, cfg.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.InterEventDelay)
	assert.Equal(t, 12, cfg.SpikeThreshold)
	assert.Equal(t, 10*time.Minute, cfg.CooldownDuration)
	assert.Equal(t, 7*24*time.Hour, cfg.ReportCooldown)
	assert.Equal(t, DefaultExcludedMemberships, cfg.ExcludedMemberships)
	assert.Empty(t, cfg.HomeyURL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("SPIKE_THRESHOLD", "15")
	t.Setenv("EXCLUDED_MEMBERSHIPS", "Premium Flex, Day Pass")
	t.Setenv("HOMEY_URL", "https://webhook.homey.app/abc/vg_checkin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 15, cfg.SpikeThreshold)
	assert.Equal(t, []string{"Premium Flex", "Day Pass"}, cfg.ExcludedMemberships)
	assert.Equal(t, "https://webhook.homey.app/abc/vg_checkin", cfg.HomeyURL)
}

func TestEnvDurationFallsBackOnGarbage(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.PollInterval)
}
