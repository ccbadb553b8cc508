package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "simgate", cfg.Database.DBName)
	assert.Equal(t, 10*time.Second, cfg.Database.Timeout)
	assert.Equal(t, 5.0, cfg.Gateway.ActivationCost)
	assert.Equal(t, 0, cfg.Gateway.DailyActivationCap)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.ReservationLease)
	assert.Equal(t, "Request cancelled by administrator", cfg.Gateway.CancelMessage)
	assert.True(t, cfg.RabbitMQ.Enabled)
}

func TestLoadConfig_FileValues(t *testing.T) {
	dir := writeConfig(t, `
app:
  port: 9090
gateway:
  activationcost: 12.5
  dailyactivationcap: 20
  reservationlease: 90s
telegram:
  adminchatids: [11, 22]
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 12.5, cfg.Gateway.ActivationCost)
	assert.Equal(t, 20, cfg.Gateway.DailyActivationCap)
	assert.Equal(t, 90*time.Second, cfg.Gateway.ReservationLease)
	assert.Equal(t, []int64{11, 22}, cfg.Telegram.AdminChatIDs)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, "gateway:\n  activationcost: 3\n")
	t.Setenv("ACTIVATION_COST", "7.5")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 7.5, cfg.Gateway.ActivationCost)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Database.URI)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"negative activation cost", func(c *Config) { c.Gateway.ActivationCost = -1 }, true},
		{"zero lease", func(c *Config) { c.Gateway.ReservationLease = 0 }, true},
		{"short encryption key", func(c *Config) { c.Encryption.Key = "short" }, true},
		{"32 byte encryption key", func(c *Config) { c.Encryption.Key = "12345678901234567890123456789012" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Gateway: GatewayConfig{ReservationLease: time.Minute}}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
