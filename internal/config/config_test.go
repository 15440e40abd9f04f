package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/modules/params"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 20*time.Second, cfg.Turn.Timeout)
	assert.Equal(t, 2, cfg.Turn.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Gateway.InitialBackoff)
	assert.Equal(t, []string{"gemini", "deepseek", "groq", "openai"}, cfg.Completion.Names())
	assert.Equal(t, params.DefaultSchema(), cfg.Dialogue.Schema)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WAYFARER_HTTP_ADDR", ":9090")
	t.Setenv("WAYFARER_TURN_TIMEOUT", "5s")
	t.Setenv("WAYFARER_PROVIDERS_GEMINI_API_KEY", "g-key")
	t.Setenv("WAYFARER_SESSION_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Turn.Timeout)
	assert.Equal(t, "g-key", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, "memory", cfg.Session.Backend)
}

func TestLoadFileWithPartialSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wayfarer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Lisbon
completion:
  primary: groq
  fallback: [groq, openai]
dialogue:
  schema:
    flight_search:
      required: [origin, destination, departure_date, return_date]
      priority: [destination, origin, departure_date, return_date]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", cfg.Location().String())
	assert.Equal(t, []string{"groq", "openai"}, cfg.Completion.Names())
	assert.Equal(t, params.FieldDestination, cfg.Dialogue.Schema[params.IntentFlightSearch].Priority[0])
	assert.Contains(t, cfg.Dialogue.Schema[params.IntentFlightSearch].Required, params.FieldReturnDate)
	assert.Equal(t, params.DefaultSchema()[params.IntentHotelSearch], cfg.Dialogue.Schema[params.IntentHotelSearch])
}

func TestLoadRejectsForeignSchemaField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dialogue:
  schema:
    hotel_search:
      required: [origin]
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong")
}
