package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GatewayAddr)
	assert.Equal(t, 200, cfg.RingSize)
	assert.Equal(t, 256, cfg.ConsumerQueue)
	assert.Equal(t, 60*time.Second, cfg.QuoteTTL)
	assert.Equal(t, 50, cfg.WhaleMax)
	assert.Equal(t, 100_000.0, cfg.WhaleThreshold)
	assert.Equal(t, time.Second, cfg.BackoffMin)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.PostgresURL)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  addr: ":9090"
stream:
  ringSize: 500
quote:
  ttl: 15s
  fallbacks:
    - symbol: BTC-USD
      bid: 64000
      ask: 64010
whale:
  threshold: 250000
feeds:
  polygonApiKey: pk_file
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.GatewayAddr)
	assert.Equal(t, 500, cfg.RingSize)
	assert.Equal(t, 15*time.Second, cfg.QuoteTTL)
	assert.Equal(t, 250_000.0, cfg.WhaleThreshold)
	assert.Equal(t, "pk_file", cfg.PolygonAPIKey)
	require.Len(t, cfg.QuoteFallbacks, 1)
	assert.Equal(t, "BTC-USD", cfg.QuoteFallbacks[0].Symbol)

	// untouched sections keep their defaults
	assert.Equal(t, 256, cfg.ConsumerQueue)
	assert.Equal(t, 50, cfg.WhaleMax)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  ringSize: 500\n"), 0o600))

	t.Setenv("FEEDCORE_RING_SIZE", "64")
	t.Setenv("FEEDCORE_QUOTE_TTL", "90s")
	t.Setenv("FEEDCORE_POLYGON_API_KEY", "pk_env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.RingSize)
	assert.Equal(t, 90*time.Second, cfg.QuoteTTL)
	assert.Equal(t, "pk_env", cfg.PolygonAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FEEDCORE_RING_SIZE", "-1")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("FEEDCORE_RING_SIZE", "not-a-number")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("FEEDCORE_RING_SIZE", "100")
	t.Setenv("FEEDCORE_BACKOFF_MIN", "10s")
	t.Setenv("FEEDCORE_BACKOFF_MAX", "1s")
	_, err = Load("")
	assert.Error(t, err, "max below min is rejected")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
