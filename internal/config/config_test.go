package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/readykit/internal/syncqueue"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "readykit.db", cfg.DB)
	assert.Equal(t, "http://localhost:8001", cfg.APIURL)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, 1, cfg.FlushConcurrency)
	assert.Equal(t, syncqueue.Backoff{}, cfg.Backoff)
	assert.Equal(t, 8*time.Second, cfg.Geo.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Geo.ProbeTimeout)
	assert.Nil(t, cfg.Geo.Latitude)
	assert.Nil(t, cfg.Geo.Longitude)
	assert.Equal(t, 2048, cfg.CaptureMaxDim)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("READYKIT_API_URL", "https://api.example.org/")
	t.Setenv("READYKIT_DEBOUNCE", "250ms")
	t.Setenv("READYKIT_BACKOFF_BASE", "2s")
	t.Setenv("READYKIT_BACKOFF_MAX_ATTEMPTS", "5")
	t.Setenv("READYKIT_GEO_LATITUDE", "13.05")
	t.Setenv("READYKIT_GEO_LONGITUDE", "123.52")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.org", cfg.APIURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 2*time.Second, cfg.Backoff.Base)
	assert.Equal(t, 5, cfg.Backoff.MaxAttempts)
	require.NotNil(t, cfg.Geo.Latitude)
	assert.InDelta(t, 13.05, *cfg.Geo.Latitude, 1e-9)
	assert.InDelta(t, 123.52, *cfg.Geo.Longitude, 1e-9)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readykit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/readykit/state.db
token: abc
phone: "+63 917 000 0000"
flush_concurrency: 4
backoff:
  base: 1s
  max: 1m
geo:
  latitude: 13.1
`), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/readykit/state.db", cfg.DB)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, "+63 917 000 0000", cfg.Phone)
	assert.Equal(t, 4, cfg.FlushConcurrency)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Nil(t, cfg.Geo.Latitude, "one coordinate is not a fix")
}

func TestReadFile(t *testing.T) {
	assert.NoError(t, ReadFile(New(), ""))
	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestLoad_Invalid(t *testing.T) {
	v := New()
	v.Set(KeyDB, "")
	v.Set(KeyFlushConcurrency, 0)
	v.Set(KeyDebounce, "0s")
	v.Set(KeyBackoffMaxAttempts, -1)
	v.Set(KeyProbeInterval, "0s")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db must not be empty")
	assert.Contains(t, err.Error(), "flush_concurrency")
	assert.Contains(t, err.Error(), "debounce")
	assert.Contains(t, err.Error(), "backoff")
	assert.Contains(t, err.Error(), "probe_interval")
}
