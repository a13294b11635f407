// Package config loads readykit settings from flags, environment and an
// optional YAML file through viper.
//
// Precedence, highest first: bound flags, READYKIT_* environment
// variables, the config file, defaults. Nested keys map to environment
// variables with "_" in place of ".", e.g. READYKIT_BACKOFF_MAX_ATTEMPTS.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/readykit/internal/checklist"
	"github.com/roach88/readykit/internal/geo"
	"github.com/roach88/readykit/internal/syncqueue"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "READYKIT"

// Keys.
const (
	KeyDB                 = "db"
	KeyAPIURL             = "api_url"
	KeyToken              = "token"
	KeyPhone              = "phone"
	KeyDebounce           = "debounce"
	KeyFlushConcurrency   = "flush_concurrency"
	KeyBackoffBase        = "backoff.base"
	KeyBackoffMax         = "backoff.max"
	KeyBackoffMaxAttempts = "backoff.max_attempts"
	KeyProbeInterval      = "probe_interval"
	KeyGeoTimeout         = "geo.timeout"
	KeyGeoProbeTimeout    = "geo.probe_timeout"
	KeyGeoLatitude        = "geo.latitude"
	KeyGeoLongitude       = "geo.longitude"
	KeyGeoAccuracy        = "geo.accuracy"
	KeyCaptureMaxDim      = "capture.max_dimension"
)

// Config is the resolved configuration.
type Config struct {
	DB               string
	APIURL           string
	Token            string
	Phone            string
	Debounce         time.Duration
	FlushConcurrency int
	Backoff          syncqueue.Backoff
	ProbeInterval    time.Duration
	Geo              Geo
	CaptureMaxDim    int
}

// Geo configures the position source used by the capture command.
// A fix is available only when both coordinates are set.
type Geo struct {
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Latitude     *float64
	Longitude    *float64
	Accuracy     float64
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDB, "readykit.db")
	v.SetDefault(KeyAPIURL, "http://localhost:8001")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyPhone, "")
	v.SetDefault(KeyDebounce, checklist.DefaultDebounce)
	v.SetDefault(KeyFlushConcurrency, 1)
	v.SetDefault(KeyBackoffBase, time.Duration(0))
	v.SetDefault(KeyBackoffMax, time.Duration(0))
	v.SetDefault(KeyBackoffMaxAttempts, 0)
	v.SetDefault(KeyProbeInterval, 30*time.Second)
	v.SetDefault(KeyGeoTimeout, geo.DefaultTimeout)
	v.SetDefault(KeyGeoProbeTimeout, geo.DefaultProbeTimeout)
	v.SetDefault(KeyGeoAccuracy, 10.0)
	v.SetDefault(KeyCaptureMaxDim, 2048)
}

// ReadFile reads path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves v into a Config and checks it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		DB:               v.GetString(KeyDB),
		APIURL:           strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		Token:            v.GetString(KeyToken),
		Phone:            v.GetString(KeyPhone),
		Debounce:         v.GetDuration(KeyDebounce),
		FlushConcurrency: v.GetInt(KeyFlushConcurrency),
		Backoff: syncqueue.Backoff{
			Base:        v.GetDuration(KeyBackoffBase),
			Max:         v.GetDuration(KeyBackoffMax),
			MaxAttempts: v.GetInt(KeyBackoffMaxAttempts),
		},
		ProbeInterval: v.GetDuration(KeyProbeInterval),
		Geo: Geo{
			Timeout:      v.GetDuration(KeyGeoTimeout),
			ProbeTimeout: v.GetDuration(KeyGeoProbeTimeout),
			Accuracy:     v.GetFloat64(KeyGeoAccuracy),
		},
		CaptureMaxDim: v.GetInt(KeyCaptureMaxDim),
	}
	if v.IsSet(KeyGeoLatitude) && v.IsSet(KeyGeoLongitude) {
		lat, lng := v.GetFloat64(KeyGeoLatitude), v.GetFloat64(KeyGeoLongitude)
		cfg.Geo.Latitude, cfg.Geo.Longitude = &lat, &lng
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must not be empty"))
	}
	if c.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("debounce must be positive, got %s", c.Debounce))
	}
	if c.FlushConcurrency < 1 {
		errs = append(errs, fmt.Errorf("flush_concurrency must be at least 1, got %d", c.FlushConcurrency))
	}
	if c.Backoff.Base < 0 || c.Backoff.Max < 0 || c.Backoff.MaxAttempts < 0 {
		errs = append(errs, errors.New("backoff values must not be negative"))
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("probe_interval must be positive, got %s", c.ProbeInterval))
	}
	if c.Geo.Timeout <= 0 || c.Geo.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("geo timeouts must be positive"))
	}
	if c.CaptureMaxDim < 0 {
		errs = append(errs, fmt.Errorf("capture.max_dimension must not be negative, got %d", c.CaptureMaxDim))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
