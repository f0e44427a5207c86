// Package config resolves run configuration from flags, environment, an
// optional config file and built-in defaults, in that order of precedence.
// Malformed values never fail a run; they fall back to the default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/routeshot/internal/device"
	"github.com/JakeFAU/routeshot/internal/headless"
	"github.com/JakeFAU/routeshot/internal/route"
)

// Keys understood in the environment (upper-cased) and config files.
const (
	KeyBaseURL        = "base_url"
	KeyDevice         = "device"
	KeyRoutes         = "routes"
	KeyTimeoutMS      = "timeout_ms"
	KeyHeadless       = "headless"
	KeyConcurrency    = "concurrency"
	KeyExecutablePath = "executable_path"
	KeyOutputDir      = "output_dir"
	KeySettleMS       = "settle_ms"
	KeyReadyTimeoutMS = "ready_timeout_ms"
	KeyReadySelector  = "ready_selector"
	KeyFailFast       = "fail_fast"
	KeyNavQPS         = "nav_qps"
	KeyManifest       = "manifest"
	KeyMetricsFile    = "metrics_file"
	KeyArtifactBucket = "artifact_bucket"
	KeyArtifactPrefix = "artifact_prefix"
	KeyLogDevelopment = "log_development"
	KeyProgressBar    = "progress_bar"
)

// Defaults.
const (
	DefaultBaseURL       = "http://127.0.0.1:8080"
	DefaultTimeout       = 60 * time.Second
	DefaultConcurrency   = 16
	DefaultOutputDir     = "artifacts"
	DefaultSettle        = time.Second
	DefaultReadyTimeout  = 10 * time.Second
	DefaultReadySelector = "body"
)

// executableEnv lists the environment variables naming the browser binary,
// first match wins.
var executableEnv = []string{"PUPPETEER_EXECUTABLE_PATH", "CHROME_PATH", "EXECUTABLE_PATH"}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"base-url":    KeyBaseURL,
	"device":      KeyDevice,
	"routes":      KeyRoutes,
	"timeout-ms":  KeyTimeoutMS,
	"headless":    KeyHeadless,
	"concurrency": KeyConcurrency,
	"output-dir":  KeyOutputDir,
	"fail-fast":   KeyFailFast,
}

// Config is the fully resolved configuration of one run.
type Config struct {
	BaseURL        string
	Device         device.Profile
	Routes         []string
	NavTimeout     time.Duration
	Headless       headless.Mode
	Concurrency    int
	ExecutablePath string
	OutputDir      string
	Settle         time.Duration
	ReadyTimeout   time.Duration
	ReadySelector  string
	FailFast       bool
	NavQPS         float64
	Manifest       bool
	MetricsFile    string
	ArtifactBucket string
	ArtifactPrefix string
	LogDevelopment bool
	ProgressBar    bool
}

// Load builds a Config. path names an optional YAML/TOML/JSON file; flags, when
// non-nil, is the command's flag set and overrides everything else for the
// flags the user actually set.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(append([]string{KeyExecutablePath}, executableEnv...)...); err != nil {
		return Config{}, fmt.Errorf("bind executable env: %w", err)
	}

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyDevice, string(device.Desktop))
	v.SetDefault(KeyRoutes, "")
	v.SetDefault(KeyTimeoutMS, DefaultTimeout.Milliseconds())
	v.SetDefault(KeyHeadless, string(headless.ModeNew))
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
	v.SetDefault(KeyExecutablePath, "")
	v.SetDefault(KeyOutputDir, DefaultOutputDir)
	v.SetDefault(KeySettleMS, DefaultSettle.Milliseconds())
	v.SetDefault(KeyReadyTimeoutMS, DefaultReadyTimeout.Milliseconds())
	v.SetDefault(KeyReadySelector, DefaultReadySelector)
	v.SetDefault(KeyFailFast, false)
	v.SetDefault(KeyNavQPS, 0)
	v.SetDefault(KeyManifest, true)
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyArtifactBucket, "")
	v.SetDefault(KeyArtifactPrefix, "")
	v.SetDefault(KeyLogDevelopment, false)
	v.SetDefault(KeyProgressBar, false)
}

func fromViper(v *viper.Viper) Config {
	concurrency := intOr(v.Get(KeyConcurrency), DefaultConcurrency)
	if concurrency < 1 {
		concurrency = 1
	}
	return Config{
		BaseURL:        baseURLOr(v.GetString(KeyBaseURL), DefaultBaseURL),
		Device:         device.Parse(v.GetString(KeyDevice)),
		Routes:         routesFrom(v.Get(KeyRoutes)),
		NavTimeout:     millisOr(v.Get(KeyTimeoutMS), DefaultTimeout, false),
		Headless:       headless.ParseMode(v.GetString(KeyHeadless)),
		Concurrency:    concurrency,
		ExecutablePath: strings.TrimSpace(v.GetString(KeyExecutablePath)),
		OutputDir:      stringOr(v.GetString(KeyOutputDir), DefaultOutputDir),
		Settle:         millisOr(v.Get(KeySettleMS), DefaultSettle, true),
		ReadyTimeout:   millisOr(v.Get(KeyReadyTimeoutMS), DefaultReadyTimeout, false),
		ReadySelector:  stringOr(v.GetString(KeyReadySelector), DefaultReadySelector),
		FailFast:       boolOr(v.Get(KeyFailFast), false),
		NavQPS:         qpsOr(v.Get(KeyNavQPS)),
		Manifest:       boolOr(v.Get(KeyManifest), true),
		MetricsFile:    strings.TrimSpace(v.GetString(KeyMetricsFile)),
		ArtifactBucket: strings.TrimSpace(v.GetString(KeyArtifactBucket)),
		ArtifactPrefix: strings.Trim(v.GetString(KeyArtifactPrefix), "/ "),
		LogDevelopment: boolOr(v.Get(KeyLogDevelopment), false),
		ProgressBar:    boolOr(v.Get(KeyProgressBar), false),
	}
}

// Validate enforces the invariants a resolved Config must hold. Load never
// produces an invalid Config; this guards hand-built ones.
func (c Config) Validate() error {
	if _, err := route.ParseBase(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("timeout_ms must be > 0")
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("ready_timeout_ms must be > 0")
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle_ms must be >= 0")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must be set")
	}
	if c.NavQPS < 0 {
		return fmt.Errorf("nav_qps must be >= 0")
	}
	return nil
}

func baseURLOr(raw, def string) string {
	raw = strings.TrimSpace(raw)
	if _, err := route.ParseBase(raw); err != nil {
		return def
	}
	return raw
}

func stringOr(raw, def string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return def
}

func intOr(raw any, def int) int {
	n, err := cast.ToIntE(trimmed(raw))
	if err != nil {
		return def
	}
	return n
}

func millisOr(raw any, def time.Duration, allowZero bool) time.Duration {
	ms, err := cast.ToInt64E(trimmed(raw))
	if err != nil || ms < 0 || (ms == 0 && !allowZero) {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func boolOr(raw any, def bool) bool {
	b, err := cast.ToBoolE(trimmed(raw))
	if err != nil {
		return def
	}
	return b
}

func qpsOr(raw any) float64 {
	q, err := cast.ToFloat64E(trimmed(raw))
	if err != nil || q < 0 {
		return 0
	}
	return q
}

func routesFrom(raw any) []string {
	switch r := raw.(type) {
	case string:
		return route.Resolve(r)
	case nil:
		return route.Defaults()
	default:
		list, err := cast.ToStringSliceE(r)
		if err != nil {
			return route.Defaults()
		}
		return route.Resolve(strings.Join(list, ","))
	}
}

func trimmed(raw any) any {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return raw
}
