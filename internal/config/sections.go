package config

import "strings"

// RelaySettings names the relay endpoints tried after a direct call fails.
// Headers ride every relay call (typically a relay auth key) and never reach
// the upstream courier.
type RelaySettings struct {
	Primary   RelayEndpoint `json:"primary"   toml:"primary"`
	Secondary RelayEndpoint `json:"secondary" toml:"secondary"`
}

type RelayEndpoint struct {
	URL            string            `json:"url"             toml:"url"`
	Headers        map[string]string `json:"headers"         toml:"headers"`
	TimeoutSeconds float64           `json:"timeout_seconds" toml:"timeout_seconds"`
}

func (r RelayEndpoint) Configured() bool {
	return strings.TrimSpace(r.URL) != ""
}

type LimitSettings struct {
	SizeCeilingBytes int64   `json:"size_ceiling_bytes" toml:"size_ceiling_bytes"`
	MaxPages         int     `json:"max_pages"          toml:"max_pages"`
	TimeoutSeconds   float64 `json:"timeout_seconds"    toml:"timeout_seconds"`
}

type BatchSettings struct {
	Size int `json:"size" toml:"size"`
	// nil means "use the default pause"; the field is a pointer because
	// TOML cannot distinguish an explicit 0, which disables the pause,
	// from an unset field.
	PauseSeconds *float64 `json:"pause_seconds" toml:"pause_seconds"`
}

type StoreSettings struct {
	Path    string `json:"path"     toml:"path"`
	MaxRuns int    `json:"max_runs" toml:"max_runs"`
}

// RuleSettings points extraction at either a rule file or inline dot paths.
// The file wins when both are set.
type RuleSettings struct {
	Path  string   `json:"path"  toml:"path"`
	Paths []string `json:"paths" toml:"paths"`
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type LogSettings struct {
	Level  LogLevel  `json:"level"  toml:"level"`
	Format LogFormat `json:"format" toml:"format"`
}

// TelemetrySettings mirrors the env-driven telemetry config so installations
// can keep everything in one file. Env values win when both are set.
type TelemetrySettings struct {
	Endpoint    string            `json:"endpoint"     toml:"endpoint"`
	Insecure    bool              `json:"insecure"     toml:"insecure"`
	ServiceName string            `json:"service_name" toml:"service_name"`
	Headers     map[string]string `json:"headers"      toml:"headers"`
}

const (
	LimitSizeCeilingDefault = int64(5.5 * 1024 * 1024)
	LimitSizeCeilingMax     = int64(6 * 1024 * 1024)
	LimitMaxPagesDefault    = 5
	LimitMaxPagesMax        = 50
	LimitTimeoutDefault     = 30.0
	LimitTimeoutMax         = 600.0
	BatchSizeDefault        = 5
	BatchSizeMax            = 50
	BatchPauseDefault       = 1.0
	BatchPauseMax           = 60.0
	StoreMaxRunsDefault     = 200
)

func DefaultSettings() Settings {
	return Settings{
		Limits: LimitSettings{
			SizeCeilingBytes: LimitSizeCeilingDefault,
			MaxPages:         LimitMaxPagesDefault,
			TimeoutSeconds:   LimitTimeoutDefault,
		},
		Batch: BatchSettings{
			Size:         BatchSizeDefault,
			PauseSeconds: floatPtr(BatchPauseDefault),
		},
		Store: StoreSettings{
			MaxRuns: StoreMaxRunsDefault,
		},
		Log: LogSettings{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}
}

// NormaliseSettings clamps every numeric field into its legal range and
// falls back to defaults for zero or out-of-range values. The size ceiling
// is additionally capped under the relay infrastructure's 6 MB hard limit.
func NormaliseSettings(in Settings) Settings {
	out := in

	out.Limits.SizeCeilingBytes = clampInt64(
		in.Limits.SizeCeilingBytes,
		1,
		LimitSizeCeilingMax,
		LimitSizeCeilingDefault,
	)
	out.Limits.MaxPages = clampInt(
		in.Limits.MaxPages,
		1,
		LimitMaxPagesMax,
		LimitMaxPagesDefault,
	)
	out.Limits.TimeoutSeconds = clampFloat(
		in.Limits.TimeoutSeconds,
		0.1,
		LimitTimeoutMax,
		LimitTimeoutDefault,
	)
	out.Batch.Size = clampInt(in.Batch.Size, 1, BatchSizeMax, BatchSizeDefault)
	out.Batch.PauseSeconds = clampOptionalFloat(
		in.Batch.PauseSeconds,
		BatchPauseMax,
		BatchPauseDefault,
	)
	if out.Store.MaxRuns <= 0 {
		out.Store.MaxRuns = StoreMaxRunsDefault
	}
	out.Log.Level = normaliseLogLevel(in.Log.Level, LogLevelInfo)
	out.Log.Format = normaliseLogFormat(in.Log.Format, LogFormatText)
	return out
}

func normaliseLogLevel(in LogLevel, def LogLevel) LogLevel {
	switch strings.ToLower(strings.TrimSpace(string(in))) {
	case string(LogLevelDebug):
		return LogLevelDebug
	case string(LogLevelInfo):
		return LogLevelInfo
	case string(LogLevelWarn):
		return LogLevelWarn
	case string(LogLevelError):
		return LogLevelError
	default:
		return def
	}
}

func normaliseLogFormat(in LogFormat, def LogFormat) LogFormat {
	switch strings.ToLower(strings.TrimSpace(string(in))) {
	case string(LogFormatText):
		return LogFormatText
	case string(LogFormatJSON):
		return LogFormatJSON
	default:
		return def
	}
}

func clampFloat[T ~float64](value, min, max, fallback T) T {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// clampOptionalFloat keeps an explicit zero: a batch pause of 0 means "no
// pause", not "use the default". Only an absent field (nil) or a negative
// value falls back.
func clampOptionalFloat(value *float64, max, fallback float64) *float64 {
	switch {
	case value == nil || *value < 0:
		return floatPtr(fallback)
	case *value > max:
		return floatPtr(max)
	default:
		return floatPtr(*value)
	}
}

func floatPtr(v float64) *float64 { return &v }

func clampInt(value, min, max, fallback int) int {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt64(value, min, max, fallback int64) int64 {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
