package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "COURIER_OTEL_ENDPOINT"
	envInsecure    = "COURIER_OTEL_INSECURE"
	envService     = "COURIER_OTEL_SERVICE"
	envVersion     = "COURIER_OTEL_VERSION"
	envDialTimeout = "COURIER_OTEL_DIAL_TIMEOUT"
	envHeaders     = "COURIER_OTEL_HEADERS"

	defaultServiceName = "courier-integration"
)

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv assembles telemetry settings from environment lookups. The
// lookup indirection keeps the function testable without mutating process
// state.
func ConfigFromEnv(lookup func(string) string) Config {
	if lookup == nil {
		return Config{ServiceName: defaultServiceName}
	}

	cfg := Config{
		Endpoint:    strings.TrimSpace(lookup(envEndpoint)),
		ServiceName: strings.TrimSpace(lookup(envService)),
		Version:     strings.TrimSpace(lookup(envVersion)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	if raw := strings.TrimSpace(lookup(envInsecure)); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			cfg.Insecure = b
		}
	}
	if raw := strings.TrimSpace(lookup(envDialTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.DialTimeout = d
		}
	}
	if headers, err := ParseHeaders(lookup(envHeaders)); err == nil {
		cfg.Headers = headers
	}

	return cfg
}

// ParseHeaders splits a comma separated list of key=value pairs, trimming
// whitespace around both. A blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	headers := make(map[string]string)
	for _, part := range strings.Split(trimmed, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("header entry %q missing '='", entry)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.New("header entry with empty key")
		}
		headers[key] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
