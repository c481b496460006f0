package config

import "time"

type HTTPConfig interface {
	GetHTTPTimeout() time.Duration
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

// GetHTTPTimeout bounds each outbound call. Zero means the transport default.
func (HTTP) GetHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(GetEnv("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return 30 * time.Second
	}
	return d
}
