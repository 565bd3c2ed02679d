package config

import "strings"

// MetricsConfig controls StatsD metrics.
type MetricsConfig struct {
	// StatsdAddress is host:port of a StatsD agent; empty disables metrics.
	StatsdAddress string `env:"STATSD_ADDRESS"`
	Prefix        string `env:"METRICS_PREFIX" envDefault:"lessonhub"`
	// Env is attached to every metric as the env tag when set.
	Env string `env:"METRICS_ENV"`
}

// Enabled reports whether a StatsD agent is configured.
func (m MetricsConfig) Enabled() bool {
	return strings.TrimSpace(m.StatsdAddress) != ""
}
