package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// TrustedOrigins may send cross-origin state-changing requests
	// (e.g., "https://partner.example.com"). Comma separated.
	TrustedOrigins []string `env:"HTTP_TRUSTED_ORIGINS"`

	// CompressionLevel is the gzip compression level (1-9).
	// Default is 6 (standard gzip default).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
}

// UploadConfig controls where /api/upload writes files.
type UploadConfig struct {
	Dir      string `env:"DIR"       envDefault:"uploads"`
	MaxBytes int64  `env:"MAX_BYTES" envDefault:"10485760"`
}

// Sanitize applies guardrails to upload configuration values.
func (u *UploadConfig) Sanitize() {
	if u.MaxBytes <= 0 {
		u.MaxBytes = 10 << 20
	}
	if u.Dir == "" {
		u.Dir = "uploads"
	}
}
