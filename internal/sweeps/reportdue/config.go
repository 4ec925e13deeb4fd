// internal/sweeps/reportdue/config.go
package reportdue

import "time"

type Config struct {
	Timeout       time.Duration
	Window        time.Duration // due-date lookahead
	RenotifyAfter time.Duration
	ClaimDedup    bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		Window:        30 * 24 * time.Hour,
		RenotifyAfter: 7 * 24 * time.Hour,
		ClaimDedup:    true,
	}
}
