// internal/sweeps/inspectionreminder/config.go
package inspectionreminder

import "time"

type Config struct {
	Timeout       time.Duration
	Window        time.Duration // scheduled-date lookahead
	RenotifyAfter time.Duration
	ClaimDedup    bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		Window:        3 * 24 * time.Hour,
		RenotifyAfter: 24 * time.Hour,
		ClaimDedup:    true,
	}
}
