// internal/sweeps/permitexpiry/config.go
package permitexpiry

import "time"

type Config struct {
	Timeout       time.Duration
	Window        time.Duration // expiry lookahead
	RenotifyAfter time.Duration // suppression window for repeat warnings
	ClaimDedup    bool          // atomic claim write before dispatching
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		Window:        30 * 24 * time.Hour,
		RenotifyAfter: 7 * 24 * time.Hour,
		ClaimDedup:    true,
	}
}
