// internal/sweeps/escalation/config.go
package escalation

import "time"

type Config struct {
	Timeout   time.Duration
	UnreadAge time.Duration // unread-for-at-least threshold
	Keywords  []string      // title allowlist, case-sensitive substring match
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   60 * time.Second,
		UnreadAge: 24 * time.Hour,
		Keywords:  []string{"Alert", "Warning", "Required", "Review", "Expiration"},
	}
}
