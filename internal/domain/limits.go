package domain

import "time"

// UsageLimits is the account quota reported by the native service.
type UsageLimits struct {
	ExecutionCount int64
	ExecutionTime  time.Duration
	MaxTimeout     time.Duration
}

func (l UsageLimits) IsZero() bool {
	return l == UsageLimits{}
}

// AllowsTimeout reports whether a job timeout fits under the account ceiling.
// An unknown ceiling allows everything.
func (l UsageLimits) AllowsTimeout(timeout time.Duration) bool {
	if l.MaxTimeout <= 0 {
		return true
	}
	return timeout <= l.MaxTimeout
}
