package session

import (
	"fmt"
	"math"
	"time"
)

// WarningLevel is the graduated time-limit warning stage of a session.
type WarningLevel string

const (
	WarningNone     WarningLevel = ""
	WarningApproach WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
)

// TimeLimitStatus is the result of a time-limit check for one session.
type TimeLimitStatus struct {
	Elapsed      time.Duration `json:"elapsed"`
	Remaining    time.Duration `json:"remaining"`
	WarningLevel WarningLevel  `json:"warning_level,omitempty"`
	IsExpired    bool          `json:"is_expired"`
	Blocked      bool          `json:"blocked"`
	// Message is set only the first time a warning level is reached so
	// callers are not flooded on every chunk.
	Message string `json:"message,omitempty"`
}

// Timer evaluates a session's elapsed time against the hard session cap
// and emits one-shot graduated warnings.
type Timer struct {
	warning  time.Duration
	critical time.Duration
	expire   time.Duration
}

// NewTimer creates a session timer with the given graduated thresholds.
func NewTimer(warning, critical, expire time.Duration) *Timer {
	return &Timer{
		warning:  warning,
		critical: critical,
		expire:   expire,
	}
}

// CheckTimeLimit evaluates the session's elapsed time at the given
// instant. Once the hard cap is reached the result is blocked. The
// warning and critical messages each fire exactly once per session.
func (t *Timer) CheckTimeLimit(s *Session, now time.Time) TimeLimitStatus {
	elapsed := now.Sub(s.StartTime)
	remaining := t.expire - elapsed
	if remaining < 0 {
		remaining = 0
	}

	status := TimeLimitStatus{
		Elapsed:   elapsed,
		Remaining: remaining,
	}

	switch {
	case elapsed >= t.expire:
		status.IsExpired = true
		status.Blocked = true
		status.WarningLevel = WarningCritical
		status.Message = "Session time limit reached, recording is blocked"

	case elapsed >= t.critical:
		status.WarningLevel = WarningCritical
		if s.markWarnedOnce(WarningCritical) {
			status.Message = fmt.Sprintf("Session ends in %d minutes", minutesLeft(remaining))
		}

	case elapsed >= t.warning:
		status.WarningLevel = WarningApproach
		if s.markWarnedOnce(WarningApproach) {
			status.Message = fmt.Sprintf("Session ends in %d minutes", minutesLeft(remaining))
		}
	}

	return status
}

func minutesLeft(remaining time.Duration) int {
	return int(math.Ceil(remaining.Minutes()))
}
