package session

import (
	"testing"
	"time"
)

func testTimer() *Timer {
	return NewTimer(55*time.Minute, 58*time.Minute, 60*time.Minute)
}

func TestCheckTimeLimitStages(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     time.Duration
		level       WarningLevel
		blocked     bool
		wantMessage bool
	}{
		{"well under", 30 * time.Minute, WarningNone, false, false},
		{"just before warning", 55*time.Minute - time.Second, WarningNone, false, false},
		{"at warning", 55 * time.Minute, WarningApproach, false, true},
		{"at critical", 58 * time.Minute, WarningCritical, false, true},
		{"at expiry", 60 * time.Minute, WarningCritical, true, true},
		{"past expiry", 61 * time.Minute, WarningCritical, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer := testTimer()
			sess := newSession("canvas-t")
			now := sess.StartTime.Add(tt.elapsed)

			status := timer.CheckTimeLimit(sess, now)

			if status.WarningLevel != tt.level {
				t.Errorf("Expected level %q, got %q", tt.level, status.WarningLevel)
			}
			if status.Blocked != tt.blocked {
				t.Errorf("Expected blocked=%v, got %v", tt.blocked, status.Blocked)
			}
			if (status.Message != "") != tt.wantMessage {
				t.Errorf("Expected message=%v, got %q", tt.wantMessage, status.Message)
			}
		})
	}
}

func TestCheckTimeLimitMessagesFireOnce(t *testing.T) {
	timer := testTimer()
	sess := newSession("canvas-once")

	warningTime := sess.StartTime.Add(55 * time.Minute)

	first := timer.CheckTimeLimit(sess, warningTime)
	if first.Message == "" {
		t.Error("Expected a message on first warning check")
	}

	second := timer.CheckTimeLimit(sess, warningTime.Add(time.Minute))
	if second.Message != "" {
		t.Errorf("Expected no repeat message, got %q", second.Message)
	}
	if second.WarningLevel != WarningApproach {
		t.Errorf("Expected level to stay set, got %q", second.WarningLevel)
	}

	// The critical stage fires its own one-shot message.
	critical := timer.CheckTimeLimit(sess, sess.StartTime.Add(58*time.Minute))
	if critical.Message == "" {
		t.Error("Expected a message on first critical check")
	}
	if timer.CheckTimeLimit(sess, sess.StartTime.Add(59*time.Minute)).Message != "" {
		t.Error("Expected no repeat critical message")
	}
}

func TestCheckTimeLimitWarningText(t *testing.T) {
	timer := testTimer()
	sess := newSession("canvas-text")

	status := timer.CheckTimeLimit(sess, sess.StartTime.Add(55*time.Minute))
	if status.Message != "Session ends in 5 minutes" {
		t.Errorf("Unexpected warning message: %q", status.Message)
	}

	sess2 := newSession("canvas-text-2")
	status2 := timer.CheckTimeLimit(sess2, sess2.StartTime.Add(58*time.Minute))
	if status2.Message != "Session ends in 2 minutes" {
		t.Errorf("Unexpected critical message: %q", status2.Message)
	}
}

func TestCheckTimeLimitRemainingClamped(t *testing.T) {
	timer := testTimer()
	sess := newSession("canvas-clamp")

	status := timer.CheckTimeLimit(sess, sess.StartTime.Add(2*time.Hour))
	if status.Remaining != 0 {
		t.Errorf("Expected remaining clamped to 0, got %v", status.Remaining)
	}
	if !status.IsExpired || !status.Blocked {
		t.Error("Expected expired and blocked past the hard cap")
	}
}
