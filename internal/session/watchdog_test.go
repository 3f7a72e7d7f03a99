package session

import (
	"testing"
	"time"
)

func TestWatchdogStopJoinsPromptly(t *testing.T) {
	s := New()

	stop := s.StartWatchdog("parse")

	done := make(chan struct{})

	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not join after stop")
	}
}

func TestWatchdogStopIsIdempotentAcrossPhases(t *testing.T) {
	s := New()

	for _, phase := range []string{"parse", "lower"} {
		stop := s.StartWatchdog(phase)
		stop()
	}
}
