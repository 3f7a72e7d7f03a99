package session

import (
	"sync"
	"time"
)

// WatchdogInterval is how often the parse-phase watchdog reports
// progress (spec.md §5: "emits progress logs every 10 seconds").
const WatchdogInterval = 10 * time.Second

// StartWatchdog launches the purely-informational background ticker
// spec.md §5 describes: it logs elapsed time for the named phase every
// WatchdogInterval, never touches compiler state, and never fails. The
// returned stop function signals the goroutine and joins it, so the
// pipeline stays single-threaded from the watchdog's perspective once
// the phase ends.
func (s *Session) StartWatchdog(phase string) (stop func()) {
	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(WatchdogInterval)
		defer ticker.Stop()

		start := time.Now()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Log.Infof("%s: still running after %s", phase, time.Since(start).Round(time.Second))
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
