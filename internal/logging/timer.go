package logging

import "time"

// Timer records the wall-clock duration of an operation and logs it at
// Debug level on Stop. Used throughout the store/outcome/context packages
// to surface slow-query and slow-composition diagnostics without
// instrumenting every call site by hand.
type Timer struct {
	logger *Logger
	op     string
	start  time.Time
}

// StartTimer begins timing op within category. Call Stop (typically via
// defer) to log the elapsed duration.
func StartTimer(category Category, op string) *Timer {
	return &Timer{logger: Get(category), op: op, start: time.Now()}
}

// Stop logs the elapsed duration at Debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("%s completed in %s", t.op, elapsed)
	return elapsed
}
