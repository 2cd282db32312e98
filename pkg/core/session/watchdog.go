package session

import "time"

// WatchdogState is the silence watchdog's lifecycle position.
type WatchdogState int

const (
	// WatchdogDisarmed means no deadline is pending. A qualifying inbound
	// event re-arms.
	WatchdogDisarmed WatchdogState = iota
	// WatchdogArmed means a deadline is pending.
	WatchdogArmed
	// WatchdogFired means the deadline elapsed and escalation was handed
	// off. Stays fired until a qualifying event re-arms.
	WatchdogFired
)

// Watchdog is the per-session silence timer. It is owned by the session's
// event loop and must only be touched from that goroutine; the loop selects
// on C() and calls Expire when it fires, so the event-vs-deadline race
// resolves in favor of whichever the loop observes first.
type Watchdog struct {
	threshold time.Duration
	now       func() time.Time

	state    WatchdogState
	deadline time.Time
	timer    *time.Timer
}

// NewWatchdog creates an armed watchdog: session establishment counts as the
// first qualifying event, so the silence threshold runs from creation even if
// the user never sends anything. now is replaceable for tests.
func NewWatchdog(threshold time.Duration, now func() time.Time) *Watchdog {
	if now == nil {
		now = time.Now
	}
	w := &Watchdog{threshold: threshold, now: now}
	w.Observe()
	return w
}

// Observe records a qualifying inbound event: the deadline moves to
// now+threshold and a fired or disarmed watchdog re-arms.
func (w *Watchdog) Observe() {
	w.deadline = w.now().Add(w.threshold)
	w.state = WatchdogArmed
	if w.timer == nil {
		w.timer = time.NewTimer(w.threshold)
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.threshold)
}

// C returns the timer channel, or nil while the watchdog is not armed so a
// select over it never fires spuriously.
func (w *Watchdog) C() <-chan time.Time {
	if w.state != WatchdogArmed || w.timer == nil {
		return nil
	}
	return w.timer.C
}

// Expire is called when C() fires. It reports true exactly once per arm
// cycle: if an event moved the deadline after the timer was scheduled, the
// watchdog re-schedules for the remainder and does not fire.
func (w *Watchdog) Expire() bool {
	if w.state != WatchdogArmed {
		return false
	}
	if remaining := w.deadline.Sub(w.now()); remaining > 0 {
		w.timer.Reset(remaining)
		return false
	}
	w.state = WatchdogFired
	return true
}

// Disarm stops the watchdog without firing, e.g. on graceful disconnect.
func (w *Watchdog) Disarm() {
	w.state = WatchdogDisarmed
	if w.timer != nil && !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
}

// State returns the current lifecycle position.
func (w *Watchdog) State() WatchdogState {
	return w.state
}

// Deadline returns the pending deadline; meaningful only while armed.
func (w *Watchdog) Deadline() time.Time {
	return w.deadline
}
