package controller

import "time"

// State is the controller's mode and timing bookkeeping. Automatic and
// NoticeActive are independent, giving four reachable combinations.
type State struct {
	Automatic    bool
	LastToggle   time.Time
	LastMonitor  time.Time
	NoticeActive bool
	NoticeStart  time.Time
}

func newState(now time.Time) State {
	return State{Automatic: true, LastMonitor: now}
}

// CanToggle is false within debounce of the previous toggle.
func (s *State) CanToggle(now time.Time, debounce time.Duration) bool {
	return s.LastToggle.IsZero() || now.Sub(s.LastToggle) >= debounce
}

// Toggle flips the mode and opens the notice window.
func (s *State) Toggle(now time.Time) {
	s.Automatic = !s.Automatic
	s.LastToggle = now
	s.NoticeActive = true
	s.NoticeStart = now
}

func (s *State) NoticeExpired(now time.Time, duration time.Duration) bool {
	return s.NoticeActive && now.Sub(s.NoticeStart) >= duration
}

// MonitorDue is never true while a notice is showing.
func (s *State) MonitorDue(now time.Time, interval time.Duration) bool {
	return !s.NoticeActive && now.Sub(s.LastMonitor) >= interval
}

func (s *State) Mode() string {
	return modeName(s.Automatic)
}

func modeName(automatic bool) string {
	if automatic {
		return "automatic"
	}
	return "manual"
}
