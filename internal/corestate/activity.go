package corestate

import "time"

func (s *State) touch() {
	s.lastActivityMu.Lock()
	s.lastActivity = time.Now()
	s.lastActivityMu.Unlock()
}

// Touch records user interaction, resetting the inactivity clock. Unlock
// resets the clock as well; the HTTP middleware stack does not call Touch.
func (s *State) Touch() {
	s.touch()
}

// CheckTimeout reports whether the configured inactivity timeout has
// elapsed since the last Touch. A single large jump — far beyond the
// timeout — is treated as a system sleep/suspend rather than genuine
// inactivity and resets the clock instead of locking, mirroring
// core_state.rs's check_timeout: real inactivity would already have
// tripped the timeout within one poll interval, so a jump that large can
// only be a clock discontinuity across suspend.
func (s *State) CheckTimeout() bool {
	s.lastActivityMu.Lock()
	defer s.lastActivityMu.Unlock()

	elapsed := time.Since(s.lastActivity)
	timeout := s.cfg.InactivityTimeout
	if timeout <= 0 {
		return false
	}
	if elapsed > timeout+s.cfg.SleepMargin {
		s.lastActivity = time.Now()
		return false
	}
	return elapsed > timeout
}

func (s *State) lastActivityAt() time.Time {
	s.lastActivityMu.Lock()
	defer s.lastActivityMu.Unlock()
	return s.lastActivity
}

// IdleDuration reports how long it has been since the last Touch.
func (s *State) IdleDuration() time.Duration {
	s.lastActivityMu.Lock()
	defer s.lastActivityMu.Unlock()
	return time.Since(s.lastActivity)
}
