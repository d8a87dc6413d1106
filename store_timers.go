package authclient

import "time"

// sessionTimers owns the background session-expiry poll and the inactivity
// watchdog. One instance lives per authenticated session; Clear closes done,
// and every callback re-checks that it still owns the store before acting, so
// no queued timer callback can fire after Clear has completed.
type sessionTimers struct {
	done     chan struct{}
	activity chan struct{}
}

func (s *SecureStore) startTimersLocked() {
	if s.timers != nil {
		return
	}
	t := &sessionTimers{
		done:     make(chan struct{}),
		activity: make(chan struct{}, 1),
	}
	s.timers = t
	go s.watch(t)
}

func (s *SecureStore) stopTimersLocked() {
	if s.timers == nil {
		return
	}
	close(s.timers.done)
	s.timers = nil
}

// pingActivityLocked nudges the watchdog to reschedule against the current
// last-activity time and tenant policy. Non-blocking; a pending nudge is
// enough.
func (s *SecureStore) pingActivityLocked() {
	if s.timers == nil {
		return
	}
	select {
	case s.timers.activity <- struct{}{}:
	default:
	}
}

// inactivityTimeout resolves the effective idle limit: the tenant's security
// policy when set, the configured default otherwise.
func (s *SecureStore) inactivityTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inactivityTimeoutLocked()
}

func (s *SecureStore) inactivityTimeoutLocked() time.Duration {
	if s.tenant != nil && s.tenant.Settings.Security.SessionTimeout > 0 {
		return s.tenant.Settings.Security.SessionTimeout
	}
	return s.cfg.InactivityTimeout
}

func (s *SecureStore) watch(t *sessionTimers) {
	expiry := time.NewTicker(s.cfg.ExpiryCheckInterval)
	defer expiry.Stop()

	idle := time.NewTimer(s.inactivityTimeout())
	defer idle.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-expiry.C:
			s.checkExpiry(t)
		case <-t.activity:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleRemaining())
		case <-idle.C:
			s.handleIdle(t)
			// Re-arm in case the deadline moved; if the session was
			// cleared, done is already closed and the next select exits.
			idle.Reset(s.idleRemaining())
		}
	}
}

// idleRemaining is the time left before the inactivity limit, measured from
// the last registered activity.
func (s *SecureStore) idleRemaining() time.Duration {
	s.mu.RLock()
	last := s.lastActivity
	limit := s.inactivityTimeoutLocked()
	now := s.now()
	s.mu.RUnlock()

	remaining := limit - now.Sub(last)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return remaining
}

// checkExpiry guards against a token silently expiring while the client is
// idle and no request is in flight.
func (s *SecureStore) checkExpiry(t *sessionTimers) {
	s.mu.RLock()
	stale := s.timers != t
	access := s.accessToken
	s.mu.RUnlock()
	if stale || access == "" {
		return
	}

	if _, err := s.codec.Validate(access); err != nil {
		s.clearWithReason("session_expired", AuditFailure,
			"Your session has expired. Please sign in again.")
	}
}

func (s *SecureStore) handleIdle(t *sessionTimers) {
	s.mu.RLock()
	stale := s.timers != t
	last := s.lastActivity
	limit := s.inactivityTimeoutLocked()
	now := s.now()
	s.mu.RUnlock()
	if stale {
		return
	}

	// Activity may have arrived between the timer firing and this check.
	if now.Sub(last) < limit {
		return
	}

	s.metrics.Inc(MetricSessionTimeout)
	s.clearWithReason("session_timeout", AuditFailure,
		"You were signed out after a period of inactivity.")
}
