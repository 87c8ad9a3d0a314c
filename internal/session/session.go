/*
Package session holds the per-browser state of the application: the last
submitted profile, the last successfully generated plan and the progress log.
State lives only in memory and is dropped when the session ends or expires.
*/
package session

import (
	"sync"
	"time"

	"FitCoach_V0.1/internal/fitness"
	"golang.org/x/time/rate"
)

// Session is the explicit state object handed to every handler. All methods
// are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	profile  *fitness.UserProfile
	plan     *fitness.PlanResponse
	progress fitness.ProgressLog
	limiter  *rate.Limiter
}

func newSession(id string, now time.Time, limiter *rate.Limiter) *Session {
	return &Session{ID: id, CreatedAt: now, limiter: limiter}
}

// AllowPlan reports whether another plan request may be issued now.
func (s *Session) AllowPlan() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// SetProfile records the profile of the latest submission.
func (s *Session) SetProfile(p fitness.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
}

// Profile returns the latest submitted profile.
func (s *Session) Profile() (fitness.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return fitness.UserProfile{}, false
	}
	return *s.profile, true
}

// SetPlan replaces the current plan. Callers only invoke it after a fully
// validated response; failed requests leave the previous plan in place.
func (s *Session) SetPlan(p *fitness.PlanResponse) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = p
}

// Plan returns the last successful plan, or nil when none was generated yet.
func (s *Session) Plan() *fitness.PlanResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// AppendProgress adds a measurement to the session's log.
func (s *Session) AppendProgress(e fitness.ProgressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Append(e)
}

// Progress returns the log ordered by date ascending.
func (s *Session) Progress() []fitness.ProgressEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Entries()
}
