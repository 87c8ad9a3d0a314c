package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultTTL         = 2 * time.Hour
	DefaultMaxSessions = 1024
)

// Options configures a Store. Zero values fall back to the defaults; a zero
// PlansPerMinute disables plan rate limiting.
type Options struct {
	TTL            time.Duration
	MaxSessions    int
	PlansPerMinute float64
	Burst          int
}

// Store keeps live sessions in a bounded LRU. Sessions idle longer than the
// TTL, or pushed out by newer ones, are gone along with their data.
type Store struct {
	cache *expirable.LRU[string, *Session]
	opts  Options
	now   func() time.Time
}

func NewStore(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	onEvict := func(id string, _ *Session) {
		log.Debug().Str("session_id", id).Msg("Session evicted")
	}
	return &Store{
		cache: expirable.NewLRU[string, *Session](opts.MaxSessions, onEvict, opts.TTL),
		opts:  opts,
		now:   time.Now,
	}
}

// Start creates a fresh session with a random ID.
func (s *Store) Start() *Session {
	var limiter *rate.Limiter
	if s.opts.PlansPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.PlansPerMinute/60), s.opts.Burst)
	}
	sess := newSession(uuid.NewString(), s.now(), limiter)
	s.cache.Add(sess.ID, sess)
	log.Info().Str("session_id", sess.ID).Msg("Session started")
	return sess
}

// Get looks up a live session. A hit extends the session's lifetime by the TTL.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	s.cache.Add(id, sess)
	return sess, true
}

// End discards the session and everything it holds. It reports whether the
// session existed.
func (s *Store) End(id string) bool {
	ok := s.cache.Remove(id)
	if ok {
		log.Info().Str("session_id", id).Msg("Session ended")
	}
	return ok
}

func (s *Store) Len() int {
	return s.cache.Len()
}
