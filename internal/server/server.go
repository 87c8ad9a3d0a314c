/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, and wires the session
store, the plan service and the websocket hub into the router.
*/
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"FitCoach_V0.1/internal/config"
	"FitCoach_V0.1/internal/fitness"
	"FitCoach_V0.1/internal/geminiservice"
	"FitCoach_V0.1/internal/session"
	"FitCoach_V0.1/internal/utility"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PlanGenerator produces a plan for a profile. *geminiservice.Client
// implements it.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, log *zerolog.Logger, profile fitness.UserProfile, apiKey string) (*fitness.PlanResponse, error)
}

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	cfg config.Config

	// sessions holds the in-memory state of every live browser session.
	sessions *session.Store

	// cookies signs the cookie that carries the session ID.
	cookies *sessions.CookieStore

	hub     *utility.Hub
	planner PlanGenerator

	startTime time.Time
}

// New builds a Server around the given plan generator.
func New(cfg config.Config, planner PlanGenerator) *Server {
	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		// Cookies signed with this key stop validating after a restart.
		secret = securecookie.GenerateRandomKey(32)
		log.Warn().Msg("SESSION_SECRET not set, using a random per-process key")
	}

	cookies := sessions.NewCookieStore(secret)
	cookies.Options.Path = "/"
	cookies.Options.MaxAge = int(cfg.Session.TTL.Seconds())
	cookies.Options.HttpOnly = true
	cookies.Options.Secure = cfg.IsProduction()
	cookies.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		cfg: cfg,
		sessions: session.NewStore(session.Options{
			TTL:            cfg.Session.TTL,
			MaxSessions:    cfg.Session.MaxSessions,
			PlansPerMinute: cfg.RateLimit.PlansPerMinute,
			Burst:          cfg.RateLimit.Burst,
		}),
		cookies:   cookies,
		hub:       utility.NewHub(),
		planner:   planner,
		startTime: time.Now(),
	}
}

// NewServer initializes a new Server instance and returns a configured *http.Server.
func NewServer(cfg config.Config) *http.Server {
	client := geminiservice.NewClient(geminiservice.ClientConfig{
		Endpoint:         cfg.Gemini.Endpoint,
		Timeout:          cfg.Gemini.Timeout,
		MaxResponseBytes: cfg.Gemini.MaxResponseBytes,
	})
	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set, plan requests will fail")
	}

	newApp := New(cfg, client)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newApp.RegisterRoutes(),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
