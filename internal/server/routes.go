package server

import (
	"embed"
	"html/template"
	"io"
	"net/http"
	"time"

	"FitCoach_V0.1/internal/fitness"
	"FitCoach_V0.1/internal/session"
	"FitCoach_V0.1/internal/utility"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionIDKey  = "sid"
	sessionCtxKey = "session"
)

// TemplateRenderer is a custom html/template renderer for Echo framework
type TemplateRenderer struct {
	templates *template.Template
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validator *validator.Validate
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.cfg.Server.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}
	e.Validator = &RequestValidator{validator: fitness.Validator()}
	e.Renderer = &TemplateRenderer{
		templates: template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")),
	}

	e.Use(middleware.Recover())
	e.Use(LoggerMiddleware)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := utility.GetLogger(c)
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	if len(s.cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     s.cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Coarse per-IP guard in front of everything; plan requests are
	// additionally limited per session.
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(20),
			Burst:     60,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return utility.GetRealIP(c), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	}))

	e.GET("/health", s.healthHandler)

	app := e.Group("")
	app.Use(s.SessionMiddleware)

	app.GET("/", s.indexHandler)
	app.POST("/plan", s.generatePlanHandler)
	app.GET("/plan", s.getPlanHandler)
	app.GET("/plan/download", s.downloadPlanHandler)
	app.POST("/progress", s.addProgressHandler)
	app.GET("/progress", s.getProgressHandler)
	app.GET("/ws", s.progressSocketHandler)
	app.POST("/session/end", s.endSessionHandler)

	return e
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(utility.RequestIDKey, requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := log.With().Str("request_id", requestID).Logger()

		c.Set(utility.LoggerKey, &logger)

		return next(c)
	}
}

// SessionMiddleware resolves the session named by the signed cookie, starting
// a new one when the cookie is missing, invalid or points at an expired
// session. The session is then available through getSession.
func (s *Server) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// A decode error still yields a usable empty cookie session.
		cs, _ := s.cookies.Get(c.Request(), s.cfg.Session.CookieName)

		id, _ := cs.Values[sessionIDKey].(string)
		sess, ok := s.sessions.Get(id)
		if !ok {
			sess = s.sessions.Start()
			cs.Values[sessionIDKey] = sess.ID
			if err := cs.Save(c.Request(), c.Response()); err != nil {
				utility.GetLogger(c).Error().Err(err).Msg("SessionMiddleware: failed to save session cookie")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Could not start session"})
			}
		}

		c.Set(sessionCtxKey, sess)
		logger := utility.GetLogger(c).With().Str("session_id", sess.ID).Logger()
		c.Set(utility.LoggerKey, &logger)

		return next(c)
	}
}

func getSession(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionCtxKey).(*session.Session)
	return sess
}
