package utility

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// LoggerKey is where the request-scoped logger lives in the echo context.
	LoggerKey = "logger"
	// RequestIDKey is where the request ID lives in the echo context.
	RequestIDKey = "request_id"
)

// GetRealIP returns the client IP as resolved by the echo IPExtractor.
// Forwarding headers only count when the router is configured to trust
// them, so a client cannot pick its own rate-limit identity.
func GetRealIP(c echo.Context) string {
	return c.RealIP()
}

// GetLogger returns the request-scoped logger set by the logger middleware,
// falling back to the global logger.
func GetLogger(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get(LoggerKey).(*zerolog.Logger); ok && l != nil {
		return l
	}
	l := log.Logger
	return &l
}

// GetRequestID returns the ID assigned to the current request, if any.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(RequestIDKey).(string)
	return id
}
