package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"evalgo.org/dockyard/internal/metrics"
	"evalgo.org/dockyard/models"
)

// ValidateContentType middleware ensures that requests with a body have the correct Content-Type
func ValidateContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		method := c.Request().Method

		// Only check POST, PUT, PATCH requests
		if method == "POST" || method == "PUT" || method == "PATCH" {
			contentType := c.Request().Header.Get("Content-Type")

			// Allow empty body for some requests
			if c.Request().ContentLength == 0 {
				return next(c)
			}

			// Check if Content-Type is application/json
			if !strings.HasPrefix(contentType, "application/json") {
				return BadRequestError(
					"Invalid Content-Type",
					"Content-Type must be 'application/json'. Got: "+contentType,
				)
			}
		}

		return next(c)
	}
}

// ValidateAcceptHeader middleware ensures that clients can accept JSON responses
func ValidateAcceptHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accept := c.Request().Header.Get("Accept")

		// If no Accept header, assume */*
		if accept == "" {
			return next(c)
		}

		// Check if Accept includes application/json, text/plain (logs) or a wildcard
		if !strings.Contains(accept, "application/json") &&
			!strings.Contains(accept, "text/plain") &&
			!strings.Contains(accept, "*/*") &&
			!strings.Contains(accept, "application/*") &&
			!strings.Contains(accept, "text/*") {
			return BadRequestError(
				"Invalid Accept header",
				"API returns JSON or plain text. Accept header must include 'application/json', 'text/plain' or '*/*'. Got: "+accept,
			)
		}

		return next(c)
	}
}

// Identity headers set by the fronting proxy.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserStaff = "X-User-Staff"
)

const userKey = "user"

// Identity middleware reads the caller from the proxy headers and stores it
// in the context. Requests without a user id are anonymous non-staff users.
func Identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		staff, _ := strconv.ParseBool(c.Request().Header.Get(HeaderUserStaff))
		c.Set(userKey, models.User{
			ID:    strings.TrimSpace(c.Request().Header.Get(HeaderUserID)),
			Staff: staff,
		})
		return next(c)
	}
}

// currentUser returns the caller stored by Identity.
func currentUser(c echo.Context) models.User {
	user, _ := c.Get(userKey).(models.User)
	return user
}

// RequireStaff middleware rejects callers that are not staff.
func RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).Staff {
			return NewAPIError(http.StatusForbidden, getHTTPMessage(http.StatusForbidden), "staff access required")
		}
		return next(c)
	}
}

// RequestMetrics middleware counts requests by method and status.
func RequestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if ae := FromError(err); ae != nil {
				status = ae.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(c.Request().Method, strconv.Itoa(status)).Inc()
		return err
	}
}

// RequestLogger returns middleware logging every request at debug level,
// and failed ones at warn.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Err(err)
			}
			event.
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("request")
			return err
		}
	}
}

// ValidateIDFormat middleware validates that resource IDs follow expected patterns
func ValidateIDFormat(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")

		// If no ID param, skip validation
		if id == "" {
			return next(c)
		}

		// Check for invalid characters
		if strings.Contains(id, " ") {
			return BadRequestError(
				"Invalid ID format",
				"ID cannot contain spaces",
			)
		}

		// Check for minimum length
		if len(id) < 3 {
			return BadRequestError(
				"Invalid ID format",
				"ID must be at least 3 characters long",
			)
		}

		// Check for maximum length
		if len(id) > 256 {
			return BadRequestError(
				"Invalid ID format",
				"ID must not exceed 256 characters",
			)
		}

		return next(c)
	}
}

// ValidateQueryParams middleware validates common query parameters
func ValidateQueryParams(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Boolean flags
		for _, name := range []string{"all", "enabled"} {
			if v := c.QueryParam(name); v != "" {
				if _, err := strconv.ParseBool(v); err != nil {
					return BadRequestError(
						"Invalid "+name+" parameter",
						name+" must be a boolean. Got: "+v,
					)
				}
			}
		}

		// Pagination must be numeric when present; parsePagination applies the bounds
		for _, name := range []string{"limit", "offset"} {
			if v := c.QueryParam(name); v != "" {
				if _, err := strconv.Atoi(v); err != nil {
					return BadRequestError(
						"Invalid "+name+" parameter",
						name+" must be an integer. Got: "+v,
					)
				}
			}
		}

		return next(c)
	}
}

// SecurityHeaders middleware adds security headers to responses
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Add security headers
		c.Response().Header().Set("X-Content-Type-Options", "nosniff")
		c.Response().Header().Set("X-Frame-Options", "DENY")
		c.Response().Header().Set("X-XSS-Protection", "1; mode=block")
		c.Response().Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return next(c)
	}
}
