package middleware

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// GuardConfig holds configuration for the origin and host guards
type GuardConfig struct {
	// AllowedOriginRegex rejects browser requests whose Origin does not match
	AllowedOriginRegex *regexp.Regexp
	// AllowedHostSuffixes rejects requests whose Host matches none
	AllowedHostSuffixes []string
	// ExemptPaths skips both guards for machine-to-machine routes
	ExemptPaths []string
}

func (cfg GuardConfig) exempt(path string) bool {
	for _, prefix := range cfg.ExemptPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// OriginGuard rejects requests carrying an Origin header that does not match
// the allowed pattern. Requests without an Origin header pass through.
func OriginGuard(cfg GuardConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.AllowedOriginRegex == nil || cfg.exempt(c.Request().URL.Path) {
				return next(c)
			}

			origin := c.Request().Header.Get("Origin")
			if origin != "" && !cfg.AllowedOriginRegex.MatchString(origin) {
				return httperror.NewHTTPError(http.StatusForbidden, "origin not allowed")
			}

			return next(c)
		}
	}
}

// HostGuard rejects requests whose Host does not end with one of the allowed
// suffixes.
func HostGuard(cfg GuardConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(cfg.AllowedHostSuffixes) == 0 || cfg.exempt(c.Request().URL.Path) {
				return next(c)
			}

			host := c.Request().Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}

			for _, suffix := range cfg.AllowedHostSuffixes {
				if strings.HasSuffix(host, suffix) {
					return next(c)
				}
			}

			return httperror.NewHTTPError(http.StatusForbidden, "host not allowed")
		}
	}
}
