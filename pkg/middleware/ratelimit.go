package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// RateLimitConfig holds configuration for the request rate limiter
type RateLimitConfig struct {
	// Max is the number of requests allowed per window
	Max int64
	// Window is the sliding window size
	Window time.Duration
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:    300,
		Window: time.Minute,
	}
}

// RateLimit enforces a sliding window limit per caller and ip. A nil limiter
// disables limiting, for deployments without redis.
func RateLimit(limiter *redis.RateLimiter, logger ectologger.Logger, cfg RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}

			ctx := c.Request().Context()

			caller := context.GetClientID(ctx)
			if caller == "" {
				caller = "anon"
			}
			key := caller + ":" + c.RealIP()

			result, err := limiter.Allow(ctx, key, cfg.Max, cfg.Window)
			if err != nil {
				// Redis being down should not take the api with it.
				logger.WithContext(ctx).WithError(err).Warn("Rate limiter unavailable, allowing request")
				return next(c)
			}

			if !result.Allowed {
				metrics.RateLimitHits.WithLabelValues(c.Path()).Inc()
				retryAfter := int64(result.RetryIn.Seconds()) + 1
				return httperror.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded").
					AddMetaValue("retry_after", retryAfter)
			}

			return next(c)
		}
	}
}
