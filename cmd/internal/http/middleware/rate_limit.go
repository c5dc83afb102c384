package middleware

import (
	"net/http"
	"time"

	"waitlist/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"
)

// NewJoinRateLimiter limits signups per client IP to perSecond, allowing
// short bursts of burst requests.
func NewJoinRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.Warnf("failed to identify client for rate limiting: %v", err)
			return c.JSON(http.StatusForbidden, apierror.NewSimple(http.StatusForbidden, "Unable to identify client"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, apierror.TooManyRequestsError)
		},
	})
}
