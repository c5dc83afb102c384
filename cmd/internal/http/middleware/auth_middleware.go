package middleware

import (
	"net/http"

	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type UserRepository interface {
	FindByID(id int64) (*entity.User, error)
}

type TokenParser interface {
	ParseTokenDataCtx(ctx echo.Context) (*utils.TokenData, error)
}

type AuthMiddlewareConfig struct {
	UserRepo UserRepository
	Tokens   TokenParser
}

// NewAuthMiddleware creates the handler with dependencies injected.
//
// It always answers with plain JSON, so an event stream request without a
// valid session is rejected before any stream headers are written.
func NewAuthMiddleware(cfg *AuthMiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenData, err := cfg.Tokens.ParseTokenDataCtx(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
			}

			user, err := cfg.UserRepo.FindByID(tokenData.UserID)
			if err != nil {
				log.Errorf("failed to load session user %d: %v", tokenData.UserID, err)
				return c.JSON(http.StatusInternalServerError, apierror.InternalServerError)
			}

			if user == nil {
				// Valid signature, but the member is gone (e.g. database was reset)
				return c.JSON(http.StatusUnauthorized, apierror.UnknownSessionError)
			}

			c.Set(utils.ContextUserKey, user)
			return next(c)
		}
	}
}
