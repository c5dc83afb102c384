package handler

import (
	"net/http"
	"time"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
)

type WaitlistService interface {
	Join(req *contract.JoinRequest) (*contract.JoinResponse, apierror.ErrorResponse)
	GetStatus(actor *entity.User) (*contract.WaitlistStatusResponse, apierror.ErrorResponse)
	GetStats() (*contract.WaitlistStatsResponse, apierror.ErrorResponse)
}

type DefaultWaitlistRoute struct {
	WaitlistService WaitlistService
	// SecureCookies marks the session cookie Secure, set whenever served over HTTPS.
	SecureCookies bool
}

func NewWaitlistDefault(waitlistService WaitlistService, secureCookies bool) *DefaultWaitlistRoute {
	return &DefaultWaitlistRoute{
		WaitlistService: waitlistService,
		SecureCookies:   secureCookies,
	}
}

func (w *DefaultWaitlistRoute) Join(c echo.Context) error {
	var req contract.JoinRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedJSONError)
	}

	resp, apierr := w.WaitlistService.Join(&req)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}

	c.SetCookie(w.sessionCookie(resp))
	return c.JSON(http.StatusCreated, resp)
}

func (w *DefaultWaitlistRoute) GetStatus(c echo.Context) error {
	user, cerr := utils.GetUserFromContext(c)
	if cerr != nil {
		return c.JSON(cerr.Code(), cerr)
	}

	resp, apierr := w.WaitlistService.GetStatus(user)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, resp)
}

func (w *DefaultWaitlistRoute) GetStats(c echo.Context) error {
	resp, apierr := w.WaitlistService.GetStats()
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, resp)
}

// sessionCookie lets EventSource clients, which cannot set headers, authenticate.
func (w *DefaultWaitlistRoute) sessionCookie(resp *contract.JoinResponse) *http.Cookie {
	cookie := &http.Cookie{
		Name:     utils.SessionCookieName,
		Value:    resp.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   w.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	if exp, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		cookie.Expires = exp
	}
	return cookie
}
