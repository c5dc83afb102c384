package handler

import (
	"net/http"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
)

type ReferralService interface {
	ClaimReferral(actor *entity.User, req *contract.ClaimReferralRequest) (*contract.ClaimReferralResponse, apierror.ErrorResponse)
}

type DefaultReferralRoute struct {
	ReferralService ReferralService
}

func NewReferralRoute(referralService ReferralService) *DefaultReferralRoute {
	return &DefaultReferralRoute{ReferralService: referralService}
}

func (r *DefaultReferralRoute) ClaimReferral(c echo.Context) error {
	user, cerr := utils.GetUserFromContext(c)
	if cerr != nil {
		return c.JSON(cerr.Code(), cerr)
	}

	var req contract.ClaimReferralRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedJSONError)
	}

	resp, apierr := r.ReferralService.ClaimReferral(user, &req)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, resp)
}
