package service

import (
	"errors"
	"strconv"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/domain/policy"
	"waitlist/cmd/internal/domain/sqlite/repository"
	"waitlist/cmd/internal/metrics"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"
)

type ReferralRepository interface {
	CountReferrals(userID int64) (int64, error)
	CreateReferralEdge(referrerID, refereeID int64) (*entity.Referral, error)
	FindUserByReferralCode(code string) (*entity.User, error)
}

type ReferralNotifier interface {
	NotifyReferralChange(userID, previousCount, newCount int64)
}

type ReferralService struct {
	ReferralRepo ReferralRepository
	Notifier     ReferralNotifier
	Policy       *policy.ReferralPolicy
	Validate     *validator.Validate
}

func NewReferralService(referralRepo ReferralRepository, notifier ReferralNotifier, referralPolicy *policy.ReferralPolicy, validate *validator.Validate) *ReferralService {
	return &ReferralService{
		ReferralRepo: referralRepo,
		Notifier:     notifier,
		Policy:       referralPolicy,
		Validate:     validate,
	}
}

// CreditReferral records that referee signed up through referrer and lets
// the referrer's open streams know.
//
// The returned error only ever describes the persisted credit. Once the edge
// is stored the call succeeds, whatever happens to the notifications.
func (r *ReferralService) CreditReferral(referrer, referee *entity.User) apierror.ErrorResponse {
	previous, err := r.ReferralRepo.CountReferrals(referrer.ID)
	if err != nil {
		log.Errorf("failed to count referrals of user %d: %v", referrer.ID, err)
		return apierror.InternalServerError
	}

	_, err = r.ReferralRepo.CreateReferralEdge(referrer.ID, referee.ID)
	switch {
	case errors.Is(err, repository.ErrSelfReferral):
		metrics.ReferralRejections.WithLabelValues("self").Inc()
		return apierror.SelfReferralError
	case errors.Is(err, repository.ErrReferralExists):
		metrics.ReferralRejections.WithLabelValues("duplicate").Inc()
		return apierror.ReferralExistsError
	case err != nil:
		log.Errorf("failed to credit user %d with referee %d: %v", referrer.ID, referee.ID, err)
		return apierror.InternalServerError
	}
	metrics.ReferralsCredited.Inc()

	current, err := r.ReferralRepo.CountReferrals(referrer.ID)
	if err != nil {
		// The credit is stored, only the live update is lost.
		log.Warnf("referral of user %d stored but recount failed, skipping notifications: %v", referrer.ID, err)
		return nil
	}

	r.Notifier.NotifyReferralChange(referrer.ID, previous, current)
	return nil
}

// ClaimReferral credits a referral code to a member who joined without one.
func (r *ReferralService) ClaimReferral(actor *entity.User, req *contract.ClaimReferralRequest) (*contract.ClaimReferralResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := r.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	referrer, err := r.ReferralRepo.FindUserByReferralCode(req.ReferralCode)
	if err != nil {
		log.Errorf("failed to find referral code %s: %v", req.ReferralCode, err)
		return nil, apierror.InternalServerError
	}

	if referrer == nil {
		return nil, apierror.ReferralCodeNotFoundError
	}

	if perr := r.Policy.CanClaim(actor, referrer); perr != nil {
		return nil, perr
	}

	if apierr := r.CreditReferral(referrer, actor); apierr != nil {
		return nil, apierr
	}
	return &contract.ClaimReferralResponse{ReferrerID: strconv.FormatInt(referrer.ID, 10)}, nil
}
