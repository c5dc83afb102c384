package service

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/domain/sqlite/repository"
	"waitlist/cmd/internal/domain/tier"
	"waitlist/cmd/internal/metrics"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"
	"waitlist/cmd/internal/utils/uid"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"
)

type UserRepository interface {
	FindByReferralCode(code string) (*entity.User, error)
	ExistsByEmail(email string) (bool, error)
	Position(user *entity.User) (int64, error)
	Count() (int64, error)
	Create(user *entity.User) error
}

type ReferralStatsRepository interface {
	CountReferrals(userID int64) (int64, error)
	CountAll() (int64, error)
}

type ReferralCreditor interface {
	CreditReferral(referrer, referee *entity.User) apierror.ErrorResponse
}

type TokenIssuer interface {
	IssueToken(userID int64) (string, time.Time, error)
}

type WaitlistService struct {
	UserRepo     UserRepository
	ReferralRepo ReferralStatsRepository
	Referrals    ReferralCreditor
	Tokens       TokenIssuer
	Validate     *validator.Validate
	PublicURL    string
}

func NewWaitlistService(
	userRepo UserRepository,
	referralRepo ReferralStatsRepository,
	referrals ReferralCreditor,
	tokens TokenIssuer,
	validate *validator.Validate,
	publicURL string,
) *WaitlistService {
	return &WaitlistService{
		UserRepo:     userRepo,
		ReferralRepo: referralRepo,
		Referrals:    referrals,
		Tokens:       tokens,
		Validate:     validate,
		PublicURL:    strings.TrimRight(publicURL, "/"),
	}
}

// Join adds a new member to the waitlist and hands back a session.
//
// The referral code is resolved before anything is written, so an unknown
// code rejects the whole signup. A credit that fails after the member was
// stored only shows up as Referred=false.
func (w *WaitlistService) Join(req *contract.JoinRequest) (*contract.JoinResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := w.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}
	email := utils.NormalizeEmail(req.Email)

	taken, err := w.UserRepo.ExistsByEmail(email)
	if err != nil {
		log.Errorf("failed to check if %s already joined: %v", email, err)
		return nil, apierror.InternalServerError
	}

	if taken {
		return nil, apierror.EmailTakenError
	}

	var referrer *entity.User
	if req.ReferralCode != "" {
		referrer, err = w.UserRepo.FindByReferralCode(req.ReferralCode)
		if err != nil {
			log.Errorf("failed to resolve referral code %s: %v", req.ReferralCode, err)
			return nil, apierror.InternalServerError
		}

		if referrer == nil {
			return nil, apierror.InvalidReferralCodeError
		}
	}

	now := utils.NowUTC()
	user := &entity.User{
		ID:           uid.Generate(),
		Email:        email,
		Name:         req.Name,
		ReferralCode: uid.ReferralCode(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := w.UserRepo.Create(user); err != nil {
		// Lost a race against a concurrent signup with the same email.
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apierror.EmailTakenError
		}
		log.Errorf("failed to create waitlist member %s: %v", email, err)
		return nil, apierror.InternalServerError
	}
	metrics.WaitlistSignups.Inc()

	referred := false
	if referrer != nil {
		if apierr := w.Referrals.CreditReferral(referrer, user); apierr != nil {
			log.Warnf("member %d joined but crediting referrer %d failed (status %d)", user.ID, referrer.ID, apierr.Code())
		} else {
			referred = true
		}
	}

	token, exp, err := w.Tokens.IssueToken(user.ID)
	if err != nil {
		log.Errorf("failed to issue session for member %d: %v", user.ID, err)
		return nil, apierror.InternalServerError
	}

	return &contract.JoinResponse{
		User:         w.toUserResponse(user),
		SessionToken: token,
		ExpiresAt:    exp.UTC().Format(time.RFC3339),
		Referred:     referred,
	}, nil
}

func (w *WaitlistService) GetStatus(actor *entity.User) (*contract.WaitlistStatusResponse, apierror.ErrorResponse) {
	count, err := w.ReferralRepo.CountReferrals(actor.ID)
	if err != nil {
		log.Errorf("failed to count referrals of member %d: %v", actor.ID, err)
		return nil, apierror.InternalServerError
	}

	position, err := w.UserRepo.Position(actor)
	if err != nil {
		log.Errorf("failed to find waitlist position of member %d: %v", actor.ID, err)
		return nil, apierror.InternalServerError
	}

	return &contract.WaitlistStatusResponse{
		User:     w.toUserResponse(actor),
		Position: position,
		Progress: toTierProgress(tier.ProgressOf(count)),
	}, nil
}

func (w *WaitlistService) GetStats() (*contract.WaitlistStatsResponse, apierror.ErrorResponse) {
	signups, err := w.UserRepo.Count()
	if err != nil {
		log.Errorf("failed to count waitlist members: %v", err)
		return nil, apierror.InternalServerError
	}

	referrals, err := w.ReferralRepo.CountAll()
	if err != nil {
		log.Errorf("failed to count referrals: %v", err)
		return nil, apierror.InternalServerError
	}

	return &contract.WaitlistStatsResponse{
		TotalSignups:   signups,
		TotalReferrals: referrals,
	}, nil
}

func (w *WaitlistService) referralLink(code string) string {
	return w.PublicURL + "/?ref=" + url.QueryEscape(code)
}

func (w *WaitlistService) toUserResponse(u *entity.User) *contract.UserResponse {
	return &contract.UserResponse{
		ID:           strconv.FormatInt(u.ID, 10),
		Email:        u.Email,
		Name:         u.Name,
		ReferralCode: u.ReferralCode,
		ReferralLink: w.referralLink(u.ReferralCode),
		CreatedAt:    utils.FormatEpoch(u.CreatedAt),
	}
}

func toTierProgress(p tier.Progress) *contract.TierProgress {
	info := tier.Info(p.Tier)
	resp := &contract.TierProgress{
		Tier:                 p.Tier.String(),
		Label:                info.Label,
		Reward:               info.Reward,
		ActualReferralCount:  p.Actual,
		DisplayReferralCount: p.Display,
	}

	if p.HasNext {
		next, remaining := p.Next, p.Remaining
		resp.NextTierThreshold = &next
		resp.ReferralsToNextTier = &remaining
	}
	return resp
}
