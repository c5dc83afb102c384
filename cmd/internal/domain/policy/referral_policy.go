package policy

import (
	"time"

	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"
)

const DefaultClaimWindow = 7 * 24 * time.Hour

// ReferralPolicy encapsulates the rules for crediting a referral after signup.
// It returns apierror.ErrorResponse directly for seamless integration with handlers.
type ReferralPolicy struct {
	// ClaimWindow is how long after joining a member may still claim a code.
	// Zero disables the check.
	ClaimWindow time.Duration
	now         func() int64
}

func NewReferralPolicy(claimWindow time.Duration) *ReferralPolicy {
	return &ReferralPolicy{
		ClaimWindow: claimWindow,
		now:         utils.NowUTC,
	}
}

// CanClaim checks if 'actor' can credit their signup to 'referrer'.
func (p *ReferralPolicy) CanClaim(actor, referrer *entity.User) apierror.ErrorResponse {
	if actor.ID == referrer.ID {
		return apierror.SelfReferralError
	}

	// Rule 1: one referrer per member, forever
	if actor.ReferredByID != nil {
		return apierror.ReferralExistsError
	}

	// Rule 2: nobody can refer someone who was already waiting before them
	if referrer.CreatedAt > actor.CreatedAt {
		return apierror.ReferrerJoinedLaterError
	}

	// Rule 3: claims are a signup-time thing
	if p.ClaimWindow > 0 && p.now()-actor.CreatedAt > p.ClaimWindow.Milliseconds() {
		return apierror.ClaimWindowClosedError
	}
	return nil
}
