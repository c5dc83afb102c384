package contract

type JoinRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Name         string `json:"name" validate:"omitempty,min=1,max=80,noctrl"`
	ReferralCode string `json:"referral_code" validate:"omitempty,refcode"`
}

type ClaimReferralRequest struct {
	ReferralCode string `json:"referral_code" validate:"required,refcode"`
}

type JoinResponse struct {
	User         *UserResponse `json:"user"`
	SessionToken string        `json:"session_token"`
	ExpiresAt    string        `json:"expires_at"`
	// Referred is false when a code was provided but the credit could not be recorded.
	Referred bool `json:"referred"`
}

type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	ReferralCode string `json:"referral_code"`
	ReferralLink string `json:"referral_link"`
	CreatedAt    string `json:"created_at"`
}

type TierProgress struct {
	Tier                 string `json:"tier"`
	Label                string `json:"label"`
	Reward               string `json:"reward"`
	ActualReferralCount  int64  `json:"actualReferralCount"`
	DisplayReferralCount int64  `json:"displayReferralCount"`
	NextTierThreshold    *int64 `json:"nextTierThreshold"`
	ReferralsToNextTier  *int64 `json:"referralsToNextTier"`
}

type WaitlistStatusResponse struct {
	User     *UserResponse `json:"user"`
	Position int64         `json:"position"`
	Progress *TierProgress `json:"progress"`
}

type WaitlistStatsResponse struct {
	TotalSignups   int64 `json:"total_signups"`
	TotalReferrals int64 `json:"total_referrals"`
}

type ClaimReferralResponse struct {
	ReferrerID string `json:"referrer_id"`
}
