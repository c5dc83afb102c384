package service

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/domain/events"
	"waitlist/cmd/internal/domain/policy"
	"waitlist/cmd/internal/domain/sqlite"
	"waitlist/cmd/internal/domain/sqlite/repository"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"
	"waitlist/cmd/internal/utils/uid"
	"waitlist/cmd/internal/utils/validators"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	users       *repository.DefaultUserRepository
	referrals   *repository.DefaultReferralRepository
	broadcaster *recordingBroadcaster
	tokens      *utils.TokenManager
	referral    *ReferralService
	waitlist    *WaitlistService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	uid.Init(1)

	db, err := sqlite.Init(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	validate := validator.New()
	validators.Register(validate)

	tokens, err := utils.NewTokenManager("test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		users:       repository.NewUserRepository(db),
		referrals:   repository.NewReferralRepository(db),
		broadcaster: &recordingBroadcaster{},
		tokens:      tokens,
	}
	env.referral = NewReferralService(env.referrals, NewNotificationService(env.broadcaster), policy.NewReferralPolicy(policy.DefaultClaimWindow), validate)
	env.waitlist = NewWaitlistService(env.users, env.referrals, env.referral, tokens, validate, "https://example.com/")
	return env
}

func (e *testEnv) join(t *testing.T, email, code string) *contract.JoinResponse {
	t.Helper()
	resp, apierr := e.waitlist.Join(&contract.JoinRequest{Email: email, ReferralCode: code})
	require.Nil(t, apierr)
	require.NotNil(t, resp)
	return resp
}

func TestWaitlistService_JoinWithoutReferral(t *testing.T) {
	env := newTestEnv(t)

	resp := env.join(t, "  Alice@Example.COM ", "")

	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ReferralCode)
	assert.Equal(t, "https://example.com/?ref="+resp.User.ReferralCode, resp.User.ReferralLink)
	assert.False(t, resp.Referred)
	assert.Empty(t, env.broadcaster.Types())

	data, err := env.tokens.ValidateToken(resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, data.Sub)

	_, err = time.Parse(time.RFC3339, resp.ExpiresAt)
	assert.NoError(t, err)
}

func TestWaitlistService_JoinRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice@example.com", "")

	_, apierr := env.waitlist.Join(&contract.JoinRequest{Email: "ALICE@example.com"})
	assert.Equal(t, apierror.EmailTakenError, apierr)
}

func TestWaitlistService_JoinValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		req   contract.JoinRequest
		field string
	}{
		{"missing email", contract.JoinRequest{}, "email"},
		{"bad email", contract.JoinRequest{Email: "not-an-email"}, "email"},
		{"bad referral code", contract.JoinRequest{Email: "a@b.co", ReferralCode: "0OIl!"}, "referralcode"},
		{"control chars in name", contract.JoinRequest{Email: "a@b.co", Name: "bad\x07name"}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, apierr := env.waitlist.Join(&tt.req)
			require.NotNil(t, apierr)
			assert.Equal(t, http.StatusBadRequest, apierr.Code())

			structured, ok := apierr.(*apierror.StructuredError)
			require.True(t, ok)
			assert.Contains(t, structured.Errors, tt.field)
		})
	}
}

func TestWaitlistService_JoinUnknownReferralCode(t *testing.T) {
	env := newTestEnv(t)

	_, apierr := env.waitlist.Join(&contract.JoinRequest{Email: "bob@example.com", ReferralCode: "zzzzzzzz"})
	assert.Equal(t, apierror.InvalidReferralCodeError, apierr)

	stats, apierr := env.waitlist.GetStats()
	require.Nil(t, apierr)
	assert.Equal(t, int64(0), stats.TotalSignups)
}

func TestWaitlistService_JoinCreditsReferrer(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.join(t, "alice@example.com", "")

	resp := env.join(t, "bob@example.com", referrer.User.ReferralCode)
	assert.True(t, resp.Referred)

	sent := env.broadcaster.Events()
	require.Len(t, sent, 1)
	updated, ok := sent[0].(*events.ReferralUpdated)
	require.True(t, ok)
	assert.Equal(t, int64(1), updated.ActualReferralCount)
	assert.Equal(t, "normal", updated.Tier)
	assert.Equal(t, referrer.User.ID, strconv.FormatInt(env.broadcaster.sent[0].userID, 10))

	stats, apierr := env.waitlist.GetStats()
	require.Nil(t, apierr)
	assert.Equal(t, int64(2), stats.TotalSignups)
	assert.Equal(t, int64(1), stats.TotalReferrals)
}

func TestWaitlistService_ThirdReferralUnlocksTier(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.join(t, "alice@example.com", "")

	for _, email := range []string{"b@example.com", "c@example.com", "d@example.com"} {
		env.join(t, email, referrer.User.ReferralCode)
	}

	assert.Equal(t, []contract.EventType{
		contract.EventReferralUpdated,
		contract.EventReferralUpdated,
		contract.EventReferralUpdated,
		contract.EventTierUpgraded,
		contract.EventMilestoneReached,
	}, env.broadcaster.Types())

	actor, err := env.users.FindByEmail("alice@example.com")
	require.NoError(t, err)

	status, apierr := env.waitlist.GetStatus(actor)
	require.Nil(t, apierr)
	assert.Equal(t, int64(1), status.Position)
	assert.Equal(t, "1month", status.Progress.Tier)
	assert.Equal(t, "1 Month Free", status.Progress.Label)
	assert.Equal(t, int64(3), status.Progress.ActualReferralCount)
	require.NotNil(t, status.Progress.NextTierThreshold)
	assert.Equal(t, int64(6), *status.Progress.NextTierThreshold)
	assert.Equal(t, int64(3), *status.Progress.ReferralsToNextTier)
}

func TestWaitlistService_NotificationPanicDoesNotFailJoin(t *testing.T) {
	env := newTestEnv(t)
	env.broadcaster.panicsOn = contract.EventReferralUpdated
	referrer := env.join(t, "alice@example.com", "")

	resp := env.join(t, "bob@example.com", referrer.User.ReferralCode)
	assert.True(t, resp.Referred)

	count, err := env.referrals.CountAll()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReferralService_ClaimReferral(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.join(t, "alice@example.com", "")
	env.join(t, "bob@example.com", "")

	bob, err := env.users.FindByEmail("bob@example.com")
	require.NoError(t, err)

	resp, apierr := env.referral.ClaimReferral(bob, &contract.ClaimReferralRequest{ReferralCode: referrer.User.ReferralCode})
	require.Nil(t, apierr)
	assert.Equal(t, referrer.User.ID, resp.ReferrerID)

	_, apierr = env.referral.ClaimReferral(bob, &contract.ClaimReferralRequest{ReferralCode: referrer.User.ReferralCode})
	assert.Equal(t, apierror.ReferralExistsError, apierr)

	_, apierr = env.referral.ClaimReferral(bob, &contract.ClaimReferralRequest{ReferralCode: bob.ReferralCode})
	assert.Equal(t, apierror.SelfReferralError, apierr)

	_, apierr = env.referral.ClaimReferral(bob, &contract.ClaimReferralRequest{ReferralCode: "zzzzzzzz"})
	assert.Equal(t, apierror.ReferralCodeNotFoundError, apierr)

	_, apierr = env.referral.ClaimReferral(bob, &contract.ClaimReferralRequest{})
	require.NotNil(t, apierr)
	assert.Equal(t, http.StatusBadRequest, apierr.Code())
}
