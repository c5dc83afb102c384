package events

import "waitlist/cmd/internal/contract"

// Event is anything that can be pushed down a user's event stream.
type Event interface {
	GetType() contract.EventType
}

// Connected is the first event every new stream receives.
type Connected struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

func (*Connected) GetType() contract.EventType {
	return contract.EventConnected
}

type ReferralUpdated struct {
	ActualReferralCount  int64  `json:"actualReferralCount"`
	DisplayReferralCount int64  `json:"displayReferralCount"`
	Tier                 string `json:"tier"`
	Timestamp            int64  `json:"timestamp"`
}

func (*ReferralUpdated) GetType() contract.EventType {
	return contract.EventReferralUpdated
}

type TierUpgraded struct {
	PreviousTier  string `json:"previousTier"`
	NewTier       string `json:"newTier"`
	NewTierLabel  string `json:"newTierLabel"`
	ReferralCount int64  `json:"referralCount"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
}

func (*TierUpgraded) GetType() contract.EventType {
	return contract.EventTierUpgraded
}

// MilestoneReached carries the count twice: older clients read referralCount,
// newer ones totalReferrals.
type MilestoneReached struct {
	Milestone      int64  `json:"milestone"`
	ReferralCount  int64  `json:"referralCount"`
	TotalReferrals int64  `json:"totalReferrals"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}

func (*MilestoneReached) GetType() contract.EventType {
	return contract.EventMilestoneReached
}
