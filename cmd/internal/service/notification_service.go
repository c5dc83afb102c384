package service

import (
	"fmt"
	"time"

	"waitlist/cmd/internal/domain/events"
	"waitlist/cmd/internal/domain/tier"

	"github.com/labstack/gommon/log"
)

// Broadcaster delivers an event to every live stream of a user and returns
// how many streams received it.
type Broadcaster interface {
	Broadcast(userID int64, evt events.Event) int
}

// NotificationService turns referral count changes into stream events.
// Delivery is best effort: nothing here ever fails the caller.
type NotificationService struct {
	broadcaster Broadcaster
	now         func() time.Time
}

func NewNotificationService(b Broadcaster) *NotificationService {
	return &NotificationService{
		broadcaster: b,
		now:         time.Now,
	}
}

// NotifyReferralChange pushes the events caused by a referrer going from
// previousCount to newCount referrals, in the order update, upgrade, milestone.
func (n *NotificationService) NotifyReferralChange(userID, previousCount, newCount int64) {
	for _, evt := range BuildReferralEvents(previousCount, newCount, n.now()) {
		n.send(userID, evt)
	}
}

// BuildReferralEvents derives the events for a count change. The referral
// update always comes first, followed by a tier upgrade and then a milestone
// when either applies.
func BuildReferralEvents(previousCount, newCount int64, at time.Time) []events.Event {
	ts := at.UnixMilli()
	current := tier.Calculate(newCount)

	out := []events.Event{
		&events.ReferralUpdated{
			ActualReferralCount:  newCount,
			DisplayReferralCount: tier.DisplayCount(newCount),
			Tier:                 current.String(),
			Timestamp:            ts,
		},
	}

	if tier.IsUpgrade(previousCount, newCount) {
		out = append(out, &events.TierUpgraded{
			PreviousTier:  tier.Calculate(previousCount).String(),
			NewTier:       current.String(),
			NewTierLabel:  current.Label(),
			ReferralCount: newCount,
			Message:       fmt.Sprintf("You unlocked %s!", current.Label()),
			Timestamp:     ts,
		})
	}

	if m, ok := tier.MilestoneReached(previousCount, newCount); ok {
		out = append(out, &events.MilestoneReached{
			Milestone:      m,
			ReferralCount:  newCount,
			TotalReferrals: newCount,
			Message:        fmt.Sprintf("You reached %d referrals!", m),
			Timestamp:      ts,
		})
	}
	return out
}

// send isolates one broadcast so a panic while delivering it cannot stop
// the next event or escape into the referral write path.
func (n *NotificationService) send(userID int64, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic while sending %s to user %d: %v", evt.GetType(), userID, r)
		}
	}()

	delivered := n.broadcaster.Broadcast(userID, evt)
	log.Debugf("sent %s to %d stream(s) of user %d", evt.GetType(), delivered, userID)
}
