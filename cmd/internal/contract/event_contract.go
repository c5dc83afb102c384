package contract

type EventType string

const (
	EventConnected        EventType = "connected"
	EventReferralUpdated  EventType = "referral_updated"
	EventTierUpgraded     EventType = "tier_upgraded"
	EventMilestoneReached EventType = "milestone_reached"
)

// EventStatsResponse is served by the (unauthenticated) stream diagnostics route.
type EventStatsResponse struct {
	TotalConnections int `json:"total_connections"`
	ActiveUsers      int `json:"active_users"`
}
