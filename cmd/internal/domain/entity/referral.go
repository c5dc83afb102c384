package entity

// Referral is the edge "referrer brought referee to the waitlist".
//
// A referee is credited to at most one referrer, which also makes every
// (referrer, referee) pair unique.
type Referral struct {
	ID         int64 `gorm:"primaryKey"`
	ReferrerID int64 `gorm:"not null;index"`       // References: users(id)
	RefereeID  int64 `gorm:"not null;uniqueIndex"` // References: users(id)
	CreatedAt  int64 `gorm:"not null;autoCreateTime:false"`
}
