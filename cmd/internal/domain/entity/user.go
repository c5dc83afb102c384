package entity

// User is someone on the waitlist.
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement:false"`
	Email        string `gorm:"not null;uniqueIndex"`
	Name         string `gorm:"not null;default:''"`
	ReferralCode string `gorm:"not null;uniqueIndex"`
	ReferredByID *int64 `gorm:"index"`
	CreatedAt    int64  `gorm:"not null;index"`
	UpdatedAt    int64  `gorm:"not null;autoUpdateTime:false"`
}
