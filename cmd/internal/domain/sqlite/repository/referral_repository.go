package repository

import (
	"errors"
	"waitlist/cmd/internal/domain/entity"
	"waitlist/cmd/internal/utils"

	"gorm.io/gorm"
)

var (
	// ErrReferralExists means the referee was already credited to a referrer.
	ErrReferralExists = errors.New("referral already exists")
	// ErrSelfReferral means referrer and referee are the same user.
	ErrSelfReferral = errors.New("users cannot refer themselves")
	// ErrUserExists means the email or referral code is already taken.
	ErrUserExists = errors.New("user already exists")
)

type DefaultReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *DefaultReferralRepository {
	return &DefaultReferralRepository{db: db}
}

func (r *DefaultReferralRepository) CountReferrals(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&entity.Referral{}).
		Where("referrer_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *DefaultReferralRepository) CountAll() (int64, error) {
	var count int64
	err := r.db.Model(&entity.Referral{}).Count(&count).Error
	return count, err
}

// CreateReferralEdge records that referrerID brought refereeID in.
//
// The existence check and the insert share one transaction, and the unique
// index on referee_id backs it up, so two concurrent credits of the same
// referee cannot both succeed.
func (r *DefaultReferralRepository) CreateReferralEdge(referrerID, refereeID int64) (*entity.Referral, error) {
	if referrerID == refereeID {
		return nil, ErrSelfReferral
	}

	ref := &entity.Referral{
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		CreatedAt:  utils.NowUTC(),
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var exists int
		err := tx.
			Raw("SELECT EXISTS(SELECT 1 FROM referrals WHERE referee_id = ?)", refereeID).
			Scan(&exists).Error
		if err != nil {
			return err
		}

		if exists == 1 {
			return ErrReferralExists
		}

		if err := tx.Create(ref).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReferralExists
			}
			return err
		}

		return tx.Model(&entity.User{}).
			Where("id = ? AND referred_by_id IS NULL", refereeID).
			Update("referred_by_id", referrerID).Error
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *DefaultReferralRepository) FindUserByReferralCode(code string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("referral_code = ?", code).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}
	return &user, nil
}
