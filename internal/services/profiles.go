package services

import (
	"context"

	"kaaj/internal/apperrors"
	"kaaj/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileService is the users collection of the document store. Only the
// owner may read or write a profile.
type ProfileService interface {
	Get(ctx context.Context, caller, uid string) (*models.Profile, error)
	Merge(ctx context.Context, caller, uid string, update models.ProfileUpdate) (*models.Profile, error)
}

type ProfileServiceImpl struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileServiceImpl {
	return &ProfileServiceImpl{db: db}
}

func (s *ProfileServiceImpl) Get(ctx context.Context, caller, uid string) (*models.Profile, error) {
	if caller != uid {
		return nil, apperrors.New(apperrors.KindPermissionDenied)
	}
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", uid).First(&p).Error; err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}
	return &p, nil
}

// Merge upserts the set fields of update. Fields left nil keep their stored
// value; a missing profile is created.
func (s *ProfileServiceImpl) Merge(ctx context.Context, caller, uid string, update models.ProfileUpdate) (*models.Profile, error) {
	if caller != uid {
		return nil, apperrors.New(apperrors.KindPermissionDenied)
	}

	p := models.Profile{UserID: uid}
	update.Apply(&p)

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}
	if cols := update.Columns(); len(cols) > 0 {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(cols),
		}
	}

	if err := s.db.WithContext(ctx).Clauses(onConflict).Create(&p).Error; err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}
	return s.Get(ctx, caller, uid)
}
