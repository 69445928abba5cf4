package services

import (
	"context"
	"errors"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SignUp creates an unverified account and signs it in.
func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password string) (*backend.Credentials, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidEmail, err)
	}
	if len(password) < MinPasswordLength {
		return nil, apperrors.New(apperrors.KindWeakPassword)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BCryptCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err)
	}
	id, err := newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err)
	}

	now := s.now()
	ident := models.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: string(hashedPassword),
		LastLoginAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Identity{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperrors.New(apperrors.KindDuplicateEmail)
		}
		return tx.Create(&ident).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.Wrap(apperrors.KindDuplicateEmail, err)
	}
	if err != nil {
		return nil, storeError(err, apperrors.KindInternal)
	}

	tokens, err := s.tokens.Issue(ctx, ident.ID, "")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ident.ID, backend.EventSignedIn, tokens.SessionID, &ident)
	return s.session(&ident, tokens), nil
}
