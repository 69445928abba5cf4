package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"

	"kaaj/internal/apperrors"
	"kaaj/internal/cache"

	"gorm.io/gorm"
)

// storeError classifies a database or redis failure. Record-not-found maps to
// NotFound, lost connectivity to Unavailable, everything else to fallback.
func storeError(err error, fallback apperrors.Kind) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.KindNotFound, err)
	}
	if unavailable(err) {
		return apperrors.Wrap(apperrors.KindUnavailable, err)
	}
	return apperrors.Wrap(fallback, err)
}

func unavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, cache.ErrCacheDown) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
