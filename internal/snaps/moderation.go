package snaps

import (
	"context"
	"errors"

	"github.com/snapmsg/backend/internal/apperror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Block hides a snap from every read path.
func (s *Store) Block(ctx context.Context, id string) error {
	return s.setBlocked(ctx, opBlock, id, true)
}

// Unblock restores a previously blocked snap.
func (s *Store) Unblock(ctx context.Context, id string) error {
	return s.setBlocked(ctx, opUnblock, id, false)
}

func (s *Store) setBlocked(ctx context.Context, operation, id string, blocked bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Snap{}).
			Where(queryByID, id).
			Where(queryNotBlocked, !blocked).
			Update(columnIsBlocked, blocked)
		if result.Error != nil {
			return newServiceError(operation, reasonSaveFailed, result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&Snap{}).Where(queryByID, id).Count(&count).Error; err != nil {
			return newServiceError(operation, reasonQueryFailed, err)
		}
		if count == 0 {
			return notFoundError(id)
		}
		if blocked {
			return apperror.ErrAlreadyBlocked
		}
		return apperror.ErrAlreadyUnblocked
	})
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			s.logError(operation, serviceErr.Code(), err, zap.String(fieldSnapID, id))
		}
		return err
	}
	return nil
}
