// Package interactions maintains likes, favourites and shares of snaps.
//
// Every mutation resolves the snap and performs a conditional write inside a
// single transaction, so membership checks and counter updates cannot race.
package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError reports an infrastructure failure with a stable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opLedgerNew   = "interactions.ledger.new"
	opLike        = "interactions.like"
	opUnlike      = "interactions.unlike"
	opFavourite   = "interactions.favourite"
	opUnfavourite = "interactions.unfavourite"
	opShare       = "interactions.share"
	opQuery       = "interactions.query"

	reasonMissingDB     = "missing_database"
	reasonMissingIDs    = "missing_id_provider"
	reasonIDFailed      = "id_generation_failed"
	reasonLookupFailed  = "snap_lookup_failed"
	reasonInsertFailed  = "insert_failed"
	reasonDeleteFailed  = "delete_failed"
	reasonCounterFailed = "counter_update_failed"
	reasonQueryFailed   = "query_failed"

	columnLikesCount = "likes_count"
	querySnapUser    = "snap_id = ? AND user_email = ?"
	queryUser        = "user_email = ?"
	queryUsersIn     = "user_email IN ?"
	querySnapIDsIn   = "snap_id IN ?"
	queryByID        = "id = ?"
	queryPositive    = "likes_count > 0"
	orderNewestFirst = "created_at_ms DESC, snap_id DESC"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type LedgerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider snaps.IDProvider
	Logger     *zap.Logger
}

// Ledger records per-user interactions and keeps like counters consistent.
type Ledger struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider snaps.IDProvider
	logger     *zap.Logger
}

// NewLedger validates cfg and constructs a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opLedgerNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opLedgerNew, reasonMissingIDs, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Like adds userEmail to the likers of snapID and increments its counter.
func (l *Ledger) Like(ctx context.Context, snapID, userEmail string) error {
	return l.mutate(ctx, opLike, snapID, userEmail, func(tx *gorm.DB) error {
		like := snaps.Like{SnapID: snapID, UserEmail: userEmail, CreatedAtMillis: l.nowMillis()}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if result.Error != nil {
			return newServiceError(opLike, reasonInsertFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return errAlreadyLiked
		}
		counter := tx.Model(&snaps.Snap{}).Where(queryByID, snapID).
			UpdateColumn(columnLikesCount, gorm.Expr("likes_count + ?", 1))
		if counter.Error != nil {
			return newServiceError(opLike, reasonCounterFailed, counter.Error)
		}
		return nil
	})
}

// Unlike removes userEmail from the likers of snapID and decrements its counter.
func (l *Ledger) Unlike(ctx context.Context, snapID, userEmail string) error {
	return l.mutate(ctx, opUnlike, snapID, userEmail, func(tx *gorm.DB) error {
		result := tx.Where(querySnapUser, snapID, userEmail).Delete(&snaps.Like{})
		if result.Error != nil {
			return newServiceError(opUnlike, reasonDeleteFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return errNotLiked
		}
		counter := tx.Model(&snaps.Snap{}).Where(queryByID, snapID).Where(queryPositive).
			UpdateColumn(columnLikesCount, gorm.Expr("likes_count - ?", 1))
		if counter.Error != nil {
			return newServiceError(opUnlike, reasonCounterFailed, counter.Error)
		}
		return nil
	})
}

// Favourite adds snapID to the favourites of userEmail.
func (l *Ledger) Favourite(ctx context.Context, snapID, userEmail string) error {
	return l.mutate(ctx, opFavourite, snapID, userEmail, func(tx *gorm.DB) error {
		favourite := snaps.Favourite{SnapID: snapID, UserEmail: userEmail, CreatedAtMillis: l.nowMillis()}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&favourite)
		if result.Error != nil {
			return newServiceError(opFavourite, reasonInsertFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return errAlreadyFavourited
		}
		return nil
	})
}

// Unfavourite removes snapID from the favourites of userEmail.
func (l *Ledger) Unfavourite(ctx context.Context, snapID, userEmail string) error {
	return l.mutate(ctx, opUnfavourite, snapID, userEmail, func(tx *gorm.DB) error {
		result := tx.Where(querySnapUser, snapID, userEmail).Delete(&snaps.Favourite{})
		if result.Error != nil {
			return newServiceError(opUnfavourite, reasonDeleteFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return errNotFavourited
		}
		return nil
	})
}

// Share records a new share of snapID. Repeated shares are kept.
func (l *Ledger) Share(ctx context.Context, snapID, userEmail, username string) (snaps.Share, error) {
	id, err := l.idProvider.NewID()
	if err != nil {
		l.logError(opShare, reasonIDFailed, err)
		return snaps.Share{}, newServiceError(opShare, reasonIDFailed, err)
	}
	share := snaps.Share{
		ID:              id,
		SnapID:          snapID,
		UserEmail:       userEmail,
		Username:        username,
		CreatedAtMillis: l.nowMillis(),
	}
	err = l.mutate(ctx, opShare, snapID, userEmail, func(tx *gorm.DB) error {
		if err := tx.Create(&share).Error; err != nil {
			return newServiceError(opShare, reasonInsertFailed, err)
		}
		return nil
	})
	if err != nil {
		return snaps.Share{}, err
	}
	return share, nil
}

func (l *Ledger) mutate(ctx context.Context, operation, snapID, userEmail string, write func(tx *gorm.DB) error) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup, err := snaps.LookupIn(tx, snapID)
		if err != nil {
			return newServiceError(operation, reasonLookupFailed, err)
		}
		if _, ok := lookup.Visible(); !ok {
			return lookup.Err()
		}
		return write(tx)
	})
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			l.logError(operation, serviceErr.Code(), err,
				zap.String("snap_id", snapID),
				zap.String("user_email", userEmail))
		}
		return err
	}
	return nil
}

func (l *Ledger) nowMillis() int64 {
	return l.clock().UTC().UnixMilli()
}

func (l *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.loggerOrDefault().Error("interaction ledger error", attrs...)
}

func (l *Ledger) loggerOrDefault() *zap.Logger {
	if l == nil || l.logger == nil {
		return noOpLogger
	}
	return l.logger
}
