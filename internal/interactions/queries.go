package interactions

import (
	"context"
	"errors"

	"github.com/snapmsg/backend/internal/apperror"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errAlreadyLiked      = apperror.ErrAlreadyLiked
	errNotLiked          = apperror.ErrNotLiked
	errAlreadyFavourited = apperror.ErrAlreadyFavourite
	errNotFavourited     = apperror.ErrNotFavourite
)

func (l *Ledger) IsLikedBy(ctx context.Context, snapID, userEmail string) (bool, error) {
	return l.exists(ctx, &snaps.Like{}, snapID, userEmail)
}

func (l *Ledger) IsFavouritedBy(ctx context.Context, snapID, userEmail string) (bool, error) {
	return l.exists(ctx, &snaps.Favourite{}, snapID, userEmail)
}

// LikedSnapIDs returns the ids of the snaps userEmail likes, most recent first.
func (l *Ledger) LikedSnapIDs(ctx context.Context, userEmail string) ([]string, error) {
	return l.snapIDs(ctx, &snaps.Like{}, userEmail)
}

// FavouritedSnapIDs returns the ids of the snaps userEmail favourited, most recent first.
func (l *Ledger) FavouritedSnapIDs(ctx context.Context, userEmail string) ([]string, error) {
	return l.snapIDs(ctx, &snaps.Favourite{}, userEmail)
}

// SharedSnapIDs returns the distinct ids of the snaps userEmail shared.
func (l *Ledger) SharedSnapIDs(ctx context.Context, userEmail string) ([]string, error) {
	var ids []string
	err := l.db.WithContext(ctx).Model(&snaps.Share{}).
		Where(queryUser, userEmail).
		Distinct("snap_id").
		Pluck("snap_id", &ids).Error
	if err != nil {
		l.logError(opQuery, reasonQueryFailed, err, zap.String("user_email", userEmail))
		return nil, newServiceError(opQuery, reasonQueryFailed, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SharesBy returns every share made by any of userEmails, newest first.
func (l *Ledger) SharesBy(ctx context.Context, userEmails ...string) ([]snaps.Share, error) {
	if len(userEmails) == 0 {
		return []snaps.Share{}, nil
	}
	var shares []snaps.Share
	err := l.db.WithContext(ctx).
		Where(queryUsersIn, userEmails).
		Order("created_at_ms DESC, id DESC").
		Find(&shares).Error
	if err != nil {
		l.logError(opQuery, reasonQueryFailed, err, zap.Int("users", len(userEmails)))
		return nil, newServiceError(opQuery, reasonQueryFailed, err)
	}
	if shares == nil {
		shares = []snaps.Share{}
	}
	return shares, nil
}

type shareCount struct {
	SnapID string
	Total  int64
}

// ShareCounts returns the number of share rows per snap id. Snaps without
// shares are absent from the result.
func (l *Ledger) ShareCounts(ctx context.Context, snapIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(snapIDs))
	if len(snapIDs) == 0 {
		return counts, nil
	}
	var rows []shareCount
	err := l.db.WithContext(ctx).Model(&snaps.Share{}).
		Select("snap_id, COUNT(*) AS total").
		Where(querySnapIDsIn, snapIDs).
		Group("snap_id").
		Scan(&rows).Error
	if err != nil {
		l.logError(opQuery, reasonQueryFailed, err, zap.Int("snaps", len(snapIDs)))
		return nil, newServiceError(opQuery, reasonQueryFailed, err)
	}
	for _, row := range rows {
		counts[row.SnapID] = row.Total
	}
	return counts, nil
}

func (l *Ledger) exists(ctx context.Context, model any, snapID, userEmail string) (bool, error) {
	err := l.db.WithContext(ctx).Model(model).
		Where(querySnapUser, snapID, userEmail).
		Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		l.logError(opQuery, reasonQueryFailed, err, zap.String("snap_id", snapID), zap.String("user_email", userEmail))
		return false, newServiceError(opQuery, reasonQueryFailed, err)
	}
	return true, nil
}

func (l *Ledger) snapIDs(ctx context.Context, model any, userEmail string) ([]string, error) {
	var ids []string
	err := l.db.WithContext(ctx).Model(model).
		Where(queryUser, userEmail).
		Order(orderNewestFirst).
		Pluck("snap_id", &ids).Error
	if err != nil {
		l.logError(opQuery, reasonQueryFailed, err, zap.String("user_email", userEmail))
		return nil, newServiceError(opQuery, reasonQueryFailed, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
