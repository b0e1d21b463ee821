package snaps

import (
	"context"
	"errors"
	"time"

	"github.com/snapmsg/backend/internal/hashtags"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	columnID           = "id"
	columnSnapID       = "snap_id"
	columnIsBlocked    = "is_blocked"
	orderNewestFirst   = "created_at_ms DESC, id DESC"
	queryByID          = columnID + " = ?"
	queryByIDs         = columnID + " IN ?"
	querySnapID        = columnSnapID + " = ?"
	queryNotBlocked    = columnIsBlocked + " = ?"
	queryAuthor        = "author_email = ?"
	queryAuthorsIn     = "author_email IN ?"
	queryCreatedSince  = "created_at_ms >= ?"
	queryIDInSubquery  = columnID + " IN (?)"
	queryTagEquals     = "tag = ?"
	queryTagIn         = "tag IN ?"
	fieldSnapID        = "snap_id"
	fieldAuthorEmail   = "author_email"
	fieldHashtag       = "hashtag"
	fieldAuthorsCount  = "authors"
	fieldTagsCount     = "tags"
	fieldIDsCount      = "ids"
	fieldIncludeBlocks = "include_blocked"
)

var noOpLogger = zap.NewNop()

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists snaps and their hashtag index.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewStore validates cfg and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, reasonMissingIDs, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create persists a new snap, deriving its hashtags from the message.
func (s *Store) Create(ctx context.Context, input NewSnap) (Snap, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDFailed, err)
		return Snap{}, newServiceError(opCreate, reasonIDFailed, err)
	}

	nowMillis := s.clock().UTC().UnixMilli()
	snap := Snap{
		ID:              id,
		AuthorEmail:     input.AuthorEmail,
		AuthorUsername:  input.AuthorUsername,
		Message:         input.Message,
		IsPrivate:       input.IsPrivate,
		Hashtags:        hashtags.Extract(input.Message),
		CreatedAtMillis: nowMillis,
		UpdatedAtMillis: nowMillis,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snap).Error; err != nil {
			return err
		}
		return writeHashtagIndex(tx, snap)
	})
	if err != nil {
		s.logError(opCreate, reasonInsertFailed, err, zap.String(fieldAuthorEmail, input.AuthorEmail))
		return Snap{}, newServiceError(opCreate, reasonInsertFailed, err)
	}
	return snap, nil
}

// Lookup fetches a snap by id and tags the result as found, blocked or missing.
func (s *Store) Lookup(ctx context.Context, id string) (Lookup, error) {
	lookup, err := LookupIn(s.db.WithContext(ctx), id)
	if err != nil {
		s.logError(opLookup, reasonQueryFailed, err, zap.String(fieldSnapID, id))
		return Lookup{}, newServiceError(opLookup, reasonQueryFailed, err)
	}
	return lookup, nil
}

// LookupIn performs Lookup against db, which may be an open transaction.
func LookupIn(db *gorm.DB, id string) (Lookup, error) {
	var snap Snap
	err := db.Where(queryByID, id).Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Lookup{id: id, status: LookupNotFound}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	if snap.IsBlocked {
		return Lookup{id: id, status: LookupBlocked, snap: snap}, nil
	}
	return Lookup{id: id, status: LookupFound, snap: snap}, nil
}

// Update applies a partial update. A changed message re-derives the hashtags.
func (s *Store) Update(ctx context.Context, id string, update SnapUpdate) (Snap, error) {
	var updated Snap
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup, err := LookupIn(tx, id)
		if err != nil {
			return newServiceError(opUpdate, reasonQueryFailed, err)
		}
		snap, ok := lookup.Snap()
		if !ok {
			return lookup.Err()
		}

		messageChanged := false
		if update.Message != nil && *update.Message != snap.Message {
			snap.Message = *update.Message
			snap.Hashtags = hashtags.Extract(snap.Message)
			messageChanged = true
		}
		if update.IsPrivate != nil {
			snap.IsPrivate = *update.IsPrivate
		}
		snap.UpdatedAtMillis = s.clock().UTC().UnixMilli()

		if err := tx.Save(&snap).Error; err != nil {
			return newServiceError(opUpdate, reasonSaveFailed, err)
		}
		if messageChanged {
			if err := tx.Where(querySnapID, snap.ID).Delete(&SnapHashtag{}).Error; err != nil {
				return newServiceError(opUpdate, reasonDeleteFailed, err)
			}
			if err := writeHashtagIndex(tx, snap); err != nil {
				return newServiceError(opUpdate, reasonInsertFailed, err)
			}
		}
		updated = snap
		return nil
	})
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			s.logError(opUpdate, serviceErr.Code(), err, zap.String(fieldSnapID, id))
		}
		return Snap{}, err
	}
	return updated, nil
}

// Delete removes a snap together with its likes, favourites, shares and
// hashtag rows. It reports whether a snap was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&SnapHashtag{}, &Like{}, &Favourite{}, &Share{}} {
			if err := tx.Where(querySnapID, id).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Where(queryByID, id).Delete(&Snap{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		s.logError(opDelete, reasonDeleteFailed, err, zap.String(fieldSnapID, id))
		return false, newServiceError(opDelete, reasonDeleteFailed, err)
	}
	return deleted, nil
}

// ListByAuthor returns the non-blocked snaps of one author, newest first.
func (s *Store) ListByAuthor(ctx context.Context, authorEmail string) ([]Snap, error) {
	return s.list(ctx, zap.String(fieldAuthorEmail, authorEmail), func(query *gorm.DB) *gorm.DB {
		return query.Where(queryAuthor, authorEmail)
	})
}

// ListByAuthors returns the non-blocked snaps of any of the given authors.
func (s *Store) ListByAuthors(ctx context.Context, authorEmails []string) ([]Snap, error) {
	if len(authorEmails) == 0 {
		return []Snap{}, nil
	}
	return s.list(ctx, zap.Int(fieldAuthorsCount, len(authorEmails)), func(query *gorm.DB) *gorm.DB {
		return query.Where(queryAuthorsIn, authorEmails)
	})
}

// ListAll returns every snap, hiding blocked ones unless the filter asks for them.
func (s *Store) ListAll(ctx context.Context, filter ListFilter) ([]Snap, error) {
	var snaps []Snap
	query := s.db.WithContext(ctx).Model(&Snap{})
	if !filter.IncludeBlocked {
		query = query.Where(queryNotBlocked, false)
	}
	if err := query.Order(orderNewestFirst).Find(&snaps).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err, zap.Bool(fieldIncludeBlocks, filter.IncludeBlocked))
		return nil, newServiceError(opList, reasonQueryFailed, err)
	}
	return snaps, nil
}

// SearchByHashtag returns the non-blocked snaps carrying tag.
func (s *Store) SearchByHashtag(ctx context.Context, tag string) ([]Snap, error) {
	return s.list(ctx, zap.String(fieldHashtag, tag), func(query *gorm.DB) *gorm.DB {
		tagged := s.db.Model(&SnapHashtag{}).Select(columnSnapID).Where(queryTagEquals, tag)
		return query.Where(queryIDInSubquery, tagged)
	})
}

// ListByInterestTags returns the non-blocked snaps carrying any of tags.
func (s *Store) ListByInterestTags(ctx context.Context, tags []string) ([]Snap, error) {
	if len(tags) == 0 {
		return []Snap{}, nil
	}
	return s.list(ctx, zap.Int(fieldTagsCount, len(tags)), func(query *gorm.DB) *gorm.DB {
		tagged := s.db.Model(&SnapHashtag{}).Select(columnSnapID).Where(queryTagIn, tags)
		return query.Where(queryIDInSubquery, tagged)
	})
}

// ListByIDs returns the non-blocked snaps among ids.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]Snap, error) {
	if len(ids) == 0 {
		return []Snap{}, nil
	}
	return s.list(ctx, zap.Int(fieldIDsCount, len(ids)), func(query *gorm.DB) *gorm.DB {
		return query.Where(queryByIDs, ids)
	})
}

// ListRecent returns the non-blocked snaps created at or after since.
func (s *Store) ListRecent(ctx context.Context, since time.Time) ([]Snap, error) {
	sinceMillis := since.UTC().UnixMilli()
	return s.list(ctx, zap.Int64("since_ms", sinceMillis), func(query *gorm.DB) *gorm.DB {
		return query.Where(queryCreatedSince, sinceMillis)
	})
}

func (s *Store) list(ctx context.Context, field zap.Field, scope func(*gorm.DB) *gorm.DB) ([]Snap, error) {
	var snaps []Snap
	query := scope(s.db.WithContext(ctx).Model(&Snap{}).Where(queryNotBlocked, false))
	if err := query.Order(orderNewestFirst).Find(&snaps).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err, field)
		return nil, newServiceError(opList, reasonQueryFailed, err)
	}
	if snaps == nil {
		snaps = []Snap{}
	}
	return snaps, nil
}

func writeHashtagIndex(tx *gorm.DB, snap Snap) error {
	if len(snap.Hashtags) == 0 {
		return nil
	}
	rows := make([]SnapHashtag, 0, len(snap.Hashtags))
	for position, tag := range snap.Hashtags {
		rows = append(rows, SnapHashtag{SnapID: snap.ID, Position: position, Tag: tag})
	}
	return tx.Create(&rows).Error
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("snap store error", attrs...)
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
