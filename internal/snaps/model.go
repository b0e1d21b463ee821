package snaps

import (
	"time"

	"github.com/snapmsg/backend/internal/apperror"
)

// DefaultMaxMessageLength bounds snap messages, counted in characters.
const DefaultMaxMessageLength = 280

// Snap models a posted message.
type Snap struct {
	ID              string   `gorm:"column:id;primaryKey;size:64;not null"`
	AuthorEmail     string   `gorm:"column:author_email;size:320;not null;index:idx_snaps_author_created,priority:1"`
	AuthorUsername  string   `gorm:"column:author_username;size:190;not null"`
	Message         string   `gorm:"column:message;type:text;not null"`
	IsPrivate       bool     `gorm:"column:is_private;not null;default:false"`
	Hashtags        []string `gorm:"column:hashtags;serializer:json;type:text;not null"`
	CreatedAtMillis int64    `gorm:"column:created_at_ms;not null;index:idx_snaps_author_created,priority:2;index:idx_snaps_created"`
	UpdatedAtMillis int64    `gorm:"column:updated_at_ms;not null"`
	LikesCount      int64    `gorm:"column:likes_count;not null;default:0"`
	IsBlocked       bool     `gorm:"column:is_blocked;not null;default:false"`
}

func (Snap) TableName() string {
	return "snaps"
}

// CreatedAt returns the creation time in UTC.
func (s Snap) CreatedAt() time.Time {
	return time.UnixMilli(s.CreatedAtMillis).UTC()
}

// OwnedBy reports whether email authored the snap.
func (s Snap) OwnedBy(email string) bool {
	return email != "" && s.AuthorEmail == email
}

// SnapHashtag indexes one hashtag occurrence of a snap for search.
type SnapHashtag struct {
	SnapID   string `gorm:"column:snap_id;primaryKey;size:64;not null"`
	Position int    `gorm:"column:position;primaryKey;autoIncrement:false;not null"`
	Tag      string `gorm:"column:tag;size:190;not null;index:idx_snap_hashtags_tag"`
}

func (SnapHashtag) TableName() string {
	return "snap_hashtags"
}

// Like records that a user liked a snap. The pair is unique.
type Like struct {
	SnapID          string `gorm:"column:snap_id;primaryKey;size:64;not null"`
	UserEmail       string `gorm:"column:user_email;primaryKey;size:320;not null;index:idx_snap_likes_user"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

func (Like) TableName() string {
	return "snap_likes"
}

// Favourite records that a user favourited a snap. The pair is unique.
type Favourite struct {
	SnapID          string `gorm:"column:snap_id;primaryKey;size:64;not null"`
	UserEmail       string `gorm:"column:user_email;primaryKey;size:320;not null;index:idx_snap_favourites_user"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

func (Favourite) TableName() string {
	return "snap_favourites"
}

// Share records one re-share of a snap. A user may share the same snap repeatedly.
type Share struct {
	ID              string `gorm:"column:id;primaryKey;size:64;not null"`
	SnapID          string `gorm:"column:snap_id;size:64;not null;index:idx_snap_shares_snap"`
	UserEmail       string `gorm:"column:user_email;size:320;not null;index:idx_snap_shares_user"`
	Username        string `gorm:"column:username;size:190;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

func (Share) TableName() string {
	return "snap_shares"
}

// CreatedAt returns the share time in UTC.
func (s Share) CreatedAt() time.Time {
	return time.UnixMilli(s.CreatedAtMillis).UTC()
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Snap{}, &SnapHashtag{}, &Like{}, &Favourite{}, &Share{}}
}

// NewSnap carries the author-supplied fields of a snap.
type NewSnap struct {
	AuthorEmail    string
	AuthorUsername string
	Message        string
	IsPrivate      bool
}

// SnapUpdate carries the fields an owner may change. Nil fields are left as-is.
type SnapUpdate struct {
	Message   *string
	IsPrivate *bool
}

// ListFilter narrows ListAll.
type ListFilter struct {
	IncludeBlocked bool
}

// Viewer identifies the caller of a use case.
type Viewer struct {
	Email     string
	Username  string
	Token     string
	Moderator bool
}

// LookupStatus tags the outcome of a direct snap lookup.
type LookupStatus int

const (
	// LookupNotFound means no snap has the requested id.
	LookupNotFound LookupStatus = iota
	// LookupFound means the snap exists and is visible.
	LookupFound
	// LookupBlocked means the snap exists but is hidden by moderation.
	LookupBlocked
)

// Lookup is the tagged result of Store.Lookup.
type Lookup struct {
	id     string
	status LookupStatus
	snap   Snap
}

// Status returns the lookup outcome.
func (l Lookup) Status() LookupStatus {
	return l.status
}

// Snap returns the stored snap for found and blocked outcomes.
func (l Lookup) Snap() (Snap, bool) {
	if l.status == LookupNotFound {
		return Snap{}, false
	}
	return l.snap, true
}

// Visible returns the snap only when it is found and not blocked.
func (l Lookup) Visible() (Snap, bool) {
	if l.status != LookupFound {
		return Snap{}, false
	}
	return l.snap, true
}

// Err converts non-found outcomes into the matching application error.
func (l Lookup) Err() error {
	switch l.status {
	case LookupNotFound:
		return notFoundError(l.id)
	case LookupBlocked:
		return blockedError(l.id)
	default:
		return nil
	}
}

func notFoundError(id string) error {
	return apperror.ErrSnapNotFound.WithDetail("The snap with ID %s was not found.", id)
}

func blockedError(id string) error {
	return apperror.ErrSnapBlocked.WithDetail("The snap with ID %s is blocked.", id)
}
