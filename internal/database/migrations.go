package database

import (
	"errors"
	"time"

	"github.com/snapmsg/backend/internal/hashtags"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationReconcileSnapLikeCounts = "2026-10-16_reconcile_snap_like_counts"
	migrationBackfillSnapHashtags    = "2026-10-16_backfill_snap_hashtags"
	backfillBatchSize                = 200
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationReconcileSnapLikeCounts, apply: reconcileSnapLikeCounts},
		{name: migrationBackfillSnapHashtags, apply: backfillSnapHashtags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// reconcileSnapLikeCounts recomputes likes_count from the like rows.
func reconcileSnapLikeCounts(db *gorm.DB) error {
	likes := db.Model(&snaps.Like{}).Select("COUNT(*)").Where("snap_likes.snap_id = snaps.id")
	return db.Model(&snaps.Snap{}).
		Where("1 = 1").
		UpdateColumn("likes_count", likes).Error
}

// backfillSnapHashtags derives hashtags for snaps whose index rows are missing.
func backfillSnapHashtags(db *gorm.DB) error {
	indexed := db.Model(&snaps.SnapHashtag{}).Select("snap_id")
	var pending []snaps.Snap
	return db.Where("id NOT IN (?)", indexed).
		FindInBatches(&pending, backfillBatchSize, func(_ *gorm.DB, _ int) error {
			for _, snap := range pending {
				tags := hashtags.Extract(snap.Message)
				update := db.Model(&snaps.Snap{ID: snap.ID}).Select("hashtags").Updates(snaps.Snap{Hashtags: tags})
				if err := update.Error; err != nil {
					return err
				}
				if len(tags) == 0 {
					continue
				}
				rows := make([]snaps.SnapHashtag, 0, len(tags))
				for position, tag := range tags {
					rows = append(rows, snaps.SnapHashtag{SnapID: snap.ID, Position: position, Tag: tag})
				}
				if err := db.Create(&rows).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
}
