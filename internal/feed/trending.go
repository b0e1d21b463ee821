package feed

import (
	"context"
	"sort"
	"time"

	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
)

const (
	DefaultTrendWindow   = 24 * time.Hour
	DefaultTrendingLimit = 5

	pointsPerSnap  = 10
	pointsPerLike  = 1
	pointsPerShare = 2
)

// Topic is a ranked hashtag.
type Topic struct {
	Hashtag string `json:"hashtag"`
	Score   int64  `json:"score"`
}

// Trending ranks the hashtags of non-blocked snaps created within the trend
// window. Every hashtag occurrence on a snap earns a base score plus points
// for the snap's likes and shares. Ties are broken by hashtag in lexical order.
func (a *Assembler) Trending(ctx context.Context) ([]Topic, error) {
	since := a.clock().Add(-a.trendWindow)
	recent, err := a.snaps.ListRecent(ctx, since)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recent))
	for _, snap := range recent {
		ids = append(ids, snap.ID)
	}
	shareCounts, err := a.interactions.ShareCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	topics := RankTopics(recent, shareCounts, a.trendingLimit)
	a.logger.Debug("trending computed",
		zap.Int("snaps", len(recent)),
		zap.Int("topics", len(topics)))
	return topics, nil
}

// RankTopics scores hashtags of recent and returns at most limit topics.
func RankTopics(recent []snaps.Snap, shareCounts map[string]int64, limit int) []Topic {
	scores := make(map[string]int64)
	for _, snap := range recent {
		points := pointsPerSnap + pointsPerLike*snap.LikesCount + pointsPerShare*shareCounts[snap.ID]
		for _, tag := range snap.Hashtags {
			scores[tag] += points
		}
	}

	topics := make([]Topic, 0, len(scores))
	for tag, score := range scores {
		topics = append(topics, Topic{Hashtag: tag, Score: score})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Score != topics[j].Score {
			return topics[i].Score > topics[j].Score
		}
		return topics[i].Hashtag < topics[j].Hashtag
	})
	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}
