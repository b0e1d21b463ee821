// Package feed assembles personalized timelines and trending topics.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/snapmsg/backend/internal/hashtags"
	"github.com/snapmsg/backend/internal/profiles"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	errMissingSnaps        = errors.New("snap reader is required")
	errMissingInteractions = errors.New("interaction reader is required")
	errMissingGraph        = errors.New("social graph is required")
	ErrInvalidConfig       = errors.New("feed: invalid assembler config")
)

// SnapReader is the read side of the snap store used by the feed.
type SnapReader interface {
	ListByAuthor(ctx context.Context, authorEmail string) ([]snaps.Snap, error)
	ListByAuthors(ctx context.Context, authorEmails []string) ([]snaps.Snap, error)
	ListByInterestTags(ctx context.Context, tags []string) ([]snaps.Snap, error)
	ListByIDs(ctx context.Context, ids []string) ([]snaps.Snap, error)
	ListRecent(ctx context.Context, since time.Time) ([]snaps.Snap, error)
}

// InteractionReader exposes the viewer-centric interaction sets.
type InteractionReader interface {
	LikedSnapIDs(ctx context.Context, userEmail string) ([]string, error)
	FavouritedSnapIDs(ctx context.Context, userEmail string) ([]string, error)
	SharedSnapIDs(ctx context.Context, userEmail string) ([]string, error)
	SharesBy(ctx context.Context, userEmails ...string) ([]snaps.Share, error)
	ShareCounts(ctx context.Context, snapIDs []string) (map[string]int64, error)
}

// SocialGraph is the profile service as seen by the feed.
type SocialGraph interface {
	ByUsername(ctx context.Context, username string) (profiles.Profile, error)
	FollowedEmails(ctx context.Context, token, username string) ([]string, error)
	VerifiedUsernames(ctx context.Context) ([]string, error)
}

// Entry is a snap as presented to one viewer.
type Entry struct {
	Snap snaps.Snap
	// PostedAt is the snap creation time, or the share time for re-shared entries.
	PostedAt     time.Time
	RetweetUser  string
	IsShared     bool
	IsLiked      bool
	IsFavourited bool
	IsVerified   bool
}

type Options struct {
	IncludeOwn bool
}

type AssemblerConfig struct {
	Snaps         SnapReader
	Interactions  InteractionReader
	Graph         SocialGraph
	Clock         func() time.Time
	TrendWindow   time.Duration
	TrendingLimit int
	Logger        *zap.Logger
}

// Assembler builds feeds, viewer annotations and trending rankings.
type Assembler struct {
	snaps         SnapReader
	interactions  InteractionReader
	graph         SocialGraph
	clock         func() time.Time
	trendWindow   time.Duration
	trendingLimit int
	logger        *zap.Logger
}

// NewAssembler validates cfg and constructs an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Snaps == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingSnaps)
	}
	if cfg.Interactions == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingInteractions)
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingGraph)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	window := cfg.TrendWindow
	if window <= 0 {
		window = DefaultTrendWindow
	}
	limit := cfg.TrendingLimit
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		snaps:         cfg.Snaps,
		interactions:  cfg.Interactions,
		graph:         cfg.Graph,
		clock:         clock,
		trendWindow:   window,
		trendingLimit: limit,
		logger:        logger,
	}, nil
}

// Feed merges the viewer's own snaps (when requested), snaps of followed
// users, snaps matching the viewer's interests and snaps shared by the viewer
// or followed users into one annotated timeline, newest first.
func (a *Assembler) Feed(ctx context.Context, viewer snaps.Viewer, opts Options) ([]Entry, error) {
	var (
		own      []snaps.Snap
		followed []snaps.Snap
		relevant []snaps.Snap
		shares   []snaps.Share
		follows  []string
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if opts.IncludeOwn {
		group.Go(func() error {
			var err error
			own, err = a.snaps.ListByAuthor(groupCtx, viewer.Email)
			return err
		})
	}
	group.Go(func() error {
		var err error
		follows, err = a.graph.FollowedEmails(groupCtx, viewer.Token, viewer.Username)
		if err != nil {
			return err
		}
		inner, innerCtx := errgroup.WithContext(groupCtx)
		inner.Go(func() error {
			var err error
			followed, err = a.snaps.ListByAuthors(innerCtx, follows)
			return err
		})
		inner.Go(func() error {
			var err error
			shares, err = a.interactions.SharesBy(innerCtx, append([]string{viewer.Email}, follows...)...)
			return err
		})
		return inner.Wait()
	})
	group.Go(func() error {
		profile, err := a.graph.ByUsername(groupCtx, viewer.Username)
		if err != nil {
			return err
		}
		relevant, err = a.snaps.ListByInterestTags(groupCtx, hashtags.NormalizeAll(profile.Interests))
		return err
	})
	if err := group.Wait(); err != nil {
		a.logger.Warn("feed assembly failed", zap.String("viewer", viewer.Email), zap.Error(err))
		return nil, err
	}

	shared, err := a.resolveShares(ctx, shares)
	if err != nil {
		return nil, err
	}

	followSet := snaps.FollowSet(follows)
	candidates := make([]Entry, 0, len(own)+len(followed)+len(relevant)+len(shared))
	for _, source := range [][]snaps.Snap{own, followed, relevant} {
		for _, snap := range source {
			if snaps.Visible(snap, viewer, followSet) {
				candidates = append(candidates, Entry{Snap: snap, PostedAt: snap.CreatedAt()})
			}
		}
	}
	for _, entry := range shared {
		if snaps.Visible(entry.Snap, viewer, followSet) {
			candidates = append(candidates, entry)
		}
	}

	entries := Merge(candidates)
	if err := a.annotate(ctx, viewer, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Merge orders candidates newest first and keeps the first occurrence of each
// snap. Candidates must be supplied in source priority order.
func Merge(candidates []Entry) []Entry {
	sorted := append([]Entry(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PostedAt.After(sorted[j].PostedAt)
	})

	seen := make(map[string]struct{}, len(sorted))
	merged := make([]Entry, 0, len(sorted))
	for _, entry := range sorted {
		if _, ok := seen[entry.Snap.ID]; ok {
			continue
		}
		seen[entry.Snap.ID] = struct{}{}
		merged = append(merged, entry)
	}
	return merged
}

func (a *Assembler) resolveShares(ctx context.Context, shares []snaps.Share) ([]Entry, error) {
	if len(shares) == 0 {
		return []Entry{}, nil
	}
	ids := make([]string, 0, len(shares))
	for _, share := range shares {
		ids = append(ids, share.SnapID)
	}
	resolved, err := a.snaps.ListByIDs(ctx, hashtags.Distinct(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]snaps.Snap, len(resolved))
	for _, snap := range resolved {
		byID[snap.ID] = snap
	}

	entries := make([]Entry, 0, len(shares))
	for _, share := range shares {
		snap, ok := byID[share.SnapID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{Snap: snap, PostedAt: share.CreatedAt(), RetweetUser: share.Username})
	}
	return entries, nil
}

// Annotate wraps snaps as entries carrying the viewer's interaction flags.
func (a *Assembler) Annotate(ctx context.Context, viewer snaps.Viewer, list []snaps.Snap) ([]Entry, error) {
	entries := make([]Entry, 0, len(list))
	for _, snap := range list {
		entries = append(entries, Entry{Snap: snap, PostedAt: snap.CreatedAt()})
	}
	if err := a.annotate(ctx, viewer, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AnnotateOne wraps a single snap.
func (a *Assembler) AnnotateOne(ctx context.Context, viewer snaps.Viewer, snap snaps.Snap) (Entry, error) {
	entries, err := a.Annotate(ctx, viewer, []snaps.Snap{snap})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

func (a *Assembler) annotate(ctx context.Context, viewer snaps.Viewer, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var liked, favourited, shared, verified []string
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		liked, err = a.interactions.LikedSnapIDs(groupCtx, viewer.Email)
		return err
	})
	group.Go(func() error {
		var err error
		favourited, err = a.interactions.FavouritedSnapIDs(groupCtx, viewer.Email)
		return err
	})
	group.Go(func() error {
		var err error
		shared, err = a.interactions.SharedSnapIDs(groupCtx, viewer.Email)
		return err
	})
	group.Go(func() error {
		var err error
		verified, err = a.graph.VerifiedUsernames(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	likedSet := toSet(liked)
	favouritedSet := toSet(favourited)
	sharedSet := toSet(shared)
	verifiedSet := toSet(verified)
	for i := range entries {
		id := entries[i].Snap.ID
		entries[i].IsLiked = contains(likedSet, id)
		entries[i].IsFavourited = contains(favouritedSet, id)
		entries[i].IsShared = contains(sharedSet, id)
		entries[i].IsVerified = contains(verifiedSet, entries[i].Snap.AuthorUsername)
	}
	return nil
}

// Liked lists the readable snaps the viewer likes.
func (a *Assembler) Liked(ctx context.Context, viewer snaps.Viewer) ([]Entry, error) {
	return a.listInteraction(ctx, viewer, a.interactions.LikedSnapIDs)
}

// Favourited lists the readable snaps the viewer favourited.
func (a *Assembler) Favourited(ctx context.Context, viewer snaps.Viewer) ([]Entry, error) {
	return a.listInteraction(ctx, viewer, a.interactions.FavouritedSnapIDs)
}

// Shared lists the readable snaps the viewer shared.
func (a *Assembler) Shared(ctx context.Context, viewer snaps.Viewer) ([]Entry, error) {
	return a.listInteraction(ctx, viewer, a.interactions.SharedSnapIDs)
}

func (a *Assembler) listInteraction(ctx context.Context, viewer snaps.Viewer, ids func(context.Context, string) ([]string, error)) ([]Entry, error) {
	snapIDs, err := ids(ctx, viewer.Email)
	if err != nil {
		return nil, err
	}
	list, err := a.snaps.ListByIDs(ctx, snapIDs)
	if err != nil {
		return nil, err
	}
	visible, err := snaps.FilterVisible(ctx, a.graph, viewer, list)
	if err != nil {
		return nil, err
	}
	return a.Annotate(ctx, viewer, visible)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, value string) bool {
	_, ok := set[value]
	return ok
}
