package snaps

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/snapmsg/backend/internal/apperror"
	"github.com/snapmsg/backend/internal/hashtags"
	"go.uber.org/zap"
)

// ServiceConfig describes the dependencies of the snap use cases.
type ServiceConfig struct {
	Store            *Store
	Graph            FollowGraph
	MaxMessageLength int
	Logger           *zap.Logger
}

// Service applies ownership, validation and visibility rules on top of Store.
type Service struct {
	store            *Store
	graph            FollowGraph
	maxMessageLength int
	logger           *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, reasonMissingStore, errMissingStore)
	}
	if cfg.Graph == nil {
		return nil, newServiceError(opServiceNew, reasonMissingGraph, errMissingGraph)
	}
	maxLength := cfg.MaxMessageLength
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:            cfg.Store,
		graph:            cfg.Graph,
		maxMessageLength: maxLength,
		logger:           logger,
	}, nil
}

// Store exposes the underlying snap store.
func (s *Service) Store() *Store {
	return s.store
}

// Create validates the message and persists a snap authored by viewer.
func (s *Service) Create(ctx context.Context, viewer Viewer, message string, isPrivate bool) (Snap, error) {
	if err := s.validateMessage(message); err != nil {
		return Snap{}, err
	}
	return s.store.Create(ctx, NewSnap{
		AuthorEmail:    viewer.Email,
		AuthorUsername: viewer.Username,
		Message:        message,
		IsPrivate:      isPrivate,
	})
}

// Get returns a single snap. A blocked snap is reported as blocked to its
// owner and to moderators, and as missing to everyone else.
func (s *Service) Get(ctx context.Context, viewer Viewer, id string) (Snap, error) {
	if strings.TrimSpace(id) == "" {
		return Snap{}, apperror.ErrInvalidSnapID
	}
	lookup, err := s.store.Lookup(ctx, id)
	if err != nil {
		return Snap{}, err
	}

	snap, exists := lookup.Snap()
	switch {
	case !exists:
		return Snap{}, lookup.Err()
	case lookup.Status() == LookupBlocked:
		if snap.OwnedBy(viewer.Email) || viewer.Moderator {
			return Snap{}, lookup.Err()
		}
		return Snap{}, notFoundError(id)
	}

	visible, err := FilterVisible(ctx, s.graph, viewer, []Snap{snap})
	if err != nil {
		return Snap{}, err
	}
	if len(visible) == 0 {
		return Snap{}, notFoundError(id)
	}
	return snap, nil
}

// Update changes the message or visibility of a snap owned by viewer.
func (s *Service) Update(ctx context.Context, viewer Viewer, id string, update SnapUpdate) (Snap, error) {
	if strings.TrimSpace(id) == "" {
		return Snap{}, apperror.ErrInvalidSnapID
	}
	if update.Message != nil {
		if err := s.validateMessage(*update.Message); err != nil {
			return Snap{}, err
		}
	}
	snap, err := s.ownedSnap(ctx, viewer, id)
	if err != nil {
		return Snap{}, err
	}
	if snap.IsBlocked {
		return Snap{}, blockedError(id)
	}
	return s.store.Update(ctx, id, update)
}

// Delete removes a snap owned by viewer, including a blocked one.
func (s *Service) Delete(ctx context.Context, viewer Viewer, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ErrInvalidSnapID
	}
	if _, err := s.ownedSnap(ctx, viewer, id); err != nil {
		return err
	}
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFoundError(id)
	}
	return nil
}

// ListOwn returns the viewer's own non-blocked snaps.
func (s *Service) ListOwn(ctx context.Context, viewer Viewer) ([]Snap, error) {
	return s.store.ListByAuthor(ctx, viewer.Email)
}

// ListByAuthor returns the snaps of authorEmail that viewer may read.
func (s *Service) ListByAuthor(ctx context.Context, viewer Viewer, authorEmail string) ([]Snap, error) {
	snaps, err := s.store.ListByAuthor(ctx, authorEmail)
	if err != nil {
		return nil, err
	}
	return FilterVisible(ctx, s.graph, viewer, snaps)
}

// ListAll returns every snap viewer may read. Moderators also see blocked snaps.
func (s *Service) ListAll(ctx context.Context, viewer Viewer) ([]Snap, error) {
	snaps, err := s.store.ListAll(ctx, ListFilter{IncludeBlocked: viewer.Moderator})
	if err != nil {
		return nil, err
	}
	return FilterVisible(ctx, s.graph, viewer, snaps)
}

// SearchByHashtag returns the readable snaps carrying the normalized tag.
func (s *Service) SearchByHashtag(ctx context.Context, viewer Viewer, rawTag string) ([]Snap, error) {
	tag := hashtags.Normalize(rawTag)
	if tag == "" {
		return nil, apperror.ErrInvalidHashtag
	}
	snaps, err := s.store.SearchByHashtag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return FilterVisible(ctx, s.graph, viewer, snaps)
}

// Block hides a snap. Only moderators may block.
func (s *Service) Block(ctx context.Context, viewer Viewer, id string) error {
	if !viewer.Moderator {
		return apperror.ErrNotModerator
	}
	if strings.TrimSpace(id) == "" {
		return apperror.ErrInvalidSnapID
	}
	return s.store.Block(ctx, id)
}

// Unblock restores a snap. Only moderators may unblock.
func (s *Service) Unblock(ctx context.Context, viewer Viewer, id string) error {
	if !viewer.Moderator {
		return apperror.ErrNotModerator
	}
	if strings.TrimSpace(id) == "" {
		return apperror.ErrInvalidSnapID
	}
	return s.store.Unblock(ctx, id)
}

// ownedSnap resolves id for a mutation by viewer. Blocked snaps of other
// authors are reported as missing.
func (s *Service) ownedSnap(ctx context.Context, viewer Viewer, id string) (Snap, error) {
	lookup, err := s.store.Lookup(ctx, id)
	if err != nil {
		return Snap{}, err
	}
	snap, exists := lookup.Snap()
	if !exists {
		return Snap{}, lookup.Err()
	}
	if !snap.OwnedBy(viewer.Email) {
		if snap.IsBlocked {
			return Snap{}, notFoundError(id)
		}
		return Snap{}, apperror.ErrNotOwner
	}
	return snap, nil
}

func (s *Service) validateMessage(message string) error {
	if utf8.RuneCountInString(message) > s.maxMessageLength {
		return apperror.ErrMessageTooLong.WithDetail("Message exceeds %d characters.", s.maxMessageLength)
	}
	return nil
}
