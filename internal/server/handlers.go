package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapmsg/backend/internal/apperror"
	"github.com/snapmsg/backend/internal/feed"
	"github.com/snapmsg/backend/internal/snaps"
)

const (
	opCreateSnap      = "create_snap"
	opListOwnSnaps    = "list_own_snaps"
	opListAllSnaps    = "list_all_snaps"
	opFeed            = "feed"
	opTrending        = "trending"
	opSearch          = "search"
	opListByUsername  = "list_by_username"
	opListInteraction = "list_interaction"
	opGetSnap         = "get_snap"
	opUpdateSnap      = "update_snap"
	opDeleteSnap      = "delete_snap"
	opLike            = "like"
	opUnlike          = "unlike"
	opFavourite       = "favourite"
	opUnfavourite     = "unfavourite"
	opShare           = "share"
	opBlock           = "block"
	opUnblock         = "unblock"
)

type createSnapRequest struct {
	Message   string `json:"message"`
	IsPrivate bool   `json:"is_private"`
}

type updateSnapRequest struct {
	Message   *string `json:"message"`
	IsPrivate *bool   `json:"is_private"`
}

type snapPayload struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	IsPrivate    bool      `json:"is_private"`
	Hashtags     []string  `json:"hashtags"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LikesCount   int64     `json:"likes_count"`
	IsBlocked    bool      `json:"is_blocked"`
	RetweetUser  string    `json:"retweet_user,omitempty"`
	IsShared     bool      `json:"is_shared"`
	IsLiked      bool      `json:"is_liked"`
	IsFavourited bool      `json:"is_favourited"`
	IsVerified   bool      `json:"is_verified"`
}

type sharePayload struct {
	ID        string    `json:"id"`
	SnapID    string    `json:"snap_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func newSnapPayload(entry feed.Entry) snapPayload {
	tags := entry.Snap.Hashtags
	if tags == nil {
		tags = []string{}
	}
	return snapPayload{
		ID:           entry.Snap.ID,
		Message:      entry.Snap.Message,
		IsPrivate:    entry.Snap.IsPrivate,
		Hashtags:     tags,
		Email:        entry.Snap.AuthorEmail,
		Username:     entry.Snap.AuthorUsername,
		CreatedAt:    entry.Snap.CreatedAt(),
		UpdatedAt:    time.UnixMilli(entry.Snap.UpdatedAtMillis).UTC(),
		LikesCount:   entry.Snap.LikesCount,
		IsBlocked:    entry.Snap.IsBlocked,
		RetweetUser:  entry.RetweetUser,
		IsShared:     entry.IsShared,
		IsLiked:      entry.IsLiked,
		IsFavourited: entry.IsFavourited,
		IsVerified:   entry.IsVerified,
	}
}

func newSnapPayloads(entries []feed.Entry) []snapPayload {
	payloads := make([]snapPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newSnapPayload(entry))
	}
	return payloads
}

func (h *httpHandler) handleCreateSnap(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opCreateSnap)
	if !ok {
		return
	}
	var request createSnapRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, opCreateSnap, apperror.ErrInvalidRequest.WithCause(err))
		return
	}
	snap, err := h.snapService.Create(c.Request.Context(), viewer, request.Message, request.IsPrivate)
	if err != nil {
		h.respondError(c, opCreateSnap, err)
		return
	}
	h.respondSnap(c, opCreateSnap, http.StatusCreated, viewer, snap)
}

func (h *httpHandler) handleListOwnSnaps(c *gin.Context) {
	h.respondSnapList(c, opListOwnSnaps, h.snapService.ListOwn)
}

func (h *httpHandler) handleListAllSnaps(c *gin.Context) {
	h.respondSnapList(c, opListAllSnaps, h.snapService.ListAll)
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	h.respondFeed(c, feed.Options{IncludeOwn: true})
}

func (h *httpHandler) handleFollowingFeed(c *gin.Context) {
	h.respondFeed(c, feed.Options{IncludeOwn: false})
}

func (h *httpHandler) respondFeed(c *gin.Context, opts feed.Options) {
	viewer, ok := h.viewerOrAbort(c, opFeed)
	if !ok {
		return
	}
	entries, err := h.feed.Feed(c.Request.Context(), viewer, opts)
	if err != nil {
		h.respondError(c, opFeed, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSnapPayloads(entries)})
}

func (h *httpHandler) handleTrending(c *gin.Context) {
	topics, err := h.feed.Trending(c.Request.Context())
	if err != nil {
		h.respondError(c, opTrending, err)
		return
	}
	if topics == nil {
		topics = []feed.Topic{}
	}
	c.JSON(http.StatusOK, gin.H{"data": topics})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opSearch)
	if !ok {
		return
	}
	found, err := h.snapService.SearchByHashtag(c.Request.Context(), viewer, c.Query("hashtag"))
	if err != nil {
		h.respondError(c, opSearch, err)
		return
	}
	h.respondAnnotated(c, opSearch, viewer, found)
}

func (h *httpHandler) handleListByUsername(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opListByUsername)
	if !ok {
		return
	}
	username := strings.TrimSpace(c.Param("username"))
	profile, err := h.profiles.ByUsername(c.Request.Context(), username)
	if err != nil {
		h.respondError(c, opListByUsername, err)
		return
	}
	found, err := h.snapService.ListByAuthor(c.Request.Context(), viewer, profile.Email)
	if err != nil {
		h.respondError(c, opListByUsername, err)
		return
	}
	h.respondAnnotated(c, opListByUsername, viewer, found)
}

func (h *httpHandler) handleListLiked(c *gin.Context) {
	h.respondInteractionList(c, h.feed.Liked)
}

func (h *httpHandler) handleListFavourites(c *gin.Context) {
	h.respondInteractionList(c, h.feed.Favourited)
}

func (h *httpHandler) handleListShared(c *gin.Context) {
	h.respondInteractionList(c, h.feed.Shared)
}

func (h *httpHandler) handleGetSnap(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opGetSnap)
	if !ok {
		return
	}
	snap, err := h.snapService.Get(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		h.respondError(c, opGetSnap, err)
		return
	}
	h.respondSnap(c, opGetSnap, http.StatusOK, viewer, snap)
}

func (h *httpHandler) handleUpdateSnap(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opUpdateSnap)
	if !ok {
		return
	}
	var request updateSnapRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, opUpdateSnap, apperror.ErrInvalidRequest.WithCause(err))
		return
	}
	update := snaps.SnapUpdate{Message: request.Message, IsPrivate: request.IsPrivate}
	snap, err := h.snapService.Update(c.Request.Context(), viewer, c.Param("id"), update)
	if err != nil {
		h.respondError(c, opUpdateSnap, err)
		return
	}
	h.respondSnap(c, opUpdateSnap, http.StatusOK, viewer, snap)
}

func (h *httpHandler) handleDeleteSnap(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opDeleteSnap)
	if !ok {
		return
	}
	if err := h.snapService.Delete(c.Request.Context(), viewer, c.Param("id")); err != nil {
		h.respondError(c, opDeleteSnap, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLike(c *gin.Context) {
	h.respondInteraction(c, opLike, true, h.ledger.Like)
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	h.respondInteraction(c, opUnlike, false, h.ledger.Unlike)
}

func (h *httpHandler) handleFavourite(c *gin.Context) {
	h.respondInteraction(c, opFavourite, true, h.ledger.Favourite)
}

func (h *httpHandler) handleUnfavourite(c *gin.Context) {
	h.respondInteraction(c, opUnfavourite, false, h.ledger.Unfavourite)
}

func (h *httpHandler) handleShare(c *gin.Context) {
	viewer, ok := h.viewerOrAbort(c, opShare)
	if !ok {
		return
	}
	if !h.requireVisible(c, opShare, viewer) {
		return
	}
	share, err := h.ledger.Share(c.Request.Context(), c.Param("id"), viewer.Email, viewer.Username)
	if err != nil {
		h.respondError(c, opShare, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sharePayload{
		ID:        share.ID,
		SnapID:    share.SnapID,
		Username:  share.Username,
		CreatedAt: share.CreatedAt(),
	}})
}

func (h *httpHandler) handleBlock(c *gin.Context) {
	h.respondModeration(c, opBlock, h.snapService.Block)
}

func (h *httpHandler) handleUnblock(c *gin.Context) {
	h.respondModeration(c, opUnblock, h.snapService.Unblock)
}

// respondInteraction applies mutate for the viewer. Adding an interaction
// requires the snap to be readable by the viewer; removing one does not, so
// that a user who lost access can still withdraw a like or favourite.
func (h *httpHandler) respondInteraction(c *gin.Context, operation string, adds bool, mutate func(ctx context.Context, snapID, userEmail string) error) {
	viewer, ok := h.viewerOrAbort(c, operation)
	if !ok {
		return
	}
	if adds && !h.requireVisible(c, operation, viewer) {
		return
	}
	if err := mutate(c.Request.Context(), c.Param("id"), viewer.Email); err != nil {
		h.respondError(c, operation, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondModeration(c *gin.Context, operation string, moderate func(ctx context.Context, viewer snaps.Viewer, id string) error) {
	viewer, ok := h.viewerOrAbort(c, operation)
	if !ok {
		return
	}
	if err := moderate(c.Request.Context(), viewer, c.Param("id")); err != nil {
		h.respondError(c, operation, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondSnapList(c *gin.Context, operation string, list func(ctx context.Context, viewer snaps.Viewer) ([]snaps.Snap, error)) {
	viewer, ok := h.viewerOrAbort(c, operation)
	if !ok {
		return
	}
	found, err := list(c.Request.Context(), viewer)
	if err != nil {
		h.respondError(c, operation, err)
		return
	}
	h.respondAnnotated(c, operation, viewer, found)
}

func (h *httpHandler) respondInteractionList(c *gin.Context, list func(ctx context.Context, viewer snaps.Viewer) ([]feed.Entry, error)) {
	viewer, ok := h.viewerOrAbort(c, opListInteraction)
	if !ok {
		return
	}
	entries, err := list(c.Request.Context(), viewer)
	if err != nil {
		h.respondError(c, opListInteraction, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSnapPayloads(entries)})
}

func (h *httpHandler) respondAnnotated(c *gin.Context, operation string, viewer snaps.Viewer, found []snaps.Snap) {
	entries, err := h.feed.Annotate(c.Request.Context(), viewer, found)
	if err != nil {
		h.respondError(c, operation, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSnapPayloads(entries)})
}

func (h *httpHandler) respondSnap(c *gin.Context, operation string, status int, viewer snaps.Viewer, snap snaps.Snap) {
	entry, err := h.feed.AnnotateOne(c.Request.Context(), viewer, snap)
	if err != nil {
		h.respondError(c, operation, err)
		return
	}
	c.JSON(status, gin.H{"data": newSnapPayload(entry)})
}

func (h *httpHandler) requireVisible(c *gin.Context, operation string, viewer snaps.Viewer) bool {
	if _, err := h.snapService.Get(c.Request.Context(), viewer, c.Param("id")); err != nil {
		h.respondError(c, operation, err)
		return false
	}
	return true
}

func (h *httpHandler) viewerOrAbort(c *gin.Context, operation string) (snaps.Viewer, bool) {
	viewer, err := viewerFrom(c)
	if err != nil {
		h.respondError(c, operation, err)
		return snaps.Viewer{}, false
	}
	return viewer, true
}
