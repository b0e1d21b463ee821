package snaps

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/snapmsg/backend/internal/apperror"
)

var (
	ana = Viewer{Email: "ana@example.com", Username: "ana", Token: "token-ana"}
	bo  = Viewer{Email: "bo@example.com", Username: "bo", Token: "token-bo"}
	cy  = Viewer{Email: "cy@example.com", Username: "cy", Token: "token-cy"}
	mod = Viewer{Email: "mod@example.com", Username: "mod", Token: "token-mod", Moderator: true}
)

func newTestService(t *testing.T, graph *staticGraph) (*Service, *manualClock) {
	t.Helper()
	store, clock, _ := newTestStore(t)
	if graph == nil {
		graph = &staticGraph{}
	}
	service, err := NewService(ServiceConfig{Store: store, Graph: graph})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, clock
}

func TestServiceCreateExtractsHashtags(t *testing.T) {
	service, _ := newTestService(t, nil)

	snap, err := service.Create(context.Background(), ana, "Hello #World", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(snap.Hashtags, []string{"#world"}) {
		t.Fatalf("unexpected hashtags %v", snap.Hashtags)
	}
	if snap.AuthorEmail != ana.Email || snap.AuthorUsername != ana.Username {
		t.Fatalf("unexpected author %+v", snap)
	}
}

func TestServiceRejectsLongMessages(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, ana, strings.Repeat("a", 281), false)
	if !errors.Is(err, apperror.ErrMessageTooLong) {
		t.Fatalf("expected message too long, got %v", err)
	}
	appErr, _ := apperror.As(err)
	if appErr.Detail() != "Message exceeds 280 characters." {
		t.Fatalf("unexpected detail %q", appErr.Detail())
	}

	if _, err := service.Create(ctx, ana, strings.Repeat("ß", 280), false); err != nil {
		t.Fatalf("280 multi-byte characters must be accepted: %v", err)
	}

	snap, err := service.Create(ctx, ana, "short", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tooLong := strings.Repeat("b", 281)
	if _, err := service.Update(ctx, ana, snap.ID, SnapUpdate{Message: &tooLong}); !errors.Is(err, apperror.ErrMessageTooLong) {
		t.Fatalf("expected message too long on update, got %v", err)
	}
}

func TestServiceHonoursConfiguredLength(t *testing.T) {
	store, _, _ := newTestStore(t)
	service, err := NewService(ServiceConfig{Store: store, Graph: &staticGraph{}, MaxMessageLength: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = service.Create(context.Background(), ana, "toolong", false)
	appErr, ok := apperror.As(err)
	if !ok || appErr.Detail() != "Message exceeds 5 characters." {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestServiceOwnershipRules(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	snap, err := service.Create(ctx, ana, "mine", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Delete(ctx, bo, snap.ID); !errors.Is(err, apperror.ErrNotOwner) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := service.Get(ctx, bo, snap.ID); err != nil {
		t.Fatalf("snap must survive a rejected delete: %v", err)
	}
	message := "edited"
	if _, err := service.Update(ctx, bo, snap.ID, SnapUpdate{Message: &message}); !errors.Is(err, apperror.ErrNotOwner) {
		t.Fatalf("expected forbidden update, got %v", err)
	}
	if _, err := service.Update(ctx, ana, "absent", SnapUpdate{Message: &message}); !errors.Is(err, apperror.ErrSnapNotFound) {
		t.Fatalf("expected not found update, got %v", err)
	}

	updated, err := service.Update(ctx, ana, snap.ID, SnapUpdate{Message: &message})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Message != "edited" {
		t.Fatalf("unexpected message %q", updated.Message)
	}
	if err := service.Delete(ctx, ana, snap.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.Get(ctx, ana, snap.ID); !errors.Is(err, apperror.ErrSnapNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestServiceBlockedSnapLifecycle(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	snap, err := service.Create(ctx, ana, "look #x", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Block(ctx, bo, snap.ID); !errors.Is(err, apperror.ErrNotModerator) {
		t.Fatalf("expected moderator check, got %v", err)
	}
	if err := service.Block(ctx, mod, snap.ID); err != nil {
		t.Fatalf("unexpected block error: %v", err)
	}

	results, err := service.SearchByHashtag(ctx, bo, "x")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("blocked snap leaked into search")
	}

	if _, err := service.Get(ctx, ana, snap.ID); !errors.Is(err, apperror.ErrSnapBlocked) {
		t.Fatalf("owner should see blocked error, got %v", err)
	}
	if _, err := service.Get(ctx, mod, snap.ID); !errors.Is(err, apperror.ErrSnapBlocked) {
		t.Fatalf("moderator should see blocked error, got %v", err)
	}
	if _, err := service.Get(ctx, bo, snap.ID); !errors.Is(err, apperror.ErrSnapNotFound) {
		t.Fatalf("others should see not found, got %v", err)
	}
	message := "edit"
	if _, err := service.Update(ctx, ana, snap.ID, SnapUpdate{Message: &message}); !errors.Is(err, apperror.ErrSnapBlocked) {
		t.Fatalf("owner update of blocked snap should be blocked, got %v", err)
	}
	if _, err := service.Update(ctx, bo, snap.ID, SnapUpdate{Message: &message}); !errors.Is(err, apperror.ErrSnapNotFound) {
		t.Fatalf("non-owner update of blocked snap should be not found, got %v", err)
	}

	moderatorView, err := service.ListAll(ctx, mod)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(moderatorView) != 1 {
		t.Fatalf("moderator should see blocked snaps in list all")
	}
	userView, err := service.ListAll(ctx, bo)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(userView) != 0 {
		t.Fatalf("users must not see blocked snaps in list all")
	}

	if err := service.Unblock(ctx, mod, snap.ID); err != nil {
		t.Fatalf("unexpected unblock error: %v", err)
	}
	results, err = service.SearchByHashtag(ctx, bo, "#X")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) != 1 || results[0].ID != snap.ID {
		t.Fatalf("expected unblocked snap in search, got %v", snapIDs(results))
	}
}

func TestServiceSearchRequiresHashtag(t *testing.T) {
	service, _ := newTestService(t, nil)
	if _, err := service.SearchByHashtag(context.Background(), ana, " # "); !errors.Is(err, apperror.ErrInvalidHashtag) {
		t.Fatalf("expected invalid hashtag, got %v", err)
	}
}

func TestServicePrivateSnapsFollowGraph(t *testing.T) {
	graph := &staticGraph{followed: map[string][]string{"bo": {ana.Email}}}
	service, _ := newTestService(t, graph)
	ctx := context.Background()

	private, err := service.Create(ctx, ana, "secret #club", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	public, err := service.Create(ctx, ana, "open #club", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		name   string
		viewer Viewer
		want   []string
	}{
		{name: "author", viewer: ana, want: []string{public.ID, private.ID}},
		{name: "follower", viewer: bo, want: []string{public.ID, private.ID}},
		{name: "stranger", viewer: cy, want: []string{public.ID}},
		{name: "moderator", viewer: mod, want: []string{public.ID, private.ID}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			snaps, err := service.SearchByHashtag(ctx, testCase.viewer, "club")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := snapIDs(snaps); !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("got %v, want %v", got, testCase.want)
			}
		})
	}

	if _, err := service.Get(ctx, cy, private.ID); !errors.Is(err, apperror.ErrSnapNotFound) {
		t.Fatalf("stranger must not read a private snap, got %v", err)
	}
}

func TestFilterVisibleSkipsGraphWhenNotNeeded(t *testing.T) {
	graph := &staticGraph{err: errors.New("profile service down")}
	snaps := []Snap{
		{ID: "a", AuthorEmail: "ana@example.com"},
		{ID: "b", AuthorEmail: "bo@example.com", IsPrivate: true},
	}

	visible, err := FilterVisible(context.Background(), graph, bo, snaps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visible) != 2 || graph.calls != 0 {
		t.Fatalf("expected no graph lookups, got %d calls", graph.calls)
	}

	_, err = FilterVisible(context.Background(), graph, cy, snaps)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "snaps.visibility.follow_graph_failed" {
		t.Fatalf("expected follow graph failure code, got %v", err)
	}
}

func TestFilterVisibleKeepsUpstreamKind(t *testing.T) {
	graph := &staticGraph{err: apperror.ErrUpstream.WithCause(errors.New("connection refused"))}
	snaps := []Snap{{ID: "b", AuthorEmail: "bo@example.com", IsPrivate: true}}

	_, err := FilterVisible(context.Background(), graph, cy, snaps)
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("expected upstream error in chain, got %v", err)
	}
	if kind := apperror.KindOf(err); kind != apperror.KindUpstreamUnavailable {
		t.Fatalf("expected upstream kind, got %s", kind)
	}
}
