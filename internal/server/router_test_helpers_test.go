package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapmsg/backend/internal/apperror"
	"github.com/snapmsg/backend/internal/auth"
	"github.com/snapmsg/backend/internal/database"
	"github.com/snapmsg/backend/internal/feed"
	"github.com/snapmsg/backend/internal/interactions"
	"github.com/snapmsg/backend/internal/profiles"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
)

type fakeDirectory struct {
	mu         sync.Mutex
	byUsername map[string]profiles.Profile
	follows    map[string][]string
	verified   []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byUsername: make(map[string]profiles.Profile),
		follows:    make(map[string][]string),
	}
}

func (d *fakeDirectory) add(profile profiles.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byUsername[profile.Username] = profile
}

func (d *fakeDirectory) ByUsername(_ context.Context, username string) (profiles.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	profile, ok := d.byUsername[username]
	if !ok {
		return profiles.Profile{}, apperror.ErrProfileNotFound
	}
	return profile, nil
}

func (d *fakeDirectory) ByEmail(_ context.Context, email string) (profiles.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, profile := range d.byUsername {
		if profile.Email == email {
			return profile, nil
		}
	}
	return profiles.Profile{}, apperror.ErrProfileNotFound
}

func (d *fakeDirectory) FollowedEmails(_ context.Context, _ string, username string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.follows[username]...), nil
}

func (d *fakeDirectory) VerifiedUsernames(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.verified...), nil
}

// tokenResolver maps a token directly to the email of a registered profile.
type tokenResolver struct {
	directory *fakeDirectory
}

func (r tokenResolver) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	profile, err := r.directory.ByEmail(ctx, token)
	if err != nil {
		return auth.Identity{}, apperror.ErrUnauthorized.WithCause(err)
	}
	return auth.Identity{Email: profile.Email, Token: token}, nil
}

type snapIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (s *snapIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s-%03d", s.prefix, s.next), nil
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type routerHarness struct {
	t         *testing.T
	handler   http.Handler
	directory *fakeDirectory
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "router.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	clock := &steppingClock{now: time.Now().UTC().Add(-time.Hour)}
	directory := newFakeDirectory()
	for _, username := range []string{"ana", "bob", "mod"} {
		directory.add(profiles.Profile{Email: username + "@example.com", Username: username})
	}

	store, err := snaps.NewStore(snaps.StoreConfig{Database: db, Clock: clock.Now, IDProvider: &snapIDs{prefix: "snap"}})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	service, err := snaps.NewService(snaps.ServiceConfig{Store: store, Graph: directory})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	ledger, err := interactions.NewLedger(interactions.LedgerConfig{Database: db, Clock: clock.Now, IDProvider: &snapIDs{prefix: "share"}})
	if err != nil {
		t.Fatalf("failed to construct ledger: %v", err)
	}
	assembler, err := feed.NewAssembler(feed.AssemblerConfig{Snaps: store, Interactions: ledger, Graph: directory})
	if err != nil {
		t.Fatalf("failed to construct assembler: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Resolver:    tokenResolver{directory: directory},
		SnapService: service,
		Ledger:      ledger,
		Feed:        assembler,
		Profiles:    directory,
		AdminEmails: []string{"MOD@example.com"},
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &routerHarness{t: t, handler: handler, directory: directory}
}

type apiResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

func (r apiResponse) decode(t *testing.T, target any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, target); err != nil {
		t.Fatalf("failed to decode body %s: %v", string(r.Body), err)
	}
}

func (h *routerHarness) do(method, path, token, body string) apiResponse {
	h.t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set(auth.HeaderToken, token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return apiResponse{Status: recorder.Code, Headers: recorder.Header(), Body: recorder.Body.Bytes()}
}

func (h *routerHarness) createSnap(token, message string, private bool) snapPayload {
	h.t.Helper()
	body, err := json.Marshal(createSnapRequest{Message: message, IsPrivate: private})
	if err != nil {
		h.t.Fatalf("failed to encode request: %v", err)
	}
	response := h.do(http.MethodPost, "/snaps", token, string(body))
	if response.Status != http.StatusCreated {
		h.t.Fatalf("expected 201, got %d: %s", response.Status, string(response.Body))
	}
	var envelope struct {
		Data snapPayload `json:"data"`
	}
	response.decode(h.t, &envelope)
	return envelope.Data
}

func (h *routerHarness) listSnaps(path, token string) []snapPayload {
	h.t.Helper()
	response := h.do(http.MethodGet, path, token, "")
	if response.Status != http.StatusOK {
		h.t.Fatalf("expected 200 for %s, got %d: %s", path, response.Status, string(response.Body))
	}
	var envelope struct {
		Data []snapPayload `json:"data"`
	}
	response.decode(h.t, &envelope)
	return envelope.Data
}

func payloadIDs(payloads []snapPayload) []string {
	ids := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		ids = append(ids, payload.ID)
	}
	return ids
}
