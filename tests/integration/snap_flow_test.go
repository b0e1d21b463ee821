package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapmsg/backend/internal/auth"
	"github.com/snapmsg/backend/internal/database"
	"github.com/snapmsg/backend/internal/feed"
	"github.com/snapmsg/backend/internal/interactions"
	"github.com/snapmsg/backend/internal/profiles"
	"github.com/snapmsg/backend/internal/server"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	anaServiceToken      = "svc-token-ana"
	anaEmail             = "ana@example.com"
	bobEmail             = "bob@example.com"
	modEmail             = "mod@example.com"
	jsonContentType      = "application/json"
)

type snapBody struct {
	ID           string   `json:"id"`
	Message      string   `json:"message"`
	IsPrivate    bool     `json:"is_private"`
	Hashtags     []string `json:"hashtags"`
	Username     string   `json:"username"`
	LikesCount   int64    `json:"likes_count"`
	IsLiked      bool     `json:"is_liked"`
	IsShared     bool     `json:"is_shared"`
	IsVerified   bool     `json:"is_verified"`
	RetweetUser  string   `json:"retweet_user"`
	IsFavourited bool     `json:"is_favourited"`
}

func TestSnapLifecycleAcrossServices(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Token string `json:"token"`
		}
		if r.URL.Path != "/auth/get-email-from-token" || json.NewDecoder(r.Body).Decode(&request) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if request.Token != anaServiceToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", jsonContentType)
		_ = json.NewEncoder(w).Encode(map[string]string{"email": anaEmail})
	}))
	defer authServer.Close()

	profileServer := httptest.NewServer(newProfileMux())
	defer profileServer.Close()

	handler := buildHandler(testContext, authServer.URL, profileServer.URL)
	apiServer := httptest.NewServer(handler)
	defer apiServer.Close()

	issuer := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(sessionSigningSecret)})
	bobToken := mustIssue(testContext, issuer, auth.Identity{Email: bobEmail, Username: "bob"})
	modToken := mustIssue(testContext, issuer, auth.Identity{Email: modEmail, Username: "mod", Roles: []string{auth.RoleAdmin}})

	client := &apiClient{t: testContext, baseURL: apiServer.URL}

	var public, private snapBody
	client.call(http.MethodPost, "/snaps", anaServiceToken, map[string]any{"message": "Learning #Go today"}, http.StatusCreated, &envelope{Data: &public})
	client.call(http.MethodPost, "/snaps", anaServiceToken, map[string]any{"message": "secret plans", "is_private": true}, http.StatusCreated, &envelope{Data: &private})
	if public.Username != "ana" || len(public.Hashtags) != 1 || public.Hashtags[0] != "#go" {
		testContext.Fatalf("unexpected created snap %+v", public)
	}

	client.call(http.MethodPost, "/snaps/"+public.ID+"/like", bobToken, nil, http.StatusNoContent, nil)
	client.call(http.MethodPost, "/snaps/"+public.ID+"/share", bobToken, nil, http.StatusCreated, nil)

	var bobFeed []snapBody
	client.call(http.MethodGet, "/snaps/feed", bobToken, nil, http.StatusOK, &envelope{Data: &bobFeed})
	if len(bobFeed) != 2 {
		testContext.Fatalf("expected followed snaps in feed, got %+v", bobFeed)
	}
	byID := make(map[string]snapBody, len(bobFeed))
	for _, entry := range bobFeed {
		byID[entry.ID] = entry
	}
	if _, ok := byID[private.ID]; !ok {
		testContext.Fatalf("expected follower to read private snap, got %+v", bobFeed)
	}
	liked, ok := byID[public.ID]
	if !ok || !liked.IsLiked || !liked.IsShared || !liked.IsVerified || liked.LikesCount != 1 {
		testContext.Fatalf("unexpected annotations %+v", liked)
	}

	var strangerView []snapBody
	client.call(http.MethodGet, "/snaps/by-username/ana", modToken, nil, http.StatusOK, &envelope{Data: &strangerView})
	if len(strangerView) != 2 {
		testContext.Fatalf("expected moderator to read every snap, got %+v", strangerView)
	}

	var topics []feed.Topic
	client.call(http.MethodGet, "/snaps/trending", bobToken, nil, http.StatusOK, &envelope{Data: &topics})
	if len(topics) != 1 || topics[0].Hashtag != "#go" || topics[0].Score != 13 {
		testContext.Fatalf("unexpected trending topics %+v", topics)
	}

	client.call(http.MethodPost, "/snaps/"+public.ID+"/block", bobToken, nil, http.StatusForbidden, nil)
	client.call(http.MethodPost, "/snaps/"+public.ID+"/block", modToken, nil, http.StatusNoContent, nil)

	var found []snapBody
	client.call(http.MethodGet, "/snaps/search?hashtag=go", bobToken, nil, http.StatusOK, &envelope{Data: &found})
	if len(found) != 0 {
		testContext.Fatalf("expected blocked snap hidden from search, got %+v", found)
	}
	client.call(http.MethodGet, "/snaps/trending", bobToken, nil, http.StatusOK, &envelope{Data: &topics})
	if len(topics) != 0 {
		testContext.Fatalf("expected blocked snap excluded from trending, got %+v", topics)
	}

	client.call(http.MethodGet, "/snaps", "unknown-token", nil, http.StatusUnauthorized, nil)
}

type envelope struct {
	Data any `json:"data"`
}

type apiClient struct {
	t       *testing.T
	baseURL string
}

func (c *apiClient) call(method, path, token string, body any, wantStatus int, target any) {
	c.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			c.t.Fatalf("failed to encode body: %v", err)
		}
	}
	request, err := http.NewRequest(method, c.baseURL+path, &payload)
	if err != nil {
		c.t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode != wantStatus {
		c.t.Fatalf("%s %s: expected status %d, got %d", method, path, wantStatus, response.StatusCode)
	}
	if target != nil {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			c.t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

func newProfileMux() *http.ServeMux {
	directory := map[string]profiles.Profile{
		"ana": {Email: anaEmail, Username: "ana", Interests: []string{"go"}, IsVerified: true},
		"bob": {Email: bobEmail, Username: "bob"},
		"mod": {Email: modEmail, Username: "mod"},
	}
	follows := map[string][]string{"bob": {anaEmail}}

	writeJSON := func(w http.ResponseWriter, value any) {
		w.Header().Set("Content-Type", jsonContentType)
		_ = json.NewEncoder(w).Encode(value)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/profiles/by-username", func(w http.ResponseWriter, r *http.Request) {
		profile, ok := directory[r.URL.Query().Get("username")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, profile)
	})
	mux.HandleFunc("/profiles/by-email", func(w http.ResponseWriter, r *http.Request) {
		for _, profile := range directory {
			if profile.Email == r.URL.Query().Get("email") {
				writeJSON(w, profile)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/profiles/followed-emails", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, append([]string{}, follows[r.URL.Query().Get("username")]...))
	})
	mux.HandleFunc("/profiles/verified-usernames", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []string{"ana"})
	})
	return mux
}

func buildHandler(testContext *testing.T, authURL, profileURL string) http.Handler {
	testContext.Helper()
	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "integration.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	testContext.Cleanup(func() {
		_ = sqlDB.Close()
	})

	profileClient, err := profiles.NewClient(profiles.ClientConfig{BaseURL: profileURL, Timeout: 2 * time.Second})
	if err != nil {
		testContext.Fatalf("failed to construct profile client: %v", err)
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(sessionSigningSecret)})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	serviceResolver, err := auth.NewServiceResolver(auth.ServiceResolverConfig{BaseURL: authURL})
	if err != nil {
		testContext.Fatalf("failed to construct service resolver: %v", err)
	}

	store, err := snaps.NewStore(snaps.StoreConfig{Database: db, IDProvider: snaps.NewUUIDProvider()})
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}
	snapService, err := snaps.NewService(snaps.ServiceConfig{Store: store, Graph: profileClient})
	if err != nil {
		testContext.Fatalf("failed to construct snap service: %v", err)
	}
	ledger, err := interactions.NewLedger(interactions.LedgerConfig{Database: db, IDProvider: snaps.NewUUIDProvider()})
	if err != nil {
		testContext.Fatalf("failed to construct ledger: %v", err)
	}
	assembler, err := feed.NewAssembler(feed.AssemblerConfig{Snaps: store, Interactions: ledger, Graph: profileClient})
	if err != nil {
		testContext.Fatalf("failed to construct assembler: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:    auth.NewChainResolver(sessionValidator, serviceResolver),
		SnapService: snapService,
		Ledger:      ledger,
		Feed:        assembler,
		Profiles:    profileClient,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func mustIssue(testContext *testing.T, issuer *auth.SessionIssuer, identity auth.Identity) string {
	testContext.Helper()
	token, _, err := issuer.Issue(identity)
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	return token
}
