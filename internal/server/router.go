package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/snapmsg/backend/internal/auth"
	"github.com/snapmsg/backend/internal/feed"
	"github.com/snapmsg/backend/internal/interactions"
	"github.com/snapmsg/backend/internal/profiles"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
)

const viewerContextKey = "snapmsg_viewer"

var (
	errMissingResolver     = errors.New("auth resolver dependency required")
	errMissingSnapService  = errors.New("snap service dependency required")
	errMissingLedger       = errors.New("interaction ledger dependency required")
	errMissingFeed         = errors.New("feed assembler dependency required")
	errMissingProfiles     = errors.New("profile directory dependency required")
	errMissingViewerInCtxt = errors.New("viewer missing from request context")
)

type ProfileDirectory interface {
	ByUsername(ctx context.Context, username string) (profiles.Profile, error)
	ByEmail(ctx context.Context, email string) (profiles.Profile, error)
}

type Dependencies struct {
	Resolver     auth.Resolver
	SnapService  *snaps.Service
	Ledger       *interactions.Ledger
	Feed         *feed.Assembler
	Profiles     ProfileDirectory
	AdminEmails  []string
	AllowOrigins []string
	Logger       *zap.Logger
}

// NewHTTPHandler wires the routes of the snap API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.SnapService == nil {
		return nil, errMissingSnapService
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Feed == nil {
		return nil, errMissingFeed
	}
	if deps.Profiles == nil {
		return nil, errMissingProfiles
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	admins := make(map[string]struct{}, len(deps.AdminEmails))
	for _, email := range deps.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowOrigins...))

	handler := &httpHandler{
		resolver:    deps.Resolver,
		snapService: deps.SnapService,
		ledger:      deps.Ledger,
		feed:        deps.Feed,
		profiles:    deps.Profiles,
		admins:      admins,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/snaps")
	protected.Use(handler.authorizeRequest)
	protected.POST("", handler.handleCreateSnap)
	protected.GET("", handler.handleListOwnSnaps)
	protected.GET("/all", handler.handleListAllSnaps)
	protected.GET("/feed", handler.handleFeed)
	protected.GET("/feed/following", handler.handleFollowingFeed)
	protected.GET("/trending", handler.handleTrending)
	protected.GET("/search", handler.handleSearch)
	protected.GET("/by-username/:username", handler.handleListByUsername)
	protected.GET("/liked", handler.handleListLiked)
	protected.GET("/favourites", handler.handleListFavourites)
	protected.GET("/shared", handler.handleListShared)
	protected.GET("/:id", handler.handleGetSnap)
	protected.PUT("/:id", handler.handleUpdateSnap)
	protected.DELETE("/:id", handler.handleDeleteSnap)
	protected.POST("/:id/like", handler.handleLike)
	protected.DELETE("/:id/like", handler.handleUnlike)
	protected.POST("/:id/favourite", handler.handleFavourite)
	protected.DELETE("/:id/favourite", handler.handleUnfavourite)
	protected.POST("/:id/share", handler.handleShare)
	protected.POST("/:id/block", handler.handleBlock)
	protected.POST("/:id/unblock", handler.handleUnblock)

	return router, nil
}

type httpHandler struct {
	resolver    auth.Resolver
	snapService *snaps.Service
	ledger      *interactions.Ledger
	feed        *feed.Assembler
	profiles    ProfileDirectory
	admins      map[string]struct{}
	logger      *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", auth.HeaderToken},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)))
	}
}

func viewerFrom(c *gin.Context) (snaps.Viewer, error) {
	value, ok := c.Get(viewerContextKey)
	if !ok {
		return snaps.Viewer{}, errMissingViewerInCtxt
	}
	viewer, ok := value.(snaps.Viewer)
	if !ok {
		return snaps.Viewer{}, errMissingViewerInCtxt
	}
	return viewer, nil
}
