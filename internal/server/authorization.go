package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/snapmsg/backend/internal/apperror"
	"github.com/snapmsg/backend/internal/auth"
	"github.com/snapmsg/backend/internal/snaps"
	"go.uber.org/zap"
)

const opAuthorize = "authorize"

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		h.respondError(c, opAuthorize, apperror.ErrUnauthorized)
		return
	}

	identity, err := h.resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		h.logTokenFailure(err)
		h.respondError(c, opAuthorize, err)
		return
	}

	if strings.TrimSpace(identity.Username) == "" {
		profile, err := h.profiles.ByEmail(c.Request.Context(), identity.Email)
		if err != nil {
			h.logger.Warn("username lookup failed", zap.String("email", identity.Email), zap.Error(err))
			if errors.Is(err, apperror.ErrProfileNotFound) {
				err = apperror.ErrUnauthorized.WithCause(err)
			}
			h.respondError(c, opAuthorize, err)
			return
		}
		identity.Username = profile.Username
	}

	_, listedAdmin := h.admins[strings.ToLower(identity.Email)]
	c.Set(viewerContextKey, snaps.Viewer{
		Email:     identity.Email,
		Username:  identity.Username,
		Token:     identity.Token,
		Moderator: listedAdmin || identity.HasRole(auth.RoleAdmin),
	})
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredSessionToken), errors.Is(err, jwt.ErrTokenExpired):
		h.logger.Info("token validation failed", zap.Error(err))
	case errors.Is(err, apperror.ErrUpstream):
		h.logger.Error("token resolution unavailable", zap.Error(err))
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
	}
}
