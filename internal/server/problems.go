package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/snapmsg/backend/internal/apperror"
	"go.uber.org/zap"
)

const (
	problemType           = "about:blank"
	problemContentType    = "application/problem+json"
	internalErrorDetail   = "An unexpected error occurred."
	titleBadRequest       = "Bad Request Error"
	titleSnapNotFound     = "Snap Not Found"
	titleProfileNotFound  = "Profile Not Found"
	titleForbidden        = "Forbidden"
	titleConflict         = "Conflict"
	titleUnauthorized     = "Unauthorized"
	titleBadGateway       = "Bad Gateway"
	titleInternalError    = "Internal Server Error"
	kindInternalErrorName = "internal"
)

type problemPayload struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	Kind     string `json:"kind"`
}

type problemMapping struct {
	status int
	title  string
}

var problemMappings = map[apperror.Kind]problemMapping{
	apperror.KindValidation:          {status: http.StatusBadRequest, title: titleBadRequest},
	apperror.KindNotFound:            {status: http.StatusNotFound, title: titleSnapNotFound},
	apperror.KindBlocked:             {status: http.StatusNotFound, title: titleSnapNotFound},
	apperror.KindForbidden:           {status: http.StatusForbidden, title: titleForbidden},
	apperror.KindAlreadyInState:      {status: http.StatusConflict, title: titleConflict},
	apperror.KindUnauthorized:        {status: http.StatusUnauthorized, title: titleUnauthorized},
	apperror.KindUpstreamUnavailable: {status: http.StatusBadGateway, title: titleBadGateway},
}

var problemTitles = map[string]string{
	apperror.ErrProfileNotFound.Code(): titleProfileNotFound,
}

// problemFor converts err into an RFC 7807 body. Unclassified errors never
// expose their message.
func problemFor(err error, instance string) problemPayload {
	appErr, ok := apperror.As(err)
	if ok {
		if mapping, known := problemMappings[appErr.Kind()]; known {
			if title, ok := problemTitles[appErr.Code()]; ok {
				mapping.title = title
			}
			return problemPayload{
				Type:     problemType,
				Title:    mapping.title,
				Status:   mapping.status,
				Detail:   appErr.Detail(),
				Instance: instance,
				Kind:     string(appErr.Kind()),
			}
		}
	}
	return problemPayload{
		Type:     problemType,
		Title:    titleInternalError,
		Status:   http.StatusInternalServerError,
		Detail:   internalErrorDetail,
		Instance: instance,
		Kind:     kindInternalErrorName,
	}
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	problem := problemFor(err, c.Request.URL.RequestURI())
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("kind", problem.Kind),
		zap.Int("status", problem.Status),
		zap.Error(err),
	}
	switch {
	case problem.Status >= http.StatusInternalServerError:
		h.logger.Error("request failed", fields...)
	default:
		h.logger.Debug("request rejected", fields...)
	}
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}
