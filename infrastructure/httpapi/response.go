// Package httpapi exposes the read API and ops endpoints over gin.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// Error codes returned in ErrorEnvelope.
const (
	CodeNotScored    = "not_scored"
	CodeUnranked     = "unranked"
	CodeInvalidID    = "invalid_id"
	CodeInvalidK     = "invalid_k"
	CodeInternal     = "internal"
	CodeUnhealthy    = "unhealthy"
	CodeInvalidEvent = "invalid_event"
	CodeUnavailable  = "unavailable"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondLookupError maps a read failure to a status. Not-found outcomes are
// expected for unscored answers and unranked users and never become 500s.
func respondLookupError(c *gin.Context, notFoundCode string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotRanked):
		respondError(c, http.StatusNotFound, CodeUnranked, err)
	case errors.Is(err, domain.ErrNotFound):
		respondError(c, http.StatusNotFound, notFoundCode, err)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, CodeInternal, errors.New("internal error"))
	}
}
