// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oap-foundation/oaep-go/types"
)

// Error codes carried in error responses.
const (
	CodeInvalidMessage   = "invalid_message"
	CodeSessionNotFound  = "session_not_found"
	CodeInvalidState     = "invalid_state"
	CodeSessionExpired   = "session_expired"
	CodeResolutionFailed = "resolution_failed"
	CodeInternal         = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps the typed errors of the trust core onto HTTP statuses.
func statusFor(err error) (int, string) {
	var (
		invalidMessage *types.ErrInvalidMessage
		format         *types.ErrFormat
		validation     *types.ErrValidation
		notFound       *types.ErrSessionNotFound
		badState       *types.ErrInvalidState
		expired        *types.ErrSessionExpired
		resolution     *types.ErrResolution
		mismatch       *types.ErrDocumentMismatch
	)
	switch {
	case errors.As(err, &invalidMessage), errors.As(err, &format), errors.As(err, &validation):
		return http.StatusBadRequest, CodeInvalidMessage
	case errors.As(err, &notFound):
		return http.StatusNotFound, CodeSessionNotFound
	case errors.As(err, &badState):
		return http.StatusConflict, CodeInvalidState
	case errors.As(err, &expired):
		return http.StatusGone, CodeSessionExpired
	case errors.As(err, &resolution), errors.As(err, &mismatch):
		return http.StatusBadGateway, CodeResolutionFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	entry := s.log.WithError(err).WithField("op", op)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

// APIError is returned by Client when the peer answers with an error status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("httpapi: peer returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}
