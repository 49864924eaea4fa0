// Package handlers – error codes
//
// Codes are lowercase snake_case. Generic codes mirror the HTTP status; the
// few domain codes name failures a client is expected to handle specially.
//
//	{"statusCode": 409, "message": "email already registered",
//	 "success": false, "code": "email_taken", "request_id": "..."}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation     = "validation_failed"
	ErrCodeEmailTaken     = "email_taken"
	ErrCodeAlreadyUpvoted = "already_upvoted"
	ErrCodeNestedReply    = "nested_reply"
)

type errMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps service sentinels to responses. Anything else is a 500
// whose message is not exposed.
var errorTable = []errMapping{
	{services.ErrNameRequired, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidEmail, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrWeakPassword, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidKind, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrTitleRequired, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrDescriptionRequired, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrTitleTooLong, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrDescriptionTooLong, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidTargetKind, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidStatus, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrStatusUnsupported, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidURL, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrFieldTooLong, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidBucket, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidRange, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidVote, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrNestedReply, http.StatusBadRequest, ErrCodeNestedReply},
	{services.ErrLikeTargetMismatch, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrInvalidRefreshToken, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrNoToken, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrMalformedToken, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrNoPrincipal, http.StatusUnauthorized, ErrCodeUnauthorized},

	{services.ErrNotTargetOwner, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotServiceOwner, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotCommentAuthor, http.StatusForbidden, ErrCodeForbidden},

	{services.ErrServiceNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrTargetNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrCommentNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrUpvoteNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken},
	{services.ErrAlreadyUpvoted, http.StatusConflict, ErrCodeAlreadyUpvoted},
}

// classify returns the status and code for err; ok is false for unknown errors.
func classify(err error) (status int, code string, ok bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal, false
}

// failErr translates a service error into the error envelope.
func failErr(c *gin.Context, err error) {
	status, code, known := classify(err)
	if !known {
		_ = c.Error(err)
		fail(c, status, code, "internal server error")
		return
	}
	fail(c, status, code, err.Error())
}
