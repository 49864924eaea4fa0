// Package handlers provides the HTTP handlers of the public API.
//
// Every response uses one envelope. Success:
//
//	HTTP/1.1 200 OK
//	{"statusCode": 200, "data": {...}, "message": "ok", "success": true}
//
// Failure:
//
//	HTTP/1.1 404 Not Found
//	{"statusCode": 404, "message": "target not found", "success": false,
//	 "code": "not_found", "request_id": "123e4567-e89b-12d3-a456-426614174000"}
//
// Clients branch on `code`; `message` is safe to display.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/http/middleware"
)

// Envelope is the success body of every endpoint.
type Envelope struct {
	StatusCode int    `json:"statusCode" example:"200"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message" example:"ok"`
	Success    bool   `json:"success" example:"true"`
}

// ErrorResponse is the failure body of every endpoint.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode" example:"404"`
	Message    string `json:"message" example:"target not found"`
	Success    bool   `json:"success" example:"false"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		StatusCode: status,
		Message:    msg,
		Success:    false,
		Code:       code,
		RequestID:  middleware.RequestIDFrom(c),
	})
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope.
func ok(c *gin.Context, status int, data any, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.JSON(status, Envelope{StatusCode: status, Data: data, Message: msg, Success: true})
}

// Pagination carries page metadata of list responses.
type Pagination struct {
	Page       int   `json:"page" example:"1"`
	Limit      int   `json:"limit" example:"10"`
	Total      int64 `json:"total" example:"42"`
	TotalPages int   `json:"totalPages" example:"5"`
	HasNext    bool  `json:"hasNext" example:"true"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages, HasNext: page < pages}
}
