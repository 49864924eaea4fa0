package middleware

import "github.com/gin-gonic/gin"

// Machine codes written by middleware. They share the vocabulary of the
// handlers package.
const (
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeRateLimited       = "too_many_requests"
	codeBadIdempotencyKey = "bad_idempotency_key"
	codeInternal          = "internal_error"
)

// abortJSON stops the chain with the standard error envelope:
//
//	{"statusCode": 401, "success": false, "message": "no token",
//	 "code": "unauthorized", "request_id": "..."}
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"statusCode": status,
		"success":    false,
		"message":    msg,
		"code":       code,
		"request_id": RequestIDFrom(c),
	})
}
