// Comment HTTP handlers.
//
//   - GET/POST     /{feedbacks|issues|bugs}/{targetId}/comments
//   - PATCH/DELETE /comments/{commentId}
//   - POST         /comments/{commentId}/replies
//   - POST         /comments/{commentId}/like
//   - POST         /replies/{replyId}/like
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// CommentRequest is the payload of comment creation, replies and edits.
type CommentRequest struct {
	Message string `json:"message" example:"Same here on Android."`
}

// CommentList is the data of GET /{kind}s/{targetId}/comments.
type CommentList struct {
	Items      []domain.Comment `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// ListComments godoc
// @ID          listComments
// @Summary     List top-level comments of a target with their replies
// @Description Newest first. hasLiked reflects the authenticated user, false otherwise.
// @Tags        Comments
// @Produce     json
// @Param       targetId  path   string  true  "Target ID"  format(uuid)
// @Param       page      query  int     false "Page (1-based)"  minimum(1) default(1)
// @Param       limit     query  int     false "Page size"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.Envelope{data=handlers.CommentList}
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId}/comments [get]
func (h *Handlers) ListComments(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		items, total, err := h.comments.ListComments(c.Request.Context(), viewerID(c), c.Param("targetId"), kind, page, limit)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, CommentList{Items: items, Pagination: newPagination(page, limit, total)}, "")
	}
}

// AddComment godoc
// @ID          addComment
// @Summary     Comment on a target
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Param       body      body  handlers.CommentRequest true "Comment"
// @Success     201  {object}  handlers.Envelope{data=domain.Comment}
// @Failure     400  {object}  handlers.ErrorResponse "Empty or too long"
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId}/comments [post]
func (h *Handlers) AddComment(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		var req CommentRequest
		if !bindJSON(c, &req) {
			return
		}
		cm, err := h.comments.AddComment(c.Request.Context(), p.ID, c.Param("targetId"), kind, req.Message)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusCreated, cm, "comment added")
	}
}

// UpdateComment godoc
// @ID          updateComment
// @Summary     Edit one's own comment or reply
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       commentId  path  string  true  "Comment ID"  format(uuid)
// @Param       body       body  handlers.CommentRequest true "New message"
// @Success     200  {object}  handlers.Envelope{data=domain.Comment}
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Comment not found"
// @Router      /comments/{commentId} [patch]
func (h *Handlers) UpdateComment(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var req CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	cm, err := h.comments.UpdateComment(c.Request.Context(), p.ID, c.Param("commentId"), req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm, "comment updated")
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete one's own comment or reply
// @Description Deleting a comment removes its replies and their likes.
// @Tags        Comments
// @Produce     json
// @Security    BearerAuth
// @Param       commentId  path  string  true  "Comment ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Comment not found"
// @Router      /comments/{commentId} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	if err := h.comments.DeleteComment(c.Request.Context(), p.ID, c.Param("commentId")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, nil, "comment deleted")
}

// Reply godoc
// @ID          replyComment
// @Summary     Reply to a comment
// @Description Replies are one level deep; replying to a reply is rejected.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       commentId  path  string  true  "Comment ID"  format(uuid)
// @Param       body       body  handlers.CommentRequest true "Reply"
// @Success     201  {object}  handlers.Envelope{data=domain.Comment}
// @Failure     400  {object}  handlers.ErrorResponse "Nested reply"
// @Failure     404  {object}  handlers.ErrorResponse "Comment not found"
// @Router      /comments/{commentId}/replies [post]
func (h *Handlers) Reply(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var req CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	cm, err := h.comments.Reply(c.Request.Context(), p.ID, c.Param("commentId"), req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cm, "reply added")
}

// ToggleLike godoc
// @ID          toggleLike
// @Summary     Like or unlike a comment or reply
// @Description Mounted at /comments/{commentId}/like and /replies/{replyId}/like. The id must match the route's shape.
// @Tags        Comments
// @Produce     json
// @Security    BearerAuth
// @Param       commentId  path  string  true  "Comment ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=services.LikeResult}
// @Failure     400  {object}  handlers.ErrorResponse "Reply liked as comment or the reverse"
// @Failure     404  {object}  handlers.ErrorResponse "Comment not found"
// @Router      /comments/{commentId}/like [post]
func (h *Handlers) ToggleLike(target domain.LikeTarget, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		res, err := h.comments.ToggleLike(c.Request.Context(), p.ID, c.Param(param), target)
		if err != nil {
			failErr(c, err)
			return
		}
		msg := "unliked"
		if res.HasLiked {
			msg = "liked"
		}
		ok(c, http.StatusOK, res, msg)
	}
}
