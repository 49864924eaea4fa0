// Target HTTP handlers.
//
// Feedback, issues and bugs share one set of handlers parametrized by kind;
// the router mounts them once per collection:
//   - POST/GET    /services/{serviceId}/{feedbacks|issues|bugs}
//   - GET         /services/{serviceId}/{feedbacks|issues|bugs}/similar
//   - GET         /users/me/targets
//   - GET/PATCH/DELETE /{feedbacks|issues|bugs}/{targetId}
//   - POST        /{feedbacks|issues|bugs}/{targetId}/{upvote|downvote}
//   - GET         /{feedbacks|issues|bugs}/{targetId}/vote
//   - PATCH       /{issues|bugs}/{targetId}/status
//
// Creation honors Idempotency-Key: a retry with the same key answers 200 with
// the target created first and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/services"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// CreateTargetRequest is the payload of target creation.
type CreateTargetRequest struct {
	Title       string `json:"title" example:"Checkout button does nothing"`
	Description string `json:"description" example:"Clicking Pay on mobile Safari has no effect."`
}

// UpdateTargetRequest holds the editable fields of a target; omitted fields are kept.
type UpdateTargetRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateStatusRequest is the payload of PATCH /{issues|bugs}/{targetId}/status.
type UpdateStatusRequest struct {
	Status domain.TargetStatus `json:"status" example:"in-progress"`
}

// TargetList is the data of the target listings.
type TargetList struct {
	Items      []domain.Target `json:"items"`
	Pagination Pagination      `json:"pagination"`
}

// VoteState is the data of GET /{kind}s/{targetId}/vote.
type VoteState struct {
	VoteType *domain.VoteDirection `json:"voteType"`
}

// CreateTarget godoc
// @ID          createTarget
// @Summary     Open a feedback, issue or bug
// @Description Mounted at /services/{serviceId}/feedbacks, /issues and /bugs. A retry with the same Idempotency-Key replays the first result with 200.
// @Tags        Targets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       serviceId        path    string  true  "Service ID"  format(uuid)
// @Param       Idempotency-Key  header  string  false "Deduplicates retries"  example(9a7c1e4e-create-1)
// @Param       body             body    handlers.CreateTargetRequest true "Target"
// @Success     201  {object}  handlers.Envelope{data=domain.Target}
// @Success     200  {object}  handlers.Envelope{data=domain.Target} "Replayed"
// @Header      200  {string}  Idempotency-Replayed "true"
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse "Only users"
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId}/issues [post]
func (h *Handlers) CreateTarget(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		var req CreateTargetRequest
		if !bindJSON(c, &req) {
			return
		}
		key, _ := middleware.GetIdempotencyKey(c)
		t, replayed, err := h.targets.Create(c.Request.Context(), services.NewTarget{
			Kind:           kind,
			ServiceID:      c.Param("serviceId"),
			UserID:         p.ID,
			Title:          req.Title,
			Description:    req.Description,
			IdempotencyKey: key,
		})
		if err != nil {
			failErr(c, err)
			return
		}
		if replayed {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, t, string(kind)+" already created")
			return
		}
		ok(c, http.StatusCreated, t, string(kind)+" created")
	}
}

// ListServiceTargets godoc
// @ID          listServiceTargets
// @Summary     List a service's feedback, issues or bugs
// @Description Mounted at /services/{serviceId}/feedbacks, /issues and /bugs. Supports a weak ETag via If-None-Match.
// @Tags        Targets
// @Produce     json
// @Param       serviceId      path    string  true  "Service ID"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       search         query   string  false "Substring of title or description"
// @Param       status         query   string  false "Issue and bug status"  Enums(open, in-progress, resolved, closed)
// @Param       sort           query   string  false "Order"  Enums(top, newest, oldest) default(top)
// @Param       page           query   int     false "Page (1-based)"  minimum(1) default(1)
// @Param       limit          query   int     false "Page size"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.Envelope{data=handlers.TargetList}
// @Header      200  {string}  ETag "Weak ETag of the result"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId}/issues [get]
func (h *Handlers) ListServiceTargets(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := listQuery(c)
		q.ServiceID = c.Param("serviceId")
		q.Kind = kind
		h.listTargets(c, q)
	}
}

// ListMyTargets godoc
// @ID          listMyTargets
// @Summary     List the caller's targets across services
// @Tags        Targets
// @Produce     json
// @Security    BearerAuth
// @Param       kind    query  string  false "Kind filter"  Enums(feedback, issue, bug)
// @Param       status  query  string  false "Status filter"
// @Param       search  query  string  false "Substring of title or description"
// @Param       sort    query  string  false "Order"  Enums(top, newest, oldest) default(top)
// @Param       page    query  int     false "Page (1-based)"  minimum(1) default(1)
// @Param       limit   query  int     false "Page size"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.Envelope{data=handlers.TargetList}
// @Failure     400  {object}  handlers.ErrorResponse "Invalid kind or status"
// @Router      /users/me/targets [get]
func (h *Handlers) ListMyTargets(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	q := listQuery(c)
	q.OpenedBy = p.ID
	q.Kind = domain.TargetKind(trimmedQuery(c, "kind"))
	h.listTargets(c, q)
}

func listQuery(c *gin.Context) services.TargetQuery {
	page, limit := pageParams(c)
	return services.TargetQuery{
		Status: domain.TargetStatus(trimmedQuery(c, "status")),
		Search: trimmedQuery(c, "search"),
		Sort:   trimmedQuery(c, "sort"),
		Page:   page,
		Limit:  limit,
	}
}

func (h *Handlers) listTargets(c *gin.Context, q services.TargetQuery) {
	ctx := c.Request.Context()
	q = q.Normalize()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.targets.Stats(ctx, q); err == nil {
		etag := listETag(q, count, maxTS)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, q, err := h.targets.List(ctx, q)
	if err != nil {
		c.Writer.Header().Del("ETag")
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TargetList{Items: items, Pagination: newPagination(q.Page, q.Limit, total)}, "")
}

// listETag derives a weak validator from the query, the match count and the
// latest update among the matches.
func listETag(q services.TargetQuery, count int64, maxTS *time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d|%d", q.ServiceID, q.OpenedBy, q.Kind, q.Status, q.Search, q.Sort, q.Page, q.Limit)
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"targets:%x:%d:%d"`, h.Sum64(), count, ts)
}

// SimilarTargets godoc
// @ID          similarTargets
// @Summary     Suggest existing targets similar to a draft
// @Description Mounted at /services/{serviceId}/{feedbacks|issues|bugs}/similar. Scores are Jaccard similarities of folded tokens.
// @Tags        Targets
// @Produce     json
// @Param       serviceId  path   string  true  "Service ID"  format(uuid)
// @Param       q          query  string  true  "Draft title and description"
// @Param       k          query  int     false "Maximum results"  minimum(1) maximum(20) default(5)
// @Success     200  {object}  handlers.Envelope{data=[]services.SimilarTarget}
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId}/issues/similar [get]
func (h *Handlers) SimilarTargets(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := utils.AtoiDefault(c.Query("k"), 5)
		res, err := h.targets.Similar(c.Request.Context(), c.Param("serviceId"), kind, trimmedQuery(c, "q"), k)
		if err != nil {
			failErr(c, err)
			return
		}
		if res == nil {
			res = []services.SimilarTarget{}
		}
		ok(c, http.StatusOK, res, "")
	}
}

// GetTarget godoc
// @ID          getTarget
// @Summary     Get a feedback, issue or bug
// @Description Mounted at /feedbacks/{targetId}, /issues/{targetId} and /bugs/{targetId}. An id of another kind is not found.
// @Tags        Targets
// @Produce     json
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=domain.Target}
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId} [get]
func (h *Handlers) GetTarget(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := h.targets.Get(c.Request.Context(), c.Param("targetId"), kind)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, t, "")
	}
}

// UpdateTarget godoc
// @ID          updateTarget
// @Summary     Edit the title or description of one's own target
// @Tags        Targets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Param       body      body  handlers.UpdateTargetRequest true "Fields to change"
// @Success     200  {object}  handlers.Envelope{data=domain.Target}
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId} [patch]
func (h *Handlers) UpdateTarget(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		var req UpdateTargetRequest
		if !bindJSON(c, &req) {
			return
		}
		t, err := h.targets.Update(c.Request.Context(), p.ID, c.Param("targetId"), kind, req.Title, req.Description)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, t, string(kind)+" updated")
	}
}

// DeleteTarget godoc
// @ID          deleteTarget
// @Summary     Delete one's own target
// @Description Removes its votes, comments, replies and likes too.
// @Tags        Targets
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope
// @Failure     403  {object}  handlers.ErrorResponse "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId} [delete]
func (h *Handlers) DeleteTarget(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		if err := h.targets.Delete(c.Request.Context(), p.ID, c.Param("targetId"), kind); err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, nil, string(kind)+" deleted")
	}
}

// Vote godoc
// @ID          voteTarget
// @Summary     Upvote or downvote a target
// @Description Mounted at /{kind}s/{targetId}/upvote and /downvote. Repeating the current vote retracts it; the opposite vote switches it.
// @Tags        Votes
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=services.VoteResult}
// @Failure     403  {object}  handlers.ErrorResponse "Only users"
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId}/upvote [post]
func (h *Handlers) Vote(kind domain.TargetKind, dir domain.VoteDirection) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		res, err := h.votes.CastVote(c.Request.Context(), p.ID, c.Param("targetId"), kind, dir)
		if err != nil {
			failErr(c, err)
			return
		}
		msg := "vote removed"
		if res.VoteType != nil {
			msg = string(*res.VoteType) + " recorded"
		}
		ok(c, http.StatusOK, res, msg)
	}
}

// GetVote godoc
// @ID          getVote
// @Summary     The caller's vote on a target
// @Description voteType is null when the caller has not voted.
// @Tags        Votes
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.VoteState}
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId}/vote [get]
func (h *Handlers) GetVote(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		dir, err := h.votes.GetVote(c.Request.Context(), p.ID, c.Param("targetId"), kind)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, VoteState{VoteType: dir}, "")
	}
}

// UpdateStatus godoc
// @ID          updateTargetStatus
// @Summary     Move an issue or bug through its lifecycle
// @Description Only the service the target was opened against may change it.
// @Tags        Targets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       targetId  path  string  true  "Target ID"  format(uuid)
// @Param       body      body  handlers.UpdateStatusRequest true "New status"
// @Success     200  {object}  handlers.Envelope{data=domain.Target}
// @Failure     400  {object}  handlers.ErrorResponse "Invalid status"
// @Failure     403  {object}  handlers.ErrorResponse "Not the owning service"
// @Failure     404  {object}  handlers.ErrorResponse "Target not found"
// @Router      /issues/{targetId}/status [patch]
func (h *Handlers) UpdateStatus(kind domain.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := principal(c)
		if !found {
			return
		}
		var req UpdateStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		t, err := h.targets.UpdateStatus(c.Request.Context(), p.ID, c.Param("targetId"), kind, req.Status)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, t, "status updated")
	}
}
