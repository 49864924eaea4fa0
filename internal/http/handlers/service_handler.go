// Service directory HTTP handlers.
//
//   - GET         /services
//   - GET         /services/{serviceId}
//   - PATCH       /services/{serviceId}
//   - GET         /services/{serviceId}/summary
//   - GET         /services/{serviceId}/activity
//   - POST/DELETE /services/{serviceId}/upvote
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/services"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// ServiceList is the data of GET /services.
type ServiceList struct {
	Items      []domain.Service `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// ServiceDetail is a service profile plus the caller's upvote state.
type ServiceDetail struct {
	*domain.Service
	HasUpvoted bool `json:"hasUpvoted"`
}

// ServiceUpvoteResponse is the data of the upvote endpoints.
type ServiceUpvoteResponse struct {
	Upvotes    int  `json:"upvotes"`
	HasUpvoted bool `json:"hasUpvoted"`
}

// ListServices godoc
// @ID          listServices
// @Summary     List services
// @Description Most upvoted first. search matches name and description, category matches exactly.
// @Tags        Services
// @Produce     json
// @Param       search    query  string  false "Substring filter"
// @Param       category  query  string  false "Category filter"
// @Param       page      query  int     false "Page (1-based)"     minimum(1) default(1)
// @Param       limit     query  int     false "Page size"          minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.Envelope{data=handlers.ServiceList}
// @Router      /services [get]
func (h *Handlers) ListServices(c *gin.Context) {
	page, limit := pageParams(c)
	items, total, err := h.profiles.List(c.Request.Context(), trimmedQuery(c, "search"), trimmedQuery(c, "category"), page, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ServiceList{Items: items, Pagination: newPagination(page, limit, total)}, "")
}

// GetService godoc
// @ID          getService
// @Summary     Get a service profile
// @Description hasUpvoted reflects the authenticated user, false otherwise.
// @Tags        Services
// @Produce     json
// @Param       serviceId  path  string  true "Service ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.ServiceDetail}
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId} [get]
func (h *Handlers) GetService(c *gin.Context) {
	ctx := c.Request.Context()
	svc, err := h.profiles.Get(ctx, c.Param("serviceId"))
	if err != nil {
		failErr(c, err)
		return
	}
	detail := ServiceDetail{Service: svc}
	if uid := viewerID(c); uid != "" {
		if detail.HasUpvoted, err = h.votes.HasUpvotedService(ctx, uid, svc.ID); err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, http.StatusOK, detail, "")
}

// UpdateService godoc
// @ID          updateService
// @Summary     Update the caller's own profile
// @Description Omitted fields are kept; an empty website or logoUrl clears it.
// @Tags        Services
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       serviceId  path  string                  true "Service ID"  format(uuid)
// @Param       body       body  services.ProfileUpdate  true "Fields to change"
// @Success     200  {object}  handlers.Envelope{data=domain.Service}
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId} [patch]
func (h *Handlers) UpdateService(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var req services.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	svc, err := h.profiles.UpdateProfile(c.Request.Context(), p.ID, c.Param("serviceId"), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, svc, "profile updated")
}

// ServiceSummary godoc
// @ID          serviceSummary
// @Summary     Aggregated counters of a service
// @Tags        Services
// @Produce     json
// @Param       serviceId  path  string  true "Service ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=services.ServiceSummary}
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId}/summary [get]
func (h *Handlers) ServiceSummary(c *gin.Context) {
	sum, err := h.reports.Summary(c.Request.Context(), c.Param("serviceId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum, "")
}

// ServiceActivity godoc
// @ID          serviceActivity
// @Summary     Targets created per day or week
// @Description Zero-filled, oldest bucket first. Weeks start on Monday.
// @Tags        Services
// @Produce     json
// @Param       serviceId  path   string  true  "Service ID"  format(uuid)
// @Param       days       query  int     false "Window size" minimum(1) maximum(365) default(30)
// @Param       bucket     query  string  false "day or week" Enums(day, week) default(day)
// @Success     200  {object}  handlers.Envelope{data=[]services.ActivityPoint}
// @Failure     400  {object}  handlers.ErrorResponse "Invalid range or bucket"
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Router      /services/{serviceId}/activity [get]
func (h *Handlers) ServiceActivity(c *gin.Context) {
	days := utils.AtoiDefault(c.Query("days"), 30)
	bucket := c.DefaultQuery("bucket", services.BucketDay)
	points, err := h.reports.Activity(c.Request.Context(), c.Param("serviceId"), days, bucket)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, points, "")
}

// UpvoteService godoc
// @ID          upvoteService
// @Summary     Upvote a service
// @Tags        Services
// @Produce     json
// @Security    BearerAuth
// @Param       serviceId  path  string  true "Service ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.ServiceUpvoteResponse}
// @Failure     403  {object}  handlers.ErrorResponse "Only users"
// @Failure     404  {object}  handlers.ErrorResponse "Service not found"
// @Failure     409  {object}  handlers.ErrorResponse "Already upvoted"
// @Router      /services/{serviceId}/upvote [post]
func (h *Handlers) UpvoteService(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	n, err := h.votes.UpvoteService(c.Request.Context(), p.ID, c.Param("serviceId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ServiceUpvoteResponse{Upvotes: n, HasUpvoted: true}, "service upvoted")
}

// RemoveServiceUpvote godoc
// @ID          removeServiceUpvote
// @Summary     Withdraw a service upvote
// @Tags        Services
// @Produce     json
// @Security    BearerAuth
// @Param       serviceId  path  string  true "Service ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.ServiceUpvoteResponse}
// @Failure     404  {object}  handlers.ErrorResponse "Not upvoted"
// @Router      /services/{serviceId}/upvote [delete]
func (h *Handlers) RemoveServiceUpvote(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	n, err := h.votes.RemoveServiceUpvote(c.Request.Context(), p.ID, c.Param("serviceId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ServiceUpvoteResponse{Upvotes: n, HasUpvoted: false}, "service upvote removed")
}
