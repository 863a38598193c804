package handler

import (
	"net/http"

	"expenseflow/internal/middleware"
	"expenseflow/internal/service"
	"expenseflow/internal/workflow"
	"expenseflow/pkg/pagination"
	"expenseflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClaimHandler struct {
	claimService service.ClaimService
	auth         *middleware.Authenticator
}

func NewClaimHandler(claimService service.ClaimService, auth *middleware.Authenticator) *ClaimHandler {
	return &ClaimHandler{claimService: claimService, auth: auth}
}

func (h *ClaimHandler) RegisterRoutes(router *gin.RouterGroup) {
	claims := router.Group("/api/claims")
	claims.Use(h.auth.RequireRole())
	{
		claims.POST("", h.SubmitClaim)
		claims.GET("", h.ListClaims)
		claims.GET("/pending-approvals", h.auth.RequireRole(workflow.ApproverRoles()...), h.ListPendingApprovals)
		claims.GET("/:id", h.GetClaim)
		claims.POST("/:id/decisions", h.auth.RequireRole(workflow.ApproverRoles()...), h.Decide)
	}
}

// SubmitClaim files an expense claim and builds its approval workflow
// @Summary      Submit an expense claim
// @Description  Resolves the approval rule for the claim amount and category, then creates the approval entries
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.SubmitClaimRequest  true  "Claim"
// @Success      201      {object}  response.Response{data=service.ClaimResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/claims [post]
func (h *ClaimHandler) SubmitClaim(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req service.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	claim, err := h.claimService.SubmitClaim(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, claim))
}

// ListClaims lists the company's claims; employees only see their own
// @Summary      List claims
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        status    query     string  false  "PENDING, APPROVED or REJECTED"
// @Param        category  query     string  false  "Expense category"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/claims [get]
func (h *ClaimHandler) ListClaims(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	claims, total, err := h.claimService.ListClaims(c.Request.Context(), actor, service.ClaimFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, claims, p.Meta(total)))
}

// ListPendingApprovals lists claims waiting on the caller's decision
// @Summary      Claims awaiting my approval
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/claims/pending-approvals [get]
func (h *ClaimHandler) ListPendingApprovals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	claims, total, err := h.claimService.ListPendingApprovals(c.Request.Context(), actor, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, claims, p.Meta(total)))
}

// GetClaim returns one claim with its approval entries
// @Summary      Get claim
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Claim ID"
// @Success      200  {object}  response.Response{data=service.ClaimResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/claims/{id} [get]
func (h *ClaimHandler) GetClaim(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	claim, err := h.claimService.GetClaim(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, claim))
}

// Decide records the caller's approve or reject decision
// @Summary      Approve or reject a claim
// @Description  Applies the caller's decision to their pending entry and re-evaluates the claim
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Claim ID"
// @Param        request  body      service.DecisionRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=service.DecisionResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/claims/{id}/decisions [post]
func (h *ClaimHandler) Decide(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.claimService.Decide(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
