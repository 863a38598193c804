package handler

import (
	"net/http"

	"expenseflow/internal/middleware"
	"expenseflow/internal/model"
	"expenseflow/internal/service"
	"expenseflow/pkg/pagination"
	"expenseflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type RuleHandler struct {
	ruleService service.RuleService
	auth        *middleware.Authenticator
}

func NewRuleHandler(ruleService service.RuleService, auth *middleware.Authenticator) *RuleHandler {
	return &RuleHandler{ruleService: ruleService, auth: auth}
}

func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/api/approval-rules")
	rules.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}
}

// ListRules
// @Summary      List approval rules
// @Tags         approval-rules
// @Security     BearerAuth
// @Produce      json
// @Param        active  query     bool  false  "Only active rules"
// @Param        page    query     int   false  "Page number (default 1)"
// @Param        limit   query     int   false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/approval-rules [get]
func (h *RuleHandler) ListRules(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	rules, total, err := h.ruleService.ListRules(c.Request.Context(), actor, service.RuleFilter{
		ActiveOnly: c.Query("active") == "true",
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, rules, p.Meta(total)))
}

// CreateRule
// @Summary      Create approval rule
// @Tags         approval-rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.RuleRequest  true  "Rule"
// @Success      201      {object}  response.Response{data=service.RuleResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/approval-rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// GetRule
// @Summary      Get approval rule
// @Tags         approval-rules
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response{data=service.RuleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approval-rules/{id} [get]
func (h *RuleHandler) GetRule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.GetRule(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// UpdateRule replaces the rule definition. Claims already submitted keep the version they were built with.
// @Summary      Update approval rule
// @Tags         approval-rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Rule ID"
// @Param        request  body      service.RuleRequest  true  "Rule"
// @Success      200      {object}  response.Response{data=service.RuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/approval-rules/{id} [put]
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteRule
// @Summary      Delete approval rule
// @Tags         approval-rules
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/approval-rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteRule(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Approval rule deleted"}))
}
