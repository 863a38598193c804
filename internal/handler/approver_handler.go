package handler

import (
	"net/http"

	"expenseflow/internal/middleware"
	"expenseflow/internal/model"
	"expenseflow/internal/service"
	"expenseflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApproverHandler struct {
	directoryService service.DirectoryService
	auth             *middleware.Authenticator
}

func NewApproverHandler(directoryService service.DirectoryService, auth *middleware.Authenticator) *ApproverHandler {
	return &ApproverHandler{directoryService: directoryService, auth: auth}
}

func (h *ApproverHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/approvers", h.auth.RequireRole(model.RoleAdmin), h.ListApprovers)
}

// ListApprovers returns the company members who may be named in approval rules
// @Summary      List eligible approvers
// @Tags         approval-rules
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.ApproverResponse}
// @Router       /api/approvers [get]
func (h *ApproverHandler) ListApprovers(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	approvers, err := h.directoryService.ListEligibleApprovers(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, approvers))
}
