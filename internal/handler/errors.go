package handler

import (
	"errors"
	"net/http"

	"expenseflow/internal/middleware"
	"expenseflow/internal/service"
	"expenseflow/internal/workflow"
	"expenseflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		verr *workflow.ValidationError
		oot  *workflow.OutOfTurnError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, err.Error(), gin.H{"field": verr.Field}))
	case errors.As(err, &oot):
		c.JSON(http.StatusConflict, response.ErrorWithDetails(http.StatusConflict, err.Error(), gin.H{
			"active_step": oot.ActiveStep,
			"entry_step":  oot.EntryStep,
		}))
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, workflow.ErrValidation):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.Is(err, workflow.ErrNotAnApprover), errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, workflow.ErrClaimAlreadyFinalized), errors.Is(err, workflow.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// currentActor reads the caller placed on the context by the auth middleware.
func currentActor(c *gin.Context) (service.Actor, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
		return service.Actor{}, false
	}
	return service.Actor{UserID: id.UserID, CompanyID: id.CompanyID, Role: id.Role}, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id: "+c.Param("id"))
		return uuid.Nil, false
	}
	return id, true
}
