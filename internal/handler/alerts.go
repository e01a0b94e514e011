package handlers

import (
	"net/http"

	"Resilix/internal/alerting"
	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleCreateAlert(c *gin.Context) {
	var req alerting.CreateAlertInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AbortWithError(c, apperrors.Rejected(map[string][]string{"non_field_errors": {err.Error()}}))
		return
	}
	alert, err := h.alerts.Create(c.Request.Context(), req)
	if err != nil {
		response.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (h *Handlers) handleListAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context())
	if err != nil {
		response.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}
