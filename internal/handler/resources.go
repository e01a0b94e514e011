package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"Resilix/internal/geo"
	"Resilix/internal/models"
	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type FeedbackForm struct {
	Description        string    `json:"description" binding:"required"`
	DateTimeOfFeedback time.Time `json:"date_time_of_feedback" binding:"required"`
	Alert              uint      `json:"alert" binding:"required"`
}

func (h *Handlers) handleListAlertChoices(c *gin.Context) {
	choices, err := models.ListAlertChoices(c.Request.Context(), h.db)
	if err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "list alert choices"))
		return
	}
	c.JSON(http.StatusOK, choices)
}

func (h *Handlers) handleCreateAlertChoice(c *gin.Context) {
	var choice models.AlertChoice
	if err := c.ShouldBindJSON(&choice); err != nil {
		response.AbortWithError(c, bindError(err))
		return
	}
	var n int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.AlertChoice{}).
		Where("emergency_name = ?", choice.EmergencyName).Count(&n).Error; err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "check alert choice"))
		return
	}
	if n > 0 {
		response.AbortWithError(c, rejected("emergency_name", "alert choices with this emergency name already exists."))
		return
	}
	if err := models.CreateAlertChoice(c.Request.Context(), h.db, &choice); err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "create alert choice"))
		return
	}
	c.JSON(http.StatusCreated, choice)
}

func (h *Handlers) handleListLocations(c *gin.Context) {
	locations, err := models.ListLocations(c.Request.Context(), h.db)
	if err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "list locations"))
		return
	}
	c.JSON(http.StatusOK, locations)
}

func (h *Handlers) handleCreateLocation(c *gin.Context) {
	var raw geo.LocationInput
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.AbortWithError(c, bindError(err))
		return
	}
	loc, err := geo.Resolve(c.Request.Context(), &raw)
	if err != nil {
		response.AbortWithError(c, err)
		return
	}
	if err := models.CreateLocation(c.Request.Context(), h.db, loc); err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "create location"))
		return
	}
	c.JSON(http.StatusCreated, loc)
}

func (h *Handlers) handleListFeedbacks(c *gin.Context) {
	feedbacks, err := models.ListFeedbacks(c.Request.Context(), h.db)
	if err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "list feedbacks"))
		return
	}
	c.JSON(http.StatusOK, feedbacks)
}

func (h *Handlers) handleCreateFeedback(c *gin.Context) {
	var form FeedbackForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.AbortWithError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()
	if _, err := models.GetAlert(ctx, h.db, form.Alert); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.AbortWithError(c, rejected("alert", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", form.Alert)))
			return
		}
		response.AbortWithError(c, apperrors.Storage(err, "load alert"))
		return
	}

	fb := &models.DisasterFeedback{
		Description:        form.Description,
		DateTimeOfFeedback: form.DateTimeOfFeedback,
		AlertID:            form.Alert,
	}
	if err := models.CreateFeedback(ctx, h.db, fb); err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "create feedback"))
		return
	}
	c.JSON(http.StatusCreated, fb)
}
