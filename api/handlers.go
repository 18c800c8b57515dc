package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"signagecontrol/models"
	"signagecontrol/service"
	"signagecontrol/store"
)

// Handlers is the HTTP-facing collaborator surface. Admin actions land
// here and call into the dispatcher and the store.
type Handlers struct {
	Store      *store.DisplayStore
	Registry   *service.ConnectionRegistry
	Dispatcher *service.Dispatcher
	Lifecycle  *service.LifecycleHandler
	Log        zerolog.Logger
}

// GetDisplays lists all displays with live presence attached
func (h *Handlers) GetDisplays(c *gin.Context) {
	displays, err := h.Store.ListDisplays()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	for _, d := range displays {
		if entry, ok := h.Registry.Lookup(d.DeviceID); ok {
			d.ConnectionID = entry.ConnectionID
		}
	}
	c.JSON(http.StatusOK, models.SuccessResponse(displays))
}

func (h *Handlers) GetDisplay(c *gin.Context) {
	display, err := h.Store.FindDisplay(c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	if entry, ok := h.Registry.Lookup(display.DeviceID); ok {
		display.ConnectionID = entry.ConnectionID
	}
	c.JSON(http.StatusOK, models.SuccessResponse(display))
}

// GetDisplayContent returns the display's effective content list with the
// schedule resolved at request time
func (h *Handlers) GetDisplayContent(c *gin.Context) {
	items, err := h.Dispatcher.GetContentForDisplay(c.Param("id"), time.Now())
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(items))
}

type pushRequest struct {
	ContentID string `json:"content_id" binding:"required"`
}

// PushContent builds a payload for the content item and pushes it directly
// to the device. delivered=false is a normal outcome.
func (h *Handlers) PushContent(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	payload, err := h.Dispatcher.BuildPayload(req.ContentID, nil)
	if err != nil {
		h.storeError(c, err)
		return
	}
	delivered := h.Dispatcher.PushContent(c.Param("id"), payload)
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"delivered": delivered}))
}

type notifyRequest struct {
	DeviceIDs  []string `json:"device_ids" binding:"required"`
	UpdateType string   `json:"update_type" binding:"required"`
}

func (h *Handlers) NotifyContentUpdate(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	h.Dispatcher.NotifyContentUpdate(req.DeviceIDs, req.UpdateType)
	c.JSON(http.StatusOK, models.MessageResponse("notified"))
}

type assignRequest struct {
	ContentID string `json:"content_id" binding:"required"`
}

// AssignContent adds a content item to the display's unconditional list and
// signals the device to refetch
func (h *Handlers) AssignContent(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	deviceID := c.Param("id")
	if err := h.Store.AddContent(deviceID, req.ContentID); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	h.Dispatcher.NotifyContentUpdate([]string{deviceID}, "content")
	c.JSON(http.StatusOK, models.MessageResponse("assigned"))
}

func (h *Handlers) UnassignContent(c *gin.Context) {
	deviceID := c.Param("id")
	if err := h.Store.RemoveContent(deviceID, c.Param("contentId")); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	h.Dispatcher.NotifyContentUpdate([]string{deviceID}, "content")
	c.JSON(http.StatusOK, models.MessageResponse("unassigned"))
}

type scheduleRequest struct {
	Entries []models.ScheduleEntry `json:"entries"`
}

// ReplaceSchedule swaps the display's schedule and signals a refetch
func (h *Handlers) ReplaceSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	deviceID := c.Param("id")
	if err := h.Store.ReplaceSchedule(deviceID, req.Entries); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	h.Dispatcher.NotifyContentUpdate([]string{deviceID}, "schedule")
	c.JSON(http.StatusOK, models.MessageResponse("schedule updated"))
}

type pairingCodeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// IssuePairingCode stores a one-time code the device must echo back over
// its connection to complete pairing
func (h *Handlers) IssuePairingCode(c *gin.Context) {
	var req pairingCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	code, err := newPairingCode()
	if err != nil {
		h.Log.Error().Err(err).Msg("pairing code generation failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse("could not generate pairing code"))
		return
	}
	if err := h.Store.SetPairingCode(c.Param("id"), code, req.UserID); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"code": code}))
}

type maintenanceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handlers) SetMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	if err := h.Lifecycle.HandleMaintenance(c.Param("id"), *req.Enabled); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("maintenance updated"))
}

func (h *Handlers) DeleteDisplay(c *gin.Context) {
	if err := h.Store.DeleteDisplay(c.Param("id")); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("deleted"))
}

func (h *Handlers) UpsertContent(c *gin.Context) {
	var content models.Content
	if err := c.ShouldBindJSON(&content); err != nil || content.ID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("content id is required"))
		return
	}
	if err := h.Store.UpsertContent(content); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(content))
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse("display not found"))
		return
	}
	h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
}

func newPairingCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
