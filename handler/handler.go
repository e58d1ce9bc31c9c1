package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"capture-agent/dto"
	"capture-agent/pkg/upload"
	"capture-agent/service"
)

// RecordingHandler exposes the capture session controller over HTTP.
type RecordingHandler struct {
	Controller *service.Controller
}

func (h *RecordingHandler) Start(c *gin.Context) {
	var req dto.StartRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID, err := h.Controller.Start(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrSessionActive) {
			status = http.StatusConflict
		} else if errors.Is(err, service.ErrCaptureStart) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.StartRecordingResponse{SessionID: sessionID})
}

func (h *RecordingHandler) Pause(c *gin.Context) {
	if !h.matchActive(c) {
		return
	}
	if err := h.Controller.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordingHandler) Resume(c *gin.Context) {
	if !h.matchActive(c) {
		return
	}
	if err := h.Controller.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordingHandler) Stop(c *gin.Context) {
	if !h.matchActive(c) {
		return
	}

	resp, err := h.Controller.Stop(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidState) {
			status = http.StatusConflict
		} else if errors.Is(err, service.ErrUploadFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecordingHandler) ListUnfinished(c *gin.Context) {
	ids, err := h.Controller.ListUnfinished(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.UnfinishedRecordingsResponse{SessionIDs: ids})
}

func (h *RecordingHandler) Finalize(c *gin.Context) {
	var req dto.StartRecordingRequest
	_ = c.ShouldBindJSON(&req)

	resp, err := h.Controller.FinalizeUnfinished(c.Request.Context(), c.Param("id"), upload.Metadata{
		Title:  req.Title,
		Source: req.Source,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrSessionActive) {
			status = http.StatusConflict
		} else if errors.Is(err, service.ErrUploadFailed) {
			status = http.StatusBadGateway
		} else if errors.Is(err, service.ErrNoRecordingData) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecordingHandler) Discard(c *gin.Context) {
	if err := h.Controller.Discard(c.Request.Context(), c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrSessionActive) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordingHandler) matchActive(c *gin.Context) bool {
	if c.Param("id") != h.Controller.ActiveSessionID() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such active session"})
		return false
	}
	return true
}
