package handlers

import (
	"errors"
	"io"
	"net/http"

	"catalogsync/internal/catalog"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
)

// SyncHandler queues sync runs for the worker. It never runs one itself.
// publisher may be nil, in which case requests are refused.
type SyncHandler struct {
	publisher events.Publisher
	logger    *logger.Logger
}

func NewSyncHandler(publisher events.Publisher, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		logger:    logger,
	}
}

type syncRequest struct {
	Full         bool `json:"full"`
	SkipDeletion bool `json:"skip_deletion"`
	BatchSize    int  `json:"batch_size" binding:"omitempty,min=1"`
}

func (h *SyncHandler) Request(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No event broker configured"})
		return
	}

	var req syncRequest
	// An empty body asks for a default incremental run.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BatchSize > catalog.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size exceeds the remote batch limit"})
		return
	}

	event := events.NewSyncRequested(events.SyncRequest{
		Full:         req.Full,
		SkipDeletion: req.SkipDeletion,
		BatchSize:    req.BatchSize,
	})
	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		h.logger.Error("Failed to queue sync: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue sync"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync queued", "data": req})
}
