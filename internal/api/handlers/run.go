package handlers

import (
	"net/http"

	"catalogsync/internal/logger"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	store  *tracking.GormStore
	logger *logger.Logger
}

func NewRunHandler(store *tracking.GormStore, logger *logger.Logger) *RunHandler {
	return &RunHandler{
		store:  store,
		logger: logger,
	}
}

func (h *RunHandler) List(c *gin.Context) {
	page, limit := pagination(c)

	runs, total, err := h.store.ListRuns(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.Error("Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, paged(runs, page, limit, total))
}

func (h *RunHandler) Latest(c *gin.Context) {
	runs, _, err := h.store.ListRuns(c.Request.Context(), 1, 1)
	if err != nil {
		h.logger.Error("Failed to fetch latest run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}
	if len(runs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No runs yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs[0]})
}

func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to fetch run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}
