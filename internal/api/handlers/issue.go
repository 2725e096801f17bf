package handlers

import (
	"net/http"
	"strconv"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
)

type IssueHandler struct {
	store  *tracking.GormStore
	logger *logger.Logger
}

func NewIssueHandler(store *tracking.GormStore, logger *logger.Logger) *IssueHandler {
	return &IssueHandler{
		store:  store,
		logger: logger,
	}
}

func (h *IssueHandler) List(c *gin.Context) {
	page, limit := pagination(c)

	filter := tracking.IssueFilter{
		Channel:  models.Channel(c.Query("channel")),
		Severity: models.IssueSeverity(c.Query("severity")),
		Code:     c.Query("code"),
		Page:     page,
		Limit:    limit,
	}
	if resolved := c.Query("resolved"); resolved != "" {
		b, err := strconv.ParseBool(resolved)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filter.Resolved = &b
	}

	issues, total, err := h.store.ListIssues(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list issues: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch issues"})
		return
	}

	c.JSON(http.StatusOK, paged(issues, page, limit, total))
}

func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.store.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to fetch issue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch issue"})
		return
	}
	if issue == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": issue})
}

func (h *IssueHandler) Resolve(c *gin.Context) {
	issue, err := h.store.ResolveIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to resolve issue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve issue"})
		return
	}
	if issue == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": issue})
}
