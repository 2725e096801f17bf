package handlers

import (
	"net/http"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
)

type ChannelHandler struct {
	store  *tracking.GormStore
	logger *logger.Logger
}

func NewChannelHandler(store *tracking.GormStore, logger *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		store:  store,
		logger: logger,
	}
}

type channelStatus struct {
	Channel models.Channel              `json:"channel"`
	Total   int64                       `json:"total"`
	Errors  int64                       `json:"errors"`
	Status  map[models.SyncStatus]int64 `json:"status"`
}

// List reports entry counts per channel and sync status.
func (h *ChannelHandler) List(c *gin.Context) {
	summary, err := h.summary(c)
	if err != nil {
		return
	}
	out := make([]channelStatus, 0, len(models.Channels))
	for _, ch := range models.Channels {
		out = append(out, summary[ch])
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *ChannelHandler) Get(c *gin.Context) {
	ch, err := models.ParseChannel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}
	summary, err := h.summary(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary[ch]})
}

func (h *ChannelHandler) summary(c *gin.Context) (map[models.Channel]channelStatus, error) {
	rows, err := h.store.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to summarize channels: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch channels"})
		return nil, err
	}

	out := make(map[models.Channel]channelStatus, len(models.Channels))
	for _, ch := range models.Channels {
		out[ch] = channelStatus{Channel: ch, Status: map[models.SyncStatus]int64{}}
	}
	for _, r := range rows {
		s, ok := out[r.Channel]
		if !ok {
			continue
		}
		s.Total += r.Count
		s.Errors += r.Errors
		s.Status[r.Status] = r.Count
		out[r.Channel] = s
	}
	return out, nil
}
