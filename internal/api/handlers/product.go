package handlers

import (
	"net/http"
	"strconv"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
)

// ProductHandler exposes the tracking table: one row per product and SKU
// with its last sync state.
type ProductHandler struct {
	store  *tracking.GormStore
	logger *logger.Logger
}

func NewProductHandler(store *tracking.GormStore, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		store:  store,
		logger: logger,
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	page, limit := pagination(c)

	filter := tracking.Filter{
		Channel: models.Channel(c.Query("channel")),
		Status:  models.SyncStatus(c.Query("status")),
		SKU:     c.Query("sku"),
		Page:    page,
		Limit:   limit,
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return
	}

	entries, total, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list tracked products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, paged(entries, page, limit, total))
}

func (h *ProductHandler) Get(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	entry, err := h.store.Get(c.Request.Context(), productID, c.Param("sku"))
	if err != nil {
		h.logger.Error("Failed to fetch tracked product: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
