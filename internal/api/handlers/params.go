package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 200

// pagination reads page and limit, falling back to 1 and 20.
func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func paged(data interface{}, page, limit int, total int64) gin.H {
	return gin.H{
		"data": data,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	}
}
