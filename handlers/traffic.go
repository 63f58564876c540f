package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"valencia-data-detective/models"
	"valencia-data-detective/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TrafficHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewTrafficHandler(db *gorm.DB, cache *services.CacheService) *TrafficHandler {
	return &TrafficHandler{db: db, cache: cache}
}

// GetMeasurements lists accumulated traffic measurements, newest
// first, optionally filtered by measurement point. The cache TTL is
// short because the capture daemon appends every few minutes.
func (h *TrafficHandler) GetMeasurements(c *gin.Context) {
	p := ParsePagination(c)
	punto := c.Query("punto_medida")

	cacheKey := fmt.Sprintf("traffic:%s:%s", punto, p.CacheSuffix())

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.TrafficMeasurement{}).Order("ts DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("ts < ?", *p.Before)
	}
	if punto != "" {
		query = query.Where("punto_medida = ?", punto)
	}

	rows := make([]models.TrafficMeasurement, 0, p.Limit+1)
	if err := query.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].TS.Format(time.RFC3339Nano)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 5*time.Second)

	c.JSON(http.StatusOK, resp)
}
