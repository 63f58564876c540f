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

type WeatherHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewWeatherHandler(db *gorm.DB, cache *services.CacheService) *WeatherHandler {
	return &WeatherHandler{db: db, cache: cache}
}

// GetObservations lists canonical weather rows, newest first,
// optionally filtered by source (aemet, openweathermap).
func (h *WeatherHandler) GetObservations(c *gin.Context) {
	p := ParsePagination(c)
	source := c.Query("fuente")

	cacheKey := fmt.Sprintf("weather:%s:%s", source, p.CacheSuffix())

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.WeatherObservation{}).Order("ts DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("ts < ?", *p.Before)
	}
	if source != "" {
		query = query.Where("fuente = ?", source)
	}

	rows := make([]models.WeatherObservation, 0, p.Limit+1)
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
	go h.cache.Set(context.Background(), cacheKey, resp, 60*time.Second)

	c.JSON(http.StatusOK, resp)
}
