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

type AirQualityHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewAirQualityHandler(db *gorm.DB, cache *services.CacheService) *AirQualityHandler {
	return &AirQualityHandler{db: db, cache: cache}
}

// GetMeasurements lists canonical pollutant readings, newest first,
// optionally filtered by station and variable. Air data refreshes
// hourly at best, so the cache TTL is generous.
func (h *AirQualityHandler) GetMeasurements(c *gin.Context) {
	p := ParsePagination(c)
	station := c.Query("estacion")
	variable := c.Query("variable")

	cacheKey := fmt.Sprintf("air:%s:%s:%s", station, variable, p.CacheSuffix())

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.AirQualityMeasurement{}).Order("fecha_utc DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("fecha_utc < ?", *p.Before)
	}
	if station != "" {
		query = query.Where("estacion_id = ?", station)
	}
	if variable != "" {
		query = query.Where("variable = ?", variable)
	}

	rows := make([]models.AirQualityMeasurement, 0, p.Limit+1)
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
		nextCursor = rows[len(rows)-1].FechaUTC.Format(time.RFC3339Nano)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 60*time.Second)

	c.JSON(http.StatusOK, resp)
}
