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

type SituationsHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewSituationsHandler(db *gorm.DB, cache *services.CacheService) *SituationsHandler {
	return &SituationsHandler{db: db, cache: cache}
}

// GetSituations lists DGT incident records, newest first, optionally
// filtered by severity.
func (h *SituationsHandler) GetSituations(c *gin.Context) {
	p := ParsePagination(c)
	severity := c.Query("severidad")

	cacheKey := fmt.Sprintf("situations:%s:%s", severity, p.CacheSuffix())

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.TrafficSituation{}).Order("ts DESC").Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("ts < ?", *p.Before)
	}
	if severity != "" {
		query = query.Where("severidad = ?", severity)
	}

	rows := make([]models.TrafficSituation, 0, p.Limit+1)
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
	go h.cache.Set(context.Background(), cacheKey, resp, 30*time.Second)

	c.JSON(http.StatusOK, resp)
}
