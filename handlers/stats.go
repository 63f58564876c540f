package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"valencia-data-detective/services"

	"github.com/gin-gonic/gin"
)

// AnnualStat is one row of the aggregated statistics dataset: the mean
// of a pollutant over one year in one neighbourhood.
type AnnualStat struct {
	Year      int     `json:"año"`
	Barrio    string  `json:"barrio"`
	Variable  string  `json:"variable"`
	Media     float64 `json:"media_anual"`
	Registros int     `json:"n_registros"`
	Unidad    string  `json:"unidad"`
}

// StatsHandler serves the aggregated statistics computed by the ETL
// pipeline. The pipeline writes CSV files, not database tables, so
// this handler reads from disk and leans on the cache.
type StatsHandler struct {
	statsDir string
	cache    *services.CacheService
}

func NewStatsHandler(statsDir string, cache *services.CacheService) *StatsHandler {
	return &StatsHandler{statsDir: statsDir, cache: cache}
}

// GetAnnual returns the per-neighbourhood annual pollutant means,
// optionally filtered by barrio and variable.
func (h *StatsHandler) GetAnnual(c *gin.Context) {
	barrio := c.Query("barrio")
	variable := c.Query("variable")

	cacheKey := fmt.Sprintf("stats:annual:%s:%s", barrio, variable)

	var cached struct {
		Data []AnnualStat `json:"data"`
	}
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := h.loadAnnual()
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "statistics not generated yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read statistics"})
		return
	}

	filtered := stats[:0:0]
	for _, s := range stats {
		if barrio != "" && s.Barrio != barrio {
			continue
		}
		if variable != "" && s.Variable != variable {
			continue
		}
		filtered = append(filtered, s)
	}
	if filtered == nil {
		filtered = []AnnualStat{}
	}

	resp := gin.H{"data": filtered}
	go h.cache.Set(context.Background(), cacheKey, resp, 5*time.Minute)

	c.JSON(http.StatusOK, resp)
}

func (h *StatsHandler) loadAnnual() ([]AnnualStat, error) {
	path := filepath.Join(h.statsDir, "contaminacion_media_anual_barrio.csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var stats []AnnualStat
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if len(record) > 0 && strings.TrimPrefix(record[0], "\ufeff") == "año" {
				continue
			}
		}
		if len(record) < 6 {
			continue
		}

		year, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		media, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(record[4])

		stats = append(stats, AnnualStat{
			Year:      year,
			Barrio:    record[1],
			Variable:  record[2],
			Media:     media,
			Registros: n,
			Unidad:    record[5],
		})
	}
	return stats, nil
}
