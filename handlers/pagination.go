// Package handlers implements the REST endpoints of the read API.
// List endpoints share the same cursor pagination: newest first,
// bounded page size, an opaque `before` timestamp as cursor.
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// PaginationParams are the parsed cursor parameters of a list request.
// Before is nil when the client asked for the newest page.
type PaginationParams struct {
	Limit  int
	Before *time.Time
}

// CursorResponse is the envelope of every paginated endpoint.
type CursorResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// ParsePagination reads limit and before from the query string.
// Unparseable values fall back to defaults rather than erroring, so a
// sloppy client still gets the newest page.
func ParsePagination(c *gin.Context) PaginationParams {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		if t, err := time.Parse(time.RFC3339Nano, beforeStr); err == nil {
			p.Before = &t
		}
	}

	return p
}

// CacheSuffix renders the pagination parameters for use in cache keys,
// so two requests differing only in cursor never share an entry.
func (p PaginationParams) CacheSuffix() string {
	before := ""
	if p.Before != nil {
		before = p.Before.Format(time.RFC3339Nano)
	}
	return strconv.Itoa(p.Limit) + ":" + before
}
