package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	service string
	db      *sql.DB
}

// NewHealthHandler reports database reachability when db is set.
func NewHealthHandler(service string, db *sql.DB) *HealthHandler {
	return &HealthHandler{service: service, db: db}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"service": h.service, "status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"service": h.service, "status": "healthy"})
}
