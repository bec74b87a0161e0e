package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller handles general HTTP requests.
type Controller struct {
	db Pinger
}

// New creates a new Controller that checks db for readiness.
func New(db Pinger) *Controller {
	return &Controller{db: db}
}

// Ping handles the HTTP GET request for health check endpoint.
func (con *Controller) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Ready reports 503 while the database cannot be reached.
func (con *Controller) Ready(c *gin.Context) {
	if err := con.db.Ping(c.Request.Context()); err != nil {
		slog.Error("readiness check failed", slog.Any("err", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
