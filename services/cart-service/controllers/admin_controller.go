package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/cart-service/cascade"
)

// DeadLetterSource is implemented by buses that keep dead letters in process.
type DeadLetterSource interface {
	DeadLetters() []events.DeadLetter
}

// DeadLetterReplayer is implemented by buses that can redeliver their dead letters.
type DeadLetterReplayer interface {
	Replay(ctx context.Context) (int, error)
}

// AdminController exposes cascade internals to operators.
type AdminController struct {
	Worker      *cascade.Worker
	DeadLetters DeadLetterSource
	Replayer    DeadLetterReplayer
}

// Stats handles GET /admin/cascade/stats.
func (ac *AdminController) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": ac.Worker.StateCounts()})
}

// ListDeadLetters handles GET /admin/cascade/dead-letters.
func (ac *AdminController) ListDeadLetters(c *gin.Context) {
	if ac.DeadLetters == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "dead letters are kept by the broker for this bus"})
		return
	}
	c.JSON(http.StatusOK, ac.DeadLetters.DeadLetters())
}

// ReplayDeadLetters handles POST /admin/cascade/dead-letters/replay.
func (ac *AdminController) ReplayDeadLetters(c *gin.Context) {
	if ac.Replayer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "replay is driven by the broker for this bus"})
		return
	}
	n, err := ac.Replayer.Replay(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"replayed": n, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": n})
}
