package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OutboxStats is implemented by *messaging.OutboxWorker.
type OutboxStats interface {
	GetStats(ctx context.Context) (map[string]int, error)
}

// BrokerStatus is implemented by *messaging.RabbitMQ.
type BrokerStatus interface {
	Healthy() bool
}

type HealthHandler struct {
	outbox OutboxStats
	broker BrokerStatus
}

func NewHealthHandler(outbox OutboxStats, broker BrokerStatus) *HealthHandler {
	return &HealthHandler{outbox: outbox, broker: broker}
}

// Health reports liveness. The service stays "ok" while the broker is down
// because events keep accumulating in the outbox; it is "degraded" only when
// the database cannot be reached.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	stats, err := h.outbox.GetStats(c.Request.Context())
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"service":  "janasamparka",
		"rabbitmq": h.broker.Healthy(),
		"outbox":   stats,
	})
}
