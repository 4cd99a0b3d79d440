package handler

import (
	"encoding/json"
	"net/http"

	"janasamparka/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// Register mounts the list and read routes. The stream is registered
// separately because it authenticates with a query token.
func (h *NotificationHandler) Register(r gin.IRoutes) {
	r.GET("/notifications", h.GetNotifications)
	r.PATCH("/notifications/read-all", h.MarkAllAsRead)
	r.PATCH("/notifications/:id/read", h.MarkAsRead)
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	response, err := h.notificationService.GetUserNotifications(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) StreamNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	client := h.notificationService.RegisterClient(p.UserID)
	defer h.notificationService.UnregisterClient(client)

	c.SSEvent("connected", gin.H{"status": "connected", "user_id": p.UserID})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case notification, ok := <-client.Channel:
			if !ok {
				return
			}
			data, _ := json.Marshal(notification)
			c.SSEvent("notification", string(data))
			c.Writer.Flush()
		}
	}
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), id, p.UserID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), p.UserID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all marked as read"})
}
