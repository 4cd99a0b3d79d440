package messaging

import (
	"context"
	"log"
	"sync"

	"janasamparka/internal/model"

	"github.com/google/uuid"
)

const clientBuffer = 10

type SSEClient struct {
	UserID  uuid.UUID
	Channel chan *model.Notification
}

// SSEHub fans notifications out to the open streams of each user. A client
// that is not keeping up misses notifications rather than blocking others.
type SSEHub struct {
	clients    map[uuid.UUID][]*SSEClient
	register   chan *SSEClient
	unregister chan *SSEClient
	broadcast  chan *model.Notification
	done       chan struct{}
	mu         sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients:    make(map[uuid.UUID][]*SSEClient),
		register:   make(chan *SSEClient),
		unregister: make(chan *SSEClient),
		broadcast:  make(chan *model.Notification, 100),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client channel.
func (h *SSEHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for userID, clients := range h.clients {
				for _, c := range clients {
					close(c.Channel)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			log.Printf("sse: client registered for user %s", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			userClients := h.clients[client.UserID]
			for i, c := range userClients {
				if c == client {
					h.clients[client.UserID] = append(userClients[:i], userClients[i+1:]...)
					close(client.Channel)
					break
				}
			}
			if len(h.clients[client.UserID]) == 0 {
				delete(h.clients, client.UserID)
			}
			h.mu.Unlock()

		case notification := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients[notification.UserID] {
				select {
				case client.Channel <- notification:
				default:
					// client too slow, drop
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *SSEHub) RegisterClient(userID uuid.UUID) *SSEClient {
	client := &SSEClient{
		UserID:  userID,
		Channel: make(chan *model.Notification, clientBuffer),
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Channel)
	}
	return client
}

func (h *SSEHub) UnregisterClient(client *SSEClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *SSEHub) SendToUser(notification *model.Notification) {
	select {
	case h.broadcast <- notification:
	default:
		log.Printf("sse: broadcast buffer full, dropping notification %s", notification.ID)
	}
}

// ClientCount returns the number of open streams for a user.
func (h *SSEHub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
