package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"janasamparka/internal/metrics"
	"janasamparka/internal/model"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	maxRetryAttempts = 3
	initialDelay     = 1 * time.Second
	maxDelay         = 30 * time.Second
	resubscribeDelay = 5 * time.Second

	resultSkipped = "skipped"
)

// NotificationStore is implemented by *repository.NotificationRepository.
type NotificationStore interface {
	CreateForMessage(ctx context.Context, notification *model.Notification, messageID string) (bool, error)
	IsMessageProcessed(ctx context.Context, messageID string) (bool, error)
	MarkMessageProcessed(ctx context.Context, messageID string) error
}

// Broadcaster pushes a stored notification to live clients.
type Broadcaster interface {
	SendToUser(notification *model.Notification)
}

type deliverySource interface {
	Consume() (<-chan amqp.Delivery, error)
}

// NotificationConsumer turns complaint events into citizen notifications.
// A message is retried with backoff, dead-lettered when retries run out and
// skipped when its id was already processed.
type NotificationConsumer struct {
	source     deliverySource
	store      NotificationStore
	hub        Broadcaster
	retryDelay time.Duration
	now        func() time.Time
}

func NewNotificationConsumer(source *RabbitMQ, store NotificationStore, hub Broadcaster) *NotificationConsumer {
	return &NotificationConsumer{
		source:     source,
		store:      store,
		hub:        hub,
		retryDelay: initialDelay,
		now:        time.Now,
	}
}

// Run consumes until ctx is cancelled, re-subscribing whenever the
// delivery channel closes.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	log.Println("consumer: started")
	defer log.Println("consumer: stopped")

	for {
		msgs, err := c.source.Consume()
		if err != nil {
			log.Printf("consumer: %v, retrying in %s", err, resubscribeDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(resubscribeDelay):
			}
			continue
		}

		log.Printf("consumer: listening on %s", QueueNotifications)
		if done := c.processMessages(ctx, msgs); done {
			return nil
		}
	}
}

func (c *NotificationConsumer) processMessages(ctx context.Context, msgs <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-msgs:
			if !ok {
				log.Println("consumer: channel closed, resubscribing")
				return false
			}
			c.processMessageWithRetry(ctx, msg)
		}
	}
}

func (c *NotificationConsumer) processMessageWithRetry(ctx context.Context, msg amqp.Delivery) {
	messageID := msg.MessageId
	if messageID == "" {
		messageID = fmt.Sprintf("%x", msg.Body[:min(32, len(msg.Body))])
	}

	processed, err := c.store.IsMessageProcessed(ctx, messageID)
	if err != nil {
		log.Printf("consumer: idempotency check %s: %v", messageID, err)
	}
	if processed {
		log.Printf("consumer: %s already processed", messageID)
		msg.Ack(false)
		return
	}

	err = retry.Do(
		func() error {
			return c.handle(ctx, messageID, msg.RoutingKey, msg.Body)
		},
		retry.Context(ctx),
		retry.Attempts(maxRetryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("consumer: %s retry %d: %v", msg.RoutingKey, n+1, err)
		}),
	)
	if err != nil {
		log.Printf("consumer: %s failed, dead-lettering: %v", messageID, err)
		metrics.NotificationsDelivered.WithLabelValues(msg.RoutingKey, metrics.ResultError).Inc()
		msg.Nack(false, false)
		return
	}
	msg.Ack(false)
}

// handle stores and pushes the notification for one event. Malformed or
// unaddressed events are marked processed and dropped.
func (c *NotificationConsumer) handle(ctx context.Context, messageID, routingKey string, body []byte) error {
	var event model.ComplaintEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("consumer: %s: bad json: %v", routingKey, err)
		metrics.NotificationsDelivered.WithLabelValues(routingKey, metrics.ResultRejected).Inc()
		c.markProcessed(ctx, messageID)
		return nil
	}

	notification, ok := BuildNotification(routingKey, event, c.now())
	if !ok {
		metrics.NotificationsDelivered.WithLabelValues(routingKey, resultSkipped).Inc()
		c.markProcessed(ctx, messageID)
		return nil
	}

	created, err := c.store.CreateForMessage(ctx, notification, messageID)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if !created {
		log.Printf("consumer: %s already processed", messageID)
		return nil
	}
	c.hub.SendToUser(notification)
	metrics.NotificationsDelivered.WithLabelValues(routingKey, metrics.ResultOK).Inc()
	return nil
}

func (c *NotificationConsumer) markProcessed(ctx context.Context, messageID string) {
	if err := c.store.MarkMessageProcessed(ctx, messageID); err != nil {
		log.Printf("consumer: mark processed %s: %v", messageID, err)
	}
}

// BuildNotification renders the citizen-facing notification for an event.
// ok is false when there is no citizen to notify, the event is a citizen's
// own action, or the routing key is unknown.
func BuildNotification(routingKey string, e model.ComplaintEvent, now time.Time) (*model.Notification, bool) {
	if e.CitizenID == nil {
		return nil, false
	}

	var title, message string
	switch routingKey {
	case model.EventComplaintCreated:
		title = "Complaint received"
		message = fmt.Sprintf("Your complaint %q has been registered", e.Title)
		if e.Priority != "" {
			message += fmt.Sprintf(" with %s priority", e.Priority)
		}
		message += "."

	case model.EventComplaintStatusChanged:
		if e.ActorID == *e.CitizenID {
			return nil, false
		}
		title = "Complaint status updated"
		message = fmt.Sprintf("Your complaint %q is now %s.", e.Title, statusLabel(e.NewStatus))
		if e.Note != "" {
			message += " " + e.Note
		}

	case model.EventComplaintRouted:
		title = "Complaint forwarded"
		switch {
		case e.AssignedTo != nil:
			message = fmt.Sprintf("Your complaint %q has been assigned to an officer.", e.Title)
		case e.AssignmentType == model.AssignmentDepartment:
			message = fmt.Sprintf("Your complaint %q has been forwarded to the responsible department.", e.Title)
		default:
			message = fmt.Sprintf("Your complaint %q has been assigned to your ward.", e.Title)
		}
		if e.Note != "" {
			message += " " + e.Note
		}

	case model.EventComplaintPublicNote:
		title = "New update on your complaint"
		message = fmt.Sprintf("%q: %s", e.Title, e.Note)

	default:
		return nil, false
	}

	complaintID := e.ComplaintID
	return &model.Notification{
		ID:          uuid.New(),
		UserID:      *e.CitizenID,
		ComplaintID: &complaintID,
		Title:       title,
		Message:     message,
		CreatedAt:   now,
	}, true
}

func statusLabel(s model.ComplaintStatus) string {
	switch s {
	case model.StatusInProgress:
		return "in progress"
	case "":
		return "updated"
	}
	return string(s)
}
