package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"janasamparka/internal/model"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcker struct {
	acked, nacked, requeued int
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acked++; return nil }

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *fakeAcker) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

type fakeNotificationStore struct {
	mu        sync.Mutex
	created   []*model.Notification
	processed map[string]bool
	failures  int

	// staleChecks makes IsMessageProcessed miss, as when another consumer
	// commits the same message between the check and the insert.
	staleChecks bool
}

func (s *fakeNotificationStore) CreateForMessage(_ context.Context, n *model.Notification, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return false, errors.New("db unavailable")
	}
	if s.processed[messageID] {
		return false, nil
	}
	s.processed[messageID] = true
	s.created = append(s.created, n)
	return true, nil
}

func (s *fakeNotificationStore) IsMessageProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleChecks {
		return false, nil
	}
	return s.processed[id], nil
}

func (s *fakeNotificationStore) MarkMessageProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
	return nil
}

type fakeHub struct {
	sent []*model.Notification
}

func (h *fakeHub) SendToUser(n *model.Notification) { h.sent = append(h.sent, n) }

func newTestConsumer() (*NotificationConsumer, *fakeNotificationStore, *fakeHub) {
	store := &fakeNotificationStore{processed: map[string]bool{}}
	hub := &fakeHub{}
	c := &NotificationConsumer{
		store:      store,
		hub:        hub,
		retryDelay: time.Millisecond,
		now:        func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) },
	}
	return c, store, hub
}

func delivery(t *testing.T, acker *fakeAcker, id, key string, event model.ComplaintEvent) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, MessageId: id, RoutingKey: key, Body: body}
}

func TestConsumerCreatesNotificationOnce(t *testing.T) {
	c, store, hub := newTestConsumer()
	citizen := uuid.New()
	event := model.ComplaintEvent{
		ComplaintID: uuid.New(),
		CitizenID:   &citizen,
		Title:       "Broken streetlight",
		NewStatus:   model.StatusInProgress,
		ActorID:     uuid.New(),
	}

	acker := &fakeAcker{}
	msg := delivery(t, acker, "outbox-1", model.EventComplaintStatusChanged, event)
	c.processMessageWithRetry(context.Background(), msg)
	c.processMessageWithRetry(context.Background(), msg)

	assert.Equal(t, 2, acker.acked)
	require.Len(t, store.created, 1)
	require.Len(t, hub.sent, 1)

	n := store.created[0]
	assert.Equal(t, citizen, n.UserID)
	assert.Equal(t, event.ComplaintID, *n.ComplaintID)
	assert.Equal(t, `Your complaint "Broken streetlight" is now in progress.`, n.Message)
	assert.True(t, store.processed["outbox-1"])
}

func TestConsumerRetriesThenDeadLetters(t *testing.T) {
	citizen := uuid.New()
	event := model.ComplaintEvent{ComplaintID: uuid.New(), CitizenID: &citizen, Title: "Water leak"}

	t.Run("recovers within attempts", func(t *testing.T) {
		c, store, _ := newTestConsumer()
		store.failures = 2
		acker := &fakeAcker{}

		c.processMessageWithRetry(context.Background(), delivery(t, acker, "m1", model.EventComplaintCreated, event))
		assert.Equal(t, 1, acker.acked)
		assert.Len(t, store.created, 1)
	})

	t.Run("gives up", func(t *testing.T) {
		c, store, hub := newTestConsumer()
		store.failures = maxRetryAttempts
		acker := &fakeAcker{}

		c.processMessageWithRetry(context.Background(), delivery(t, acker, "m2", model.EventComplaintCreated, event))
		assert.Equal(t, 0, acker.acked)
		assert.Equal(t, 1, acker.nacked)
		assert.Equal(t, 0, acker.requeued)
		assert.Empty(t, hub.sent)
		assert.False(t, store.processed["m2"])
	})
}

func TestConsumerStoresRedeliveredMessageOnce(t *testing.T) {
	c, store, hub := newTestConsumer()
	store.staleChecks = true
	citizen := uuid.New()
	event := model.ComplaintEvent{ComplaintID: uuid.New(), CitizenID: &citizen, Title: "Drain overflow", ActorID: uuid.New()}

	acker := &fakeAcker{}
	msg := delivery(t, acker, "outbox-7", model.EventComplaintCreated, event)
	c.processMessageWithRetry(context.Background(), msg)
	c.processMessageWithRetry(context.Background(), msg)

	assert.Equal(t, 2, acker.acked)
	assert.Len(t, store.created, 1)
	assert.Len(t, hub.sent, 1)
}

func TestConsumerDropsUnusableMessages(t *testing.T) {
	c, store, _ := newTestConsumer()
	acker := &fakeAcker{}

	c.processMessageWithRetry(context.Background(), amqp.Delivery{Acknowledger: acker, MessageId: "bad", RoutingKey: model.EventComplaintCreated, Body: []byte("{not json")})
	c.processMessageWithRetry(context.Background(), delivery(t, acker, "anon", model.EventComplaintCreated, model.ComplaintEvent{Title: "no citizen"}))

	assert.Equal(t, 2, acker.acked)
	assert.Empty(t, store.created)
	assert.True(t, store.processed["bad"])
	assert.True(t, store.processed["anon"])
}

func TestBuildNotification(t *testing.T) {
	citizen := uuid.New()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	base := model.ComplaintEvent{ComplaintID: uuid.New(), CitizenID: &citizen, Title: "Garbage pile", ActorID: uuid.New()}

	created := base
	created.Priority = model.PriorityHigh
	n, ok := BuildNotification(model.EventComplaintCreated, created, now)
	require.True(t, ok)
	assert.Equal(t, "Complaint received", n.Title)
	assert.Equal(t, `Your complaint "Garbage pile" has been registered with high priority.`, n.Message)
	assert.Equal(t, now, n.CreatedAt)

	routed := base
	routed.AssignmentType = model.AssignmentDepartment
	routed.Note = "Sanitation crew informed."
	n, ok = BuildNotification(model.EventComplaintRouted, routed, now)
	require.True(t, ok)
	assert.Equal(t, `Your complaint "Garbage pile" has been forwarded to the responsible department. Sanitation crew informed.`, n.Message)

	officer := uuid.New()
	routed.AssignedTo = &officer
	routed.Note = ""
	n, _ = BuildNotification(model.EventComplaintRouted, routed, now)
	assert.Equal(t, `Your complaint "Garbage pile" has been assigned to an officer.`, n.Message)

	note := base
	note.Note = "Cleared this morning"
	n, ok = BuildNotification(model.EventComplaintPublicNote, note, now)
	require.True(t, ok)
	assert.Equal(t, `"Garbage pile": Cleared this morning`, n.Message)

	own := base
	own.ActorID = citizen
	own.NewStatus = model.StatusClosed
	_, ok = BuildNotification(model.EventComplaintStatusChanged, own, now)
	assert.False(t, ok)

	_, ok = BuildNotification("complaint.unknown", base, now)
	assert.False(t, ok)
}
