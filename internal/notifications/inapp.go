// internal/notifications/inapp.go

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InAppService delivers in-app notifications over the realtime hub.
// Delivery succeeds even when the user has no open connection; the
// notification is persisted and shows up on the next list fetch.
type InAppService interface {
	SendInApp(ctx context.Context, userID int64, message *InAppMessage) error
}

// RealtimePublisher pushes a payload to a connected user. Implemented by
// the websocket hub.
type RealtimePublisher interface {
	Publish(userID int64, payload []byte) bool
}

// HubInAppService implements in-app delivery over a websocket hub
type HubInAppService struct {
	hub RealtimePublisher
}

// NewHubInAppService creates an in-app delivery service backed by a hub
func NewHubInAppService(hub RealtimePublisher) *HubInAppService {
	return &HubInAppService{hub: hub}
}

// SendInApp pushes the message to the user's open connections
func (s *HubInAppService) SendInApp(ctx context.Context, userID int64, message *InAppMessage) error {
	if message.EventID == "" {
		message.EventID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":    "notification",
		"payload": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal in-app message: %w", err)
	}

	if !s.hub.Publish(userID, payload) {
		log.Printf("User %d has no active connections, notification %d waits in inbox",
			userID, message.NotificationID)
	}
	return nil
}

// MockInAppService records sends for testing
type MockInAppService struct {
	mu           sync.Mutex
	SentMessages []*InAppMessage
	FailNext     error
}

func NewMockInAppService() *MockInAppService {
	return &MockInAppService{
		SentMessages: make([]*InAppMessage, 0),
	}
}

func (m *MockInAppService) SendInApp(ctx context.Context, userID int64, message *InAppMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		return m.FailNext
	}
	m.SentMessages = append(m.SentMessages, message)
	return nil
}
