// internal/notifications/push.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushService delivers push notifications to registered devices
type PushService interface {
	SendPush(ctx context.Context, notification *PushNotification) error
}

// FCMPushService implements push delivery over Firebase Cloud Messaging
type FCMPushService struct {
	client *messaging.Client
}

// NewFCMPushService creates an FCM push service from environment
// credentials. FIREBASE_CREDENTIALS_PATH wins over
// FIREBASE_CREDENTIALS_JSON when both are set.
func NewFCMPushService(ctx context.Context) (PushService, error) {
	var opt option.ClientOption

	if credentialsPath := os.Getenv("FIREBASE_CREDENTIALS_PATH"); credentialsPath != "" {
		opt = option.WithCredentialsFile(credentialsPath)
	} else if credentialsJSON := os.Getenv("FIREBASE_CREDENTIALS_JSON"); credentialsJSON != "" {
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	} else {
		return nil, errors.New("FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON must be set")
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMPushService{client: client}, nil
}

// SendPush sends one push message to all the notification's tokens
func (s *FCMPushService) SendPush(ctx context.Context, notification *PushNotification) error {
	if len(notification.Tokens) == 0 {
		return errors.New("no tokens provided")
	}

	baseMessage := &messaging.Notification{
		Title: notification.Title,
		Body:  notification.Body,
	}
	if notification.Image != "" {
		baseMessage.ImageURL = notification.Image
	}

	data := notification.Data
	if data == nil {
		data = make(map[string]string)
	}

	androidConfig := &messaging.AndroidConfig{
		Priority: fcmPriority(notification.Priority),
	}
	apnsConfig := &messaging.APNSConfig{
		Headers: map[string]string{
			"apns-priority": apnsPriority(notification.Priority),
		},
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Alert: &messaging.ApsAlert{
					Title: notification.Title,
					Body:  notification.Body,
				},
			},
		},
	}

	messages := make([]*messaging.Message, 0, len(notification.Tokens))
	for _, token := range notification.Tokens {
		messages = append(messages, &messaging.Message{
			Token:        token,
			Notification: baseMessage,
			Data:         data,
			Android:      androidConfig,
			APNS:         apnsConfig,
		})
	}

	if len(messages) == 1 {
		if _, err := s.client.Send(ctx, messages[0]); err != nil {
			log.Printf("Failed to send push notification: %v", err)
			return err
		}
		return nil
	}

	batchResponse, err := s.client.SendAll(ctx, messages)
	if err != nil {
		log.Printf("Failed to send batch push notifications: %v", err)
		return err
	}

	if batchResponse.FailureCount > 0 {
		for idx, resp := range batchResponse.Responses {
			if resp.Error != nil {
				log.Printf("Failed to send to token %s: %v", notification.Tokens[idx], resp.Error)
			}
		}
		if batchResponse.SuccessCount == 0 {
			return fmt.Errorf("all %d push sends failed", batchResponse.FailureCount)
		}
	}

	return nil
}

// fcmPriority maps notification priority to FCM priority
func fcmPriority(priority Priority) string {
	switch priority {
	case PriorityLow, PriorityMedium:
		return "normal"
	default:
		return "high"
	}
}

// apnsPriority maps notification priority to the APNS header value
func apnsPriority(priority Priority) string {
	switch priority {
	case PriorityLow, PriorityMedium:
		return "5"
	default:
		return "10"
	}
}

// MockPushService records sends for testing
type MockPushService struct {
	mu                sync.Mutex
	SentNotifications []*PushNotification
	FailNext          error
}

func NewMockPushService() *MockPushService {
	return &MockPushService{
		SentNotifications: make([]*PushNotification, 0),
	}
}

func (m *MockPushService) SendPush(ctx context.Context, notification *PushNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		return err
	}
	m.SentNotifications = append(m.SentNotifications, notification)
	log.Printf("Mock: Sending push notification to %d devices: %s",
		len(notification.Tokens), notification.Title)
	return nil
}
