// internal/notifications/sms.go

package notifications

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSService delivers SMS notifications. Only urgent and security
// notifications reach this channel.
type SMSService interface {
	SendSMS(ctx context.Context, notification *SMSNotification) error
}

// TwilioSMSService implements SMS delivery using Twilio
type TwilioSMSService struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSService creates a Twilio SMS service from environment
func NewTwilioSMSService() (SMSService, error) {
	accountSID := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_PHONE_NUMBER")

	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("incomplete Twilio configuration")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSMSService{
		client: client,
		from:   from,
	}, nil
}

// SendSMS sends a single SMS
func (s *TwilioSMSService) SendSMS(ctx context.Context, notification *SMSNotification) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(notification.To)
	params.SetFrom(s.from)
	params.SetBody(notification.Message)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("Failed to send SMS to %s: %v", notification.To, err)
		return err
	}

	if resp.Sid != nil {
		log.Printf("Sent SMS to %s with SID: %s", notification.To, *resp.Sid)
	}

	return nil
}

// MockSMSService records sends for testing
type MockSMSService struct {
	mu       sync.Mutex
	SentSMS  []*SMSNotification
	FailNext error
}

func NewMockSMSService() *MockSMSService {
	return &MockSMSService{
		SentSMS: make([]*SMSNotification, 0),
	}
}

func (m *MockSMSService) SendSMS(ctx context.Context, notification *SMSNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		return m.FailNext
	}
	m.SentSMS = append(m.SentSMS, notification)
	log.Printf("Mock: Sending SMS to %s", notification.To)
	return nil
}
