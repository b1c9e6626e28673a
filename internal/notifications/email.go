// internal/notifications/email.go

package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// EmailService delivers email notifications
type EmailService interface {
	SendEmail(ctx context.Context, notification *EmailNotification) error
}

// SMTPEmailService implements email delivery over SMTP
type SMTPEmailService struct {
	from     string
	fromName string
	dialer   *gomail.Dialer
}

// NewSMTPEmailService creates an SMTP email service from environment
func NewSMTPEmailService() (EmailService, error) {
	host := os.Getenv("SMTP_HOST")
	port := 587
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}

	username := os.Getenv("SMTP_USERNAME")
	password := os.Getenv("SMTP_PASSWORD")
	from := os.Getenv("SMTP_FROM")
	fromName := os.Getenv("SMTP_FROM_NAME")

	if fromName == "" {
		fromName = "Rentora"
	}

	if host == "" || username == "" || password == "" || from == "" {
		return nil, fmt.Errorf("incomplete SMTP configuration")
	}

	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{InsecureSkipVerify: false}

	return &SMTPEmailService{
		from:     from,
		fromName: fromName,
		dialer:   dialer,
	}, nil
}

// SendEmail sends a single email
func (s *SMTPEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	m := gomail.NewMessage()

	m.SetHeader("From", m.FormatAddress(s.from, s.fromName))
	m.SetHeader("To", notification.To)
	m.SetHeader("Subject", notification.Subject)

	if notification.HTML != "" {
		m.SetBody("text/html", notification.HTML)
		if notification.Body != "" {
			m.AddAlternative("text/plain", notification.Body)
		}
	} else {
		m.SetBody("text/plain", notification.Body)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		log.Printf("Failed to send email to %s: %v", notification.To, err)
		return err
	}

	return nil
}

// SendGridEmailService implements email delivery via the SendGrid API
type SendGridEmailService struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridEmailService creates a SendGrid email service from environment
func NewSendGridEmailService() (EmailService, error) {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	from := os.Getenv("SENDGRID_FROM_EMAIL")
	fromName := os.Getenv("SENDGRID_FROM_NAME")

	if fromName == "" {
		fromName = "Rentora"
	}

	if apiKey == "" || from == "" {
		return nil, fmt.Errorf("incomplete SendGrid configuration")
	}

	return &SendGridEmailService{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}, nil
}

// SendEmail sends a single email via SendGrid
func (s *SendGridEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail("", notification.To)
	message := sgmail.NewSingleEmail(from, notification.Subject, to, notification.Body, notification.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		log.Printf("Failed to send email to %s: %v", notification.To, err)
		return err
	}
	if response.StatusCode >= 400 {
		log.Printf("SendGrid rejected email to %s: status %d", notification.To, response.StatusCode)
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}

	return nil
}

// MockEmailService records sends for testing
type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []*EmailNotification
	FailNext   error
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{
		SentEmails: make([]*EmailNotification, 0),
	}
}

func (m *MockEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		return m.FailNext
	}
	m.SentEmails = append(m.SentEmails, notification)
	log.Printf("Mock: Sending email to %s: %s", notification.To, notification.Subject)
	return nil
}
