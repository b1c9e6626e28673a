// internal/notifications/dispatcher.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	maxDeliveryAttempts = 3

	// Transient provider hiccups are retried inside a single dispatch
	// attempt before the channel counts as failed.
	transientRetries = 2
)

// Dispatcher fans one notification out to its selected channels. Channels
// fail independently; outcomes persist so a later attempt never re-sends
// a channel that already succeeded.
type Dispatcher struct {
	repo    Repository
	queue   Queue
	push    PushService
	email   EmailService
	sms     SMSService
	inApp   InAppService
	metrics *Metrics
}

// NewDispatcher creates a delivery dispatcher
func NewDispatcher(repo Repository, queue Queue, push PushService, email EmailService, sms SMSService, inApp InAppService, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		queue:   queue,
		push:    push,
		email:   email,
		sms:     sms,
		inApp:   inApp,
		metrics: metrics,
	}
}

// Dispatch runs one delivery attempt. All remaining channels are tried
// concurrently and the attempt settles only after every channel reports.
// All channels succeeded: status becomes sent. Any channel failed:
// the notification goes back to pending with an exponential delay, until
// the third attempt makes failure terminal.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if n.Delivery.Status != StatusPending {
		return fmt.Errorf("notification %d is %s: %w", n.ID, n.Delivery.Status, ErrAlreadyTerminal)
	}
	if n.ExpiresAt != nil && time.Now().After(*n.ExpiresAt) {
		n.Delivery.Status = StatusCancelled
		return d.repo.UpdateDelivery(ctx, n.ID, &n.Delivery)
	}

	user, err := d.repo.GetUserContact(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient for notification %d: %w", n.ID, err)
	}

	if n.Delivery.Outcomes == nil {
		n.Delivery.Outcomes = make(ChannelOutcomes)
	}

	var pending []DeliveryChannel
	for _, ch := range n.Delivery.Channels {
		if outcome, ok := n.Delivery.Outcomes[ch]; ok && outcome.Success {
			continue
		}
		pending = append(pending, ch)
	}

	outcomes := make(chan *ChannelOutcome, len(pending))
	var wg sync.WaitGroup
	for _, ch := range pending {
		wg.Add(1)
		go func(channel DeliveryChannel) {
			defer wg.Done()
			outcomes <- d.deliverChannel(ctx, channel, n, user)
		}(ch)
	}
	wg.Wait()
	close(outcomes)

	allSucceeded := true
	for outcome := range outcomes {
		n.Delivery.Outcomes[outcome.Channel] = outcome
		if d.metrics != nil {
			d.metrics.ObserveChannelOutcome(outcome.Channel, outcome.Success)
		}
		if !outcome.Success {
			allSucceeded = false
		}
	}

	n.Delivery.Attempts++

	now := time.Now()
	switch {
	case allSucceeded:
		n.Delivery.Status = StatusSent
		n.Delivery.SentAt = &now
		if d.metrics != nil {
			d.metrics.NotificationSent(n.Category)
		}

	case n.Delivery.Attempts >= maxDeliveryAttempts:
		n.Delivery.Status = StatusFailed
		if d.metrics != nil {
			d.metrics.NotificationFailed(n.Category)
		}
		log.Printf("Notification %d failed permanently after %d attempts", n.ID, n.Delivery.Attempts)

	default:
		// 2^attempts minutes: 2 after the first failure, 4 after the second
		delay := time.Duration(1<<n.Delivery.Attempts) * time.Minute
		n.Delivery.Status = StatusPending
		n.Delivery.ScheduledAt = now.Add(delay)
		log.Printf("Notification %d attempt %d failed, retrying in %s", n.ID, n.Delivery.Attempts, delay)
	}

	if err := d.repo.UpdateDelivery(ctx, n.ID, &n.Delivery); err != nil {
		return fmt.Errorf("failed to persist delivery state for notification %d: %w", n.ID, err)
	}

	if n.Delivery.Status == StatusPending {
		if err := d.queue.Enqueue(ctx, n.ID, n.Delivery.ScheduledAt); err != nil {
			return fmt.Errorf("failed to requeue notification %d: %w", n.ID, err)
		}
	}
	return nil
}

// deliverChannel sends over one channel, retrying transient errors a
// couple of times before recording the failure.
func (d *Dispatcher) deliverChannel(ctx context.Context, channel DeliveryChannel, n *Notification, user *UserContact) *ChannelOutcome {
	operation := func() error {
		return d.sendOnce(ctx, channel, n, user)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transientRetries), ctx)

	err := backoff.Retry(operation, policy)

	outcome := &ChannelOutcome{Channel: channel}
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	now := time.Now()
	outcome.Success = true
	outcome.DeliveredAt = &now
	return outcome
}

func (d *Dispatcher) sendOnce(ctx context.Context, channel DeliveryChannel, n *Notification, user *UserContact) error {
	switch channel {
	case ChannelInApp:
		return d.inApp.SendInApp(ctx, n.UserID, &InAppMessage{
			NotificationID: n.ID,
			Kind:           n.Kind,
			Category:       n.Category,
			Title:          n.Title,
			Body:           n.Body,
			Actions:        n.Actions,
			Data:           n.Data,
		})

	case ChannelPush:
		devices, err := d.repo.GetUserDevices(ctx, n.UserID, true)
		if err != nil {
			return fmt.Errorf("failed to load devices: %w", err)
		}
		tokens := make([]string, 0, len(devices))
		for _, device := range devices {
			tokens = append(tokens, device.Token)
		}
		if len(tokens) == 0 {
			return backoff.Permanent(errors.New("no active push tokens"))
		}
		push := &PushNotification{
			Tokens:   tokens,
			Title:    n.Title,
			Body:     n.Body,
			Priority: n.Priority,
			Data: map[string]string{
				"notification_id": fmt.Sprintf("%d", n.ID),
				"category":        string(n.Category),
			},
		}
		if url, ok := n.Data["image_url"].(string); ok {
			push.Image = url
		}
		return d.push.SendPush(ctx, push)

	case ChannelEmail:
		if user.Email == "" {
			return backoff.Permanent(errors.New("user has no email address"))
		}
		return d.email.SendEmail(ctx, &EmailNotification{
			To:      user.Email,
			Subject: n.Title,
			Body:    n.Body,
		})

	case ChannelSMS:
		if user.Phone == "" {
			return backoff.Permanent(errors.New("user has no phone number"))
		}
		return d.sms.SendSMS(ctx, &SMSNotification{
			To:      user.Phone,
			Message: fmt.Sprintf("%s: %s", n.Title, n.Body),
		})

	default:
		return backoff.Permanent(fmt.Errorf("unknown channel %q", channel))
	}
}
