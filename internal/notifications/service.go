// internal/notifications/service.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Service is the notification orchestrator: it scores, personalizes,
// routes and schedules notifications, and owns their lifecycle.
type Service interface {
	// Creation
	Send(ctx context.Context, req *SendRequest) (*Notification, error)
	Broadcast(ctx context.Context, req *BroadcastRequest) ([]*Notification, error)

	// Queue processing
	ProcessQueue(ctx context.Context) error

	// Lifecycle
	GetNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) (*NotificationsResponse, error)
	GetNotification(ctx context.Context, userID, notificationID int64) (*Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
	MarkAsDelivered(ctx context.Context, userID, notificationID int64) error
	Cancel(ctx context.Context, userID, notificationID int64) error
	Delete(ctx context.Context, userID, notificationID int64) error
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)

	// Preferences
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
	UpdatePreferences(ctx context.Context, userID int64, req *UpdatePreferencesRequest) (*Preferences, error)

	// Devices
	RegisterDevice(ctx context.Context, userID int64, req *RegisterDeviceRequest) (*Device, error)
	UnregisterDevice(ctx context.Context, userID int64, deviceID string) error

	// Behavior
	RecordInteraction(ctx context.Context, userID int64, req *RecordInteractionRequest) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	sweepBatchSize  = 100
)

// MediaResolver turns a stored media key into a fetchable URL.
// Implemented by the S3 store; nil disables media resolution.
type MediaResolver interface {
	ResolveURL(ctx context.Context, key string) (string, error)
}

type service struct {
	repo         Repository
	queue        Queue
	behavior     BehaviorStore
	scorer       Scorer
	personalizer *Personalizer
	selector     *Selector
	dispatcher   *Dispatcher
	metrics      *Metrics
	media        MediaResolver

	now func() time.Time
}

// NewService creates the notification orchestrator. media may be nil
// when no object store is configured.
func NewService(repo Repository, queue Queue, behavior BehaviorStore, scorer Scorer, dispatcher *Dispatcher, metrics *Metrics, media MediaResolver) Service {
	return &service{
		repo:         repo,
		queue:        queue,
		behavior:     behavior,
		scorer:       scorer,
		personalizer: NewPersonalizer(),
		selector:     NewSelector(),
		dispatcher:   dispatcher,
		metrics:      metrics,
		media:        media,
		now:          time.Now,
	}
}

// Send runs the full pipeline for one notification: score, personalize,
// select channels, schedule, persist, enqueue. Template and recipient
// problems surface here; later delivery failures are recorded on the
// notification instead of raised.
func (s *service) Send(ctx context.Context, req *SendRequest) (*Notification, error) {
	tpl, err := s.repo.GetTemplateByKey(ctx, req.TemplateKey)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserContact(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	prefs, err := s.repo.GetPreferences(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	pattern, err := s.behavior.Get(ctx, req.UserID)
	if err != nil {
		// Behavior data is optional; score with neutral defaults
		log.Printf("Behavior lookup failed for user %d, scoring neutrally: %v", req.UserID, err)
		pattern = nil
	}

	now := s.now()
	intelligence := s.scorer.Score(tpl, prefs, pattern, req.Context, now)
	if s.metrics != nil {
		s.metrics.ObserveScore(intelligence.Score)
	}

	title, body, actions := s.personalizer.Personalize(tpl, user, req.Context, intelligence.Score, now)

	var channels ChannelList
	if len(req.Channels) > 0 {
		channels = ChannelList(req.Channels)
	} else {
		devices, err := s.repo.GetUserDevices(ctx, req.UserID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load devices: %w", err)
		}
		channels = s.selector.SelectChannels(tpl, prefs, devices, intelligence.PredictedEngagement)
	}

	// Smart filter demotes low-relevance notifications to the inbox only
	if prefs.SmartFilter && intelligence.Score < prefs.ImportanceThreshold &&
		tpl.Priority != PriorityUrgent && tpl.Category != CategorySecurity {
		channels = ChannelList{ChannelInApp}
		if s.metrics != nil {
			s.metrics.NotificationFiltered()
		}
	}

	scheduledAt := s.selector.ScheduleAt(tpl, prefs, pattern, now)
	intelligence.OptimalSendAt = scheduledAt

	// Listing photos arrive as object keys; resolve them once at
	// creation so every channel shares the same URL
	if s.media != nil && req.Data != nil {
		if key, ok := req.Data["image_key"].(string); ok && key != "" {
			if url, err := s.media.ResolveURL(ctx, key); err == nil {
				req.Data["image_url"] = url
			} else {
				log.Printf("Failed to resolve media key %q: %v", key, err)
			}
		}
	}

	n := &Notification{
		UserID:      req.UserID,
		TemplateKey: tpl.Key,
		Kind:        tpl.Kind,
		Category:    tpl.Category,
		Priority:    tpl.Priority,
		Title:       title,
		Body:        body,
		Actions:     actions,
		Data:        req.Data,
		Delivery: Delivery{
			Channels:    channels,
			ScheduledAt: scheduledAt,
			Status:      StatusPending,
			Outcomes:    make(ChannelOutcomes),
		},
		Intelligence: intelligence,
	}
	if tpl.ExpiresAfter != nil {
		expiresAt := scheduledAt.Add(*tpl.ExpiresAfter)
		n.ExpiresAt = &expiresAt
	}

	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, n.ID, scheduledAt); err != nil {
		return nil, fmt.Errorf("notification %d created but not enqueued: %w", n.ID, err)
	}

	if s.metrics != nil {
		s.metrics.NotificationCreated(n.Category)
	}
	return n, nil
}

// Broadcast sends one template to many users. Each recipient goes
// through the full pipeline so scoring and timing stay individual.
// Failed recipients are logged and skipped.
func (s *service) Broadcast(ctx context.Context, req *BroadcastRequest) ([]*Notification, error) {
	notifications := make([]*Notification, 0, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		n, err := s.Send(ctx, &SendRequest{
			UserID:      userID,
			TemplateKey: req.TemplateKey,
			Context:     req.Context,
			Data:        req.Data,
		})
		if err != nil {
			if errors.Is(err, ErrTemplateNotFound) {
				return nil, err
			}
			log.Printf("Broadcast skipped user %d: %v", userID, err)
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// ProcessQueue claims due notifications and dispatches them concurrently.
// The sweep settles only after every claimed notification finishes.
func (s *service) ProcessQueue(ctx context.Context) error {
	ids, err := s.queue.Due(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveSweepSize(len(ids))
	}
	if len(ids) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(notificationID int64) {
			defer wg.Done()
			if err := s.dispatchOne(ctx, notificationID); err != nil {
				log.Printf("Failed to dispatch notification %d: %v", notificationID, err)
			}
		}(id)
	}
	wg.Wait()
	return nil
}

func (s *service) dispatchOne(ctx context.Context, notificationID int64) error {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		// The queue entry was already claimed; a deleted notification is
		// dropped for good, anything else goes back for the next sweep
		if !errors.Is(err, ErrNotificationNotFound) {
			s.requeue(ctx, notificationID)
		}
		return err
	}
	if n.Delivery.Status != StatusPending {
		// Cancelled or already handled elsewhere
		return nil
	}

	start := s.now()
	err = s.dispatcher.Dispatch(ctx, n)
	if s.metrics != nil {
		s.metrics.ObserveDispatchDuration(s.now().Sub(start).Seconds())
	}
	if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		// A dispatch error before the delivery state was persisted leaves
		// the notification pending in the database. Re-enqueue so it stays
		// visible to future sweeps instead of being stranded.
		s.requeue(ctx, notificationID)
	}
	return err
}

func (s *service) requeue(ctx context.Context, notificationID int64) {
	if err := s.queue.Enqueue(ctx, notificationID, s.now()); err != nil {
		log.Printf("Failed to requeue notification %d after dispatch error: %v", notificationID, err)
	}
}

func (s *service) GetNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) (*NotificationsResponse, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.repo.GetUserNotifications(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.GetUserNotificationCount(ctx, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.GetUserNotificationCount(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	return &NotificationsResponse{
		Notifications: notifications,
		TotalCount:    total,
		UnreadCount:   unread,
		HasMore:       offset+len(notifications) < total,
	}, nil
}

func (s *service) GetNotification(ctx context.Context, userID, notificationID int64) (*Notification, error) {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

func (s *service) MarkAsRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkAsRead(ctx, notificationID, userID)
}

func (s *service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *service) MarkAsDelivered(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkAsDelivered(ctx, notificationID, userID)
}

// Cancel withdraws a pending notification and removes it from the queue
func (s *service) Cancel(ctx context.Context, userID, notificationID int64) error {
	if err := s.repo.CancelNotification(ctx, notificationID, userID); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, notificationID); err != nil {
		// The dispatcher skips non-pending entries, so a stale queue
		// entry is harmless
		log.Printf("Failed to dequeue cancelled notification %d: %v", notificationID, err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID, notificationID int64) error {
	if err := s.repo.DeleteNotification(ctx, notificationID, userID); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, notificationID); err != nil {
		log.Printf("Failed to dequeue deleted notification %d: %v", notificationID, err)
	}
	return nil
}

func (s *service) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.DeleteOldNotifications(ctx, s.now().Add(-olderThan))
}

func (s *service) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	return s.repo.GetPreferences(ctx, userID)
}

// UpdatePreferences applies a partial update over the current (or
// default) preference row
func (s *service) UpdatePreferences(ctx context.Context, userID int64, req *UpdatePreferencesRequest) (*Preferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.InAppEnabled != nil {
		prefs.InAppEnabled = *req.InAppEnabled
	}
	if req.PushEnabled != nil {
		prefs.PushEnabled = *req.PushEnabled
	}
	if req.EmailEnabled != nil {
		prefs.EmailEnabled = *req.EmailEnabled
	}
	if req.SMSEnabled != nil {
		prefs.SMSEnabled = *req.SMSEnabled
	}
	for cat, enabled := range req.Categories {
		if enabled == nil {
			continue
		}
		if prefs.Categories == nil {
			prefs.Categories = make(CategoryOptIns)
		}
		prefs.Categories[cat] = *enabled
	}
	if req.QuietHours != nil {
		if req.QuietHours.Enabled {
			if _, err := parseClock(req.QuietHours.Start); err != nil {
				return nil, fmt.Errorf("invalid quiet hours start: %w", err)
			}
			if _, err := parseClock(req.QuietHours.End); err != nil {
				return nil, fmt.Errorf("invalid quiet hours end: %w", err)
			}
		}
		prefs.QuietHours = QuietHoursCol{QuietHours: *req.QuietHours}
	}
	if req.SmartFilter != nil {
		prefs.SmartFilter = *req.SmartFilter
	}
	if req.ImportanceThreshold != nil {
		if *req.ImportanceThreshold < 0 || *req.ImportanceThreshold > 10 {
			return nil, fmt.Errorf("importance threshold must be between 0 and 10")
		}
		prefs.ImportanceThreshold = *req.ImportanceThreshold
	}

	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *service) RegisterDevice(ctx context.Context, userID int64, req *RegisterDeviceRequest) (*Device, error) {
	device := &Device{
		UserID:   userID,
		Platform: req.Platform,
		Token:    req.Token,
		DeviceID: req.DeviceID,
	}
	if err := s.repo.SaveDevice(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *service) UnregisterDevice(ctx context.Context, userID int64, deviceID string) error {
	return s.repo.DeleteDevice(ctx, userID, deviceID)
}

// RecordInteraction stores the event and invalidates the cached behavior
// pattern so the next send sees fresh engagement data
func (s *service) RecordInteraction(ctx context.Context, userID int64, req *RecordInteractionRequest) error {
	event := &InteractionEvent{
		UserID:     userID,
		Category:   req.Category,
		Channel:    req.Channel,
		Action:     req.Action,
		OccurredAt: s.now(),
	}
	if err := s.repo.RecordInteraction(ctx, event); err != nil {
		return err
	}
	if err := s.behavior.Invalidate(ctx, userID); err != nil {
		log.Printf("Failed to invalidate behavior cache for user %d: %v", userID, err)
	}
	return nil
}
