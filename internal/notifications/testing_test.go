package notifications

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository used across the package tests
type fakeRepo struct {
	mu            sync.Mutex
	nextID        int64
	notifications map[int64]*Notification
	templates     map[string]*Template
	preferences   map[int64]*Preferences
	patterns      map[int64]*BehaviorPattern
	devices       map[int64][]*Device
	users         map[int64]*UserContact
	events        []*InteractionEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		notifications: make(map[int64]*Notification),
		templates:     make(map[string]*Template),
		preferences:   make(map[int64]*Preferences),
		patterns:      make(map[int64]*BehaviorPattern),
		devices:       make(map[int64][]*Device),
		users:         make(map[int64]*UserContact),
	}
}

func (f *fakeRepo) CreateNotification(ctx context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	copied := *n
	f.notifications[n.ID] = &copied
	return nil
}

func (f *fakeRepo) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	copied := *n
	return &copied, nil
}

func (f *fakeRepo) GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Notification
	for _, n := range f.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Delivery.ReadAt != nil {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeRepo) GetUserNotificationCount(ctx context.Context, userID int64, unreadOnly bool) (int, error) {
	list, _ := f.GetUserNotifications(ctx, userID, 0, 0, unreadOnly)
	return len(list), nil
}

func (f *fakeRepo) UpdateDelivery(ctx context.Context, id int64, d *Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.Delivery = *d
	return nil
}

func (f *fakeRepo) MarkAsRead(ctx context.Context, id, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	now := time.Now()
	n.Delivery.Status = StatusRead
	n.Delivery.ReadAt = &now
	return nil
}

func (f *fakeRepo) MarkAllAsRead(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, n := range f.notifications {
		if n.UserID == userID && n.Delivery.ReadAt == nil {
			n.Delivery.Status = StatusRead
			n.Delivery.ReadAt = &now
		}
	}
	return nil
}

func (f *fakeRepo) MarkAsDelivered(ctx context.Context, id, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID || n.Delivery.Status != StatusSent {
		return ErrNotificationNotFound
	}
	now := time.Now()
	n.Delivery.Status = StatusDelivered
	n.Delivery.DeliveredAt = &now
	return nil
}

func (f *fakeRepo) CancelNotification(ctx context.Context, id, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID || n.Delivery.Status != StatusPending {
		return ErrNotificationNotFound
	}
	n.Delivery.Status = StatusCancelled
	return nil
}

func (f *fakeRepo) DeleteNotification(ctx context.Context, id, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	delete(f.notifications, id)
	return nil
}

func (f *fakeRepo) DeleteOldNotifications(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, n := range f.notifications {
		terminal := n.Delivery.Status == StatusRead || n.Delivery.Status == StatusFailed || n.Delivery.Status == StatusCancelled
		if terminal && n.CreatedAt.Before(before) {
			delete(f.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeRepo) GetTemplateByKey(ctx context.Context, key string) (*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.templates[key]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeRepo) CreateTemplate(ctx context.Context, tpl *Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tpl.ID = f.nextID
	f.templates[tpl.Key] = tpl
	return nil
}

func (f *fakeRepo) GetAllTemplates(ctx context.Context) ([]*Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Template
	for _, tpl := range f.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (f *fakeRepo) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prefs, ok := f.preferences[userID]; ok {
		copied := *prefs
		return &copied, nil
	}
	defaults := DefaultPreferences(userID)
	f.preferences[userID] = defaults
	copied := *defaults
	return &copied, nil
}

func (f *fakeRepo) SavePreferences(ctx context.Context, prefs *Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *prefs
	f.preferences[prefs.UserID] = &copied
	return nil
}

func (f *fakeRepo) GetBehaviorPattern(ctx context.Context, userID int64) (*BehaviorPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pattern, ok := f.patterns[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return pattern, nil
}

func (f *fakeRepo) SaveBehaviorPattern(ctx context.Context, pattern *BehaviorPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[pattern.UserID] = pattern
	return nil
}

func (f *fakeRepo) SaveDevice(ctx context.Context, device *Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	device.ID = f.nextID
	device.IsActive = true
	f.devices[device.UserID] = append(f.devices[device.UserID], device)
	return nil
}

func (f *fakeRepo) GetUserDevices(ctx context.Context, userID int64, activeOnly bool) ([]*Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Device
	for _, d := range f.devices[userID] {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRepo) DeactivateDevice(ctx context.Context, userID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices[userID] {
		if d.Token == token {
			d.IsActive = false
		}
	}
	return nil
}

func (f *fakeRepo) DeleteDevice(ctx context.Context, userID int64, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	devices := f.devices[userID]
	for i, d := range devices {
		if d.DeviceID == deviceID {
			f.devices[userID] = append(devices[:i], devices[i+1:]...)
			return nil
		}
	}
	return ErrDeviceNotFound
}

func (f *fakeRepo) RecordInteraction(ctx context.Context, event *InteractionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	event.ID = f.nextID
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRepo) GetUserContact(ctx context.Context, userID int64) (*UserContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepo) GetUserContacts(ctx context.Context, userIDs []int64) ([]*UserContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*UserContact
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// test fixtures

func testTemplate(key string, category Category, priority Priority) *Template {
	return &Template{
		ID:            1,
		Key:           key,
		Kind:          KindInfo,
		Category:      category,
		Priority:      priority,
		TitleTemplate: "Hello {{first_name}}",
		BodyTemplate:  "There is news in {{city}}",
	}
}

func testUser(id int64) *UserContact {
	return &UserContact{
		ID:       id,
		FullName: "Ada Okafor",
		Email:    "ada@example.com",
		Phone:    "+2348012345678",
		City:     "Lagos",
		Role:     RoleTenant,
	}
}

func flatPattern(userID int64, level float64) *BehaviorPattern {
	hourly := make([]float64, 24)
	for i := range hourly {
		hourly[i] = level
	}
	return &BehaviorPattern{
		UserID:         userID,
		HourlyActivity: hourly,
		CategoryEngagement: map[Category]float64{
			CategoryMessages: 0.8,
		},
	}
}
