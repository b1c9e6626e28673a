package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBehaviorStore struct {
	pattern     *BehaviorPattern
	invalidated []int64
}

func (f *fakeBehaviorStore) Get(ctx context.Context, userID int64) (*BehaviorPattern, error) {
	return f.pattern, nil
}

func (f *fakeBehaviorStore) Invalidate(ctx context.Context, userID int64) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type serviceEnv struct {
	repo     *fakeRepo
	queue    *MemoryQueue
	behavior *fakeBehaviorStore
	inApp    *MockInAppService
	email    *MockEmailService
	svc      Service
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	env := &serviceEnv{
		repo:     newFakeRepo(),
		queue:    NewMemoryQueue(),
		behavior: &fakeBehaviorStore{},
		inApp:    NewMockInAppService(),
		email:    NewMockEmailService(),
	}
	env.repo.users[1] = testUser(1)

	dispatcher := NewDispatcher(env.repo, env.queue, NewMockPushService(), env.email, NewMockSMSService(), env.inApp, nil)
	env.svc = NewService(env.repo, env.queue, env.behavior, NewWeightedScorer(), dispatcher, nil, nil)
	return env
}

func TestSendCreatesPendingNotification(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["welcome"] = testTemplate("welcome", CategoryMessages, PriorityMedium)

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "welcome",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, n.Delivery.Status)
	assert.Zero(t, n.Delivery.Attempts)
	assert.Equal(t, "Hello Ada", n.Title)
	assert.Equal(t, "There is news in Lagos", n.Body)
	assert.Equal(t, ChannelList{ChannelInApp}, n.Delivery.Channels)
	assert.NotZero(t, n.Intelligence.Score)
	assert.Equal(t, 1, env.queue.Len())
}

func TestSendUnknownTemplate(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "missing",
	})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSendUnknownUser(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["welcome"] = testTemplate("welcome", CategoryMessages, PriorityMedium)

	_, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      99,
		TemplateKey: "welcome",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSendUrgentSchedulesImmediately(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["alert"] = testTemplate("alert", CategorySecurity, PriorityUrgent)

	before := time.Now()
	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "alert",
	})
	require.NoError(t, err)

	assert.WithinDuration(t, before, n.Delivery.ScheduledAt, 5*time.Second)
}

func TestSendSmartFilterDemotesToInApp(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["promo"] = testTemplate("promo", CategoryPromotions, PriorityLow)

	prefs := DefaultPreferences(1)
	prefs.SmartFilter = true
	prefs.ImportanceThreshold = 9.5
	require.NoError(t, env.repo.SavePreferences(context.Background(), prefs))

	// Explicit channel override would normally win, but the filter
	// still demotes a low-relevance notification
	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "promo",
		Channels:    []DeliveryChannel{ChannelInApp, ChannelEmail},
	})
	require.NoError(t, err)

	assert.Equal(t, ChannelList{ChannelInApp}, n.Delivery.Channels)
}

func TestSendChannelOverride(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["notice"] = testTemplate("notice", CategorySystem, PriorityHigh)

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "notice",
		Channels:    []DeliveryChannel{ChannelEmail},
	})
	require.NoError(t, err)

	assert.Equal(t, ChannelList{ChannelEmail}, n.Delivery.Channels)
}

func TestSendTemplateExpiry(t *testing.T) {
	env := newServiceEnv(t)
	tpl := testTemplate("flash", CategoryPromotions, PriorityMedium)
	ttl := 2 * time.Hour
	tpl.ExpiresAfter = &ttl
	env.repo.templates["flash"] = tpl

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "flash",
	})
	require.NoError(t, err)

	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, n.Delivery.ScheduledAt.Add(ttl), *n.ExpiresAt)
}

func TestBroadcastSkipsFailedRecipients(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["news"] = testTemplate("news", CategorySystem, PriorityMedium)
	env.repo.users[2] = testUser(2)

	created, err := env.svc.Broadcast(context.Background(), &BroadcastRequest{
		UserIDs:     []int64{1, 77, 2},
		TemplateKey: "news",
	})
	require.NoError(t, err)

	assert.Len(t, created, 2)
}

func TestBroadcastUnknownTemplateFailsFast(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.svc.Broadcast(context.Background(), &BroadcastRequest{
		UserIDs:     []int64{1},
		TemplateKey: "missing",
	})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestProcessQueueDispatchesDueNotifications(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["alert"] = testTemplate("alert", CategorySecurity, PriorityUrgent)

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "alert",
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.ProcessQueue(context.Background()))

	stored, err := env.repo.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Delivery.Status)
	assert.Len(t, env.inApp.SentMessages, 1)
}

func TestProcessQueueSkipsCancelled(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["alert"] = testTemplate("alert", CategorySecurity, PriorityUrgent)

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "alert",
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancel(context.Background(), 1, n.ID))
	require.NoError(t, env.svc.ProcessQueue(context.Background()))

	stored, err := env.repo.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Delivery.Status)
	assert.Empty(t, env.inApp.SentMessages)
}

func TestProcessQueueRequeuesOnDispatchError(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["alert"] = testTemplate("alert", CategorySecurity, PriorityUrgent)

	n, err := env.svc.Send(context.Background(), &SendRequest{
		UserID:      1,
		TemplateKey: "alert",
	})
	require.NoError(t, err)

	// Recipient lookup fails mid-dispatch; the claimed entry must go
	// back on the queue instead of stranding the notification
	delete(env.repo.users, 1)
	require.NoError(t, env.svc.ProcessQueue(context.Background()))

	stored, err := env.repo.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Delivery.Status)
	assert.Equal(t, 1, env.queue.Len(), "failed dispatch must stay claimable")

	// Once the lookup recovers the next sweep delivers it
	env.repo.users[1] = testUser(1)
	require.NoError(t, env.svc.ProcessQueue(context.Background()))

	stored, err = env.repo.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Delivery.Status)
	assert.Zero(t, env.queue.Len())
}

func TestCancelOnlyPending(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["alert"] = testTemplate("alert", CategorySecurity, PriorityUrgent)

	n, err := env.svc.Send(context.Background(), &SendRequest{UserID: 1, TemplateKey: "alert"})
	require.NoError(t, err)

	require.NoError(t, env.svc.ProcessQueue(context.Background()))

	err = env.svc.Cancel(context.Background(), 1, n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestUpdatePreferencesPartial(t *testing.T) {
	env := newServiceEnv(t)
	disabled := false
	threshold := 7.5

	prefs, err := env.svc.UpdatePreferences(context.Background(), 1, &UpdatePreferencesRequest{
		PushEnabled:         &disabled,
		ImportanceThreshold: &threshold,
		Categories:          map[Category]*bool{CategoryPromotions: &disabled},
	})
	require.NoError(t, err)

	assert.False(t, prefs.PushEnabled)
	assert.True(t, prefs.InAppEnabled, "untouched fields keep defaults")
	assert.Equal(t, 7.5, prefs.ImportanceThreshold)
	assert.False(t, prefs.Categories.Enabled(CategoryPromotions))
	assert.True(t, prefs.Categories.Enabled(CategoryMessages))
}

func TestUpdatePreferencesRejectsBadQuietHours(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.svc.UpdatePreferences(context.Background(), 1, &UpdatePreferencesRequest{
		QuietHours: &QuietHours{Enabled: true, Start: "25:00", End: "08:00"},
	})
	assert.Error(t, err)
}

func TestUpdatePreferencesRejectsBadThreshold(t *testing.T) {
	env := newServiceEnv(t)
	threshold := 12.0

	_, err := env.svc.UpdatePreferences(context.Background(), 1, &UpdatePreferencesRequest{
		ImportanceThreshold: &threshold,
	})
	assert.Error(t, err)
}

func TestRecordInteractionInvalidatesBehaviorCache(t *testing.T) {
	env := newServiceEnv(t)

	err := env.svc.RecordInteraction(context.Background(), 1, &RecordInteractionRequest{
		Category: CategoryMessages,
		Action:   "open",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, env.behavior.invalidated)
	assert.Len(t, env.repo.events, 1)
}

func TestRegisterAndUnregisterDevice(t *testing.T) {
	env := newServiceEnv(t)

	device, err := env.svc.RegisterDevice(context.Background(), 1, &RegisterDeviceRequest{
		Platform: PlatformAndroid,
		Token:    "tok-1",
		DeviceID: "device-1",
	})
	require.NoError(t, err)
	assert.True(t, device.IsActive)

	require.NoError(t, env.svc.UnregisterDevice(context.Background(), 1, "device-1"))

	err = env.svc.UnregisterDevice(context.Background(), 1, "device-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestGetNotificationScopedToOwner(t *testing.T) {
	env := newServiceEnv(t)
	env.repo.templates["welcome"] = testTemplate("welcome", CategoryMessages, PriorityMedium)

	n, err := env.svc.Send(context.Background(), &SendRequest{UserID: 1, TemplateKey: "welcome"})
	require.NoError(t, err)

	_, err = env.svc.GetNotification(context.Background(), 2, n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestCachedBehaviorStoreColdUser(t *testing.T) {
	repo := newFakeRepo()
	store := NewCachedBehaviorStore(repo, nil, 0)

	pattern, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, pattern, "cold users score with neutral defaults")
}

func TestCachedBehaviorStoreReadsRepo(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.SaveBehaviorPattern(context.Background(), flatPattern(1, 0.4)))
	store := NewCachedBehaviorStore(repo, nil, 0)

	pattern, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, int64(1), pattern.UserID)
}

func TestSendRequestValidation(t *testing.T) {
	// Guard against requests that skip the HTTP layer
	env := newServiceEnv(t)
	env.repo.templates["welcome"] = testTemplate("welcome", CategoryMessages, PriorityMedium)

	_, err := env.svc.Send(context.Background(), &SendRequest{UserID: 42, TemplateKey: "welcome"})
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
