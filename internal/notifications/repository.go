// internal/notifications/repository.go

package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository interface {
	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, notificationID int64) (*Notification, error)
	GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error)
	GetUserNotificationCount(ctx context.Context, userID int64, unreadOnly bool) (int, error)
	UpdateDelivery(ctx context.Context, notificationID int64, d *Delivery) error
	MarkAsRead(ctx context.Context, notificationID, userID int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
	MarkAsDelivered(ctx context.Context, notificationID, userID int64) error
	CancelNotification(ctx context.Context, notificationID, userID int64) error
	DeleteNotification(ctx context.Context, notificationID, userID int64) error
	DeleteOldNotifications(ctx context.Context, before time.Time) (int64, error)

	// Templates
	GetTemplateByKey(ctx context.Context, key string) (*Template, error)
	CreateTemplate(ctx context.Context, tpl *Template) error
	GetAllTemplates(ctx context.Context) ([]*Template, error)

	// Preferences
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs *Preferences) error

	// Behavior patterns
	GetBehaviorPattern(ctx context.Context, userID int64) (*BehaviorPattern, error)
	SaveBehaviorPattern(ctx context.Context, pattern *BehaviorPattern) error

	// Devices
	SaveDevice(ctx context.Context, device *Device) error
	GetUserDevices(ctx context.Context, userID int64, activeOnly bool) ([]*Device, error)
	DeactivateDevice(ctx context.Context, userID int64, token string) error
	DeleteDevice(ctx context.Context, userID int64, deviceID string) error

	// Interaction events
	RecordInteraction(ctx context.Context, event *InteractionEvent) error

	// Users
	GetUserContact(ctx context.Context, userID int64) (*UserContact, error)
	GetUserContacts(ctx context.Context, userIDs []int64) ([]*UserContact, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const notificationColumns = `
	id, user_id, template_key, kind, category, priority, title, body,
	actions, data, expires_at,
	channels, scheduled_at, sent_at, delivered_at, read_at, status, attempts, outcomes,
	intelligence, created_at`

// CreateNotification inserts a notification with its delivery and
// intelligence records
func (r *postgresRepository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, template_key, kind, category, priority, title, body,
			actions, data, expires_at,
			channels, scheduled_at, status, attempts, outcomes, intelligence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`

	intelligenceJSON, err := json.Marshal(n.Intelligence)
	if err != nil {
		return fmt.Errorf("failed to marshal intelligence: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query,
		n.UserID,
		n.TemplateKey,
		n.Kind,
		n.Category,
		n.Priority,
		n.Title,
		n.Body,
		n.Actions,
		n.Data,
		n.ExpiresAt,
		n.Delivery.Channels,
		n.Delivery.ScheduledAt,
		n.Delivery.Status,
		n.Delivery.Attempts,
		n.Delivery.Outcomes,
		intelligenceJSON,
	).Scan(&n.ID, &n.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (*Notification, error) {
	var n Notification
	var intelligenceJSON []byte

	err := scanner.Scan(
		&n.ID, &n.UserID, &n.TemplateKey, &n.Kind, &n.Category, &n.Priority,
		&n.Title, &n.Body,
		&n.Actions, &n.Data, &n.ExpiresAt,
		&n.Delivery.Channels, &n.Delivery.ScheduledAt, &n.Delivery.SentAt,
		&n.Delivery.DeliveredAt, &n.Delivery.ReadAt, &n.Delivery.Status,
		&n.Delivery.Attempts, &n.Delivery.Outcomes,
		&intelligenceJSON, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if intelligenceJSON != nil {
		if err := json.Unmarshal(intelligenceJSON, &n.Intelligence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intelligence: %w", err)
		}
	}
	return &n, nil
}

func (r *postgresRepository) GetNotification(ctx context.Context, notificationID int64) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, notificationID)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL AND status NOT IN ('failed', 'cancelled')`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *postgresRepository) GetUserNotificationCount(ctx context.Context, userID int64, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL AND status NOT IN ('failed', 'cancelled')`
	}

	var count int
	err := r.db.GetContext(ctx, &count, query, userID)
	return count, err
}

// UpdateDelivery persists delivery state after a dispatch attempt
func (r *postgresRepository) UpdateDelivery(ctx context.Context, notificationID int64, d *Delivery) error {
	query := `
		UPDATE notifications
		SET scheduled_at = $2, sent_at = $3, delivered_at = $4, read_at = $5,
			status = $6, attempts = $7, outcomes = $8
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		notificationID,
		d.ScheduledAt, d.SentAt, d.DeliveredAt, d.ReadAt,
		d.Status, d.Attempts, d.Outcomes,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	query := `
		UPDATE notifications
		SET status = 'read', read_at = NOW(),
			delivered_at = COALESCE(delivered_at, NOW())
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL
		  AND status IN ('sent', 'delivered')`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) MarkAllAsRead(ctx context.Context, userID int64) error {
	query := `
		UPDATE notifications
		SET status = 'read', read_at = NOW(),
			delivered_at = COALESCE(delivered_at, NOW())
		WHERE user_id = $1 AND read_at IS NULL
		  AND status IN ('sent', 'delivered')`

	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *postgresRepository) MarkAsDelivered(ctx context.Context, notificationID, userID int64) error {
	query := `
		UPDATE notifications
		SET status = 'delivered', delivered_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'sent'`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as delivered: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// CancelNotification cancels a pending notification. Anything already
// sent stays untouched.
func (r *postgresRepository) CancelNotification(ctx context.Context, notificationID, userID int64) error {
	query := `
		UPDATE notifications
		SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteNotification(ctx context.Context, notificationID, userID int64) error {
	query := `DELETE FROM notifications WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteOldNotifications(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE created_at < $1 AND status IN ('read', 'failed', 'cancelled')`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// GetTemplateByKey fetches one immutable template definition
func (r *postgresRepository) GetTemplateByKey(ctx context.Context, key string) (*Template, error) {
	var tpl Template
	query := `
		SELECT id, key, kind, category, priority, title_template, body_template,
			   actions, expires_after, created_at
		FROM notification_templates
		WHERE key = $1`

	err := r.db.GetContext(ctx, &tpl, query, key)
	if err == sql.ErrNoRows {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tpl, nil
}

func (r *postgresRepository) CreateTemplate(ctx context.Context, tpl *Template) error {
	query := `
		INSERT INTO notification_templates
			(key, kind, category, priority, title_template, body_template, actions, expires_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		tpl.Key, tpl.Kind, tpl.Category, tpl.Priority,
		tpl.TitleTemplate, tpl.BodyTemplate, tpl.Actions, tpl.ExpiresAfter,
	).Scan(&tpl.ID, &tpl.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetAllTemplates(ctx context.Context) ([]*Template, error) {
	var templates []*Template
	query := `
		SELECT id, key, kind, category, priority, title_template, body_template,
			   actions, expires_after, created_at
		FROM notification_templates
		ORDER BY key`

	err := r.db.SelectContext(ctx, &templates, query)
	return templates, err
}

// GetPreferences returns the user's preferences, creating the default
// row on first lookup
func (r *postgresRepository) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	var prefs Preferences
	query := `
		SELECT id, user_id, in_app_enabled, push_enabled, email_enabled, sms_enabled,
			   categories, quiet_hours, smart_filter, importance_threshold, updated_at
		FROM notification_preferences
		WHERE user_id = $1`

	err := r.db.GetContext(ctx, &prefs, query, userID)
	if err == sql.ErrNoRows {
		defaults := DefaultPreferences(userID)
		if err := r.SavePreferences(ctx, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

func (r *postgresRepository) SavePreferences(ctx context.Context, prefs *Preferences) error {
	query := `
		INSERT INTO notification_preferences
			(user_id, in_app_enabled, push_enabled, email_enabled, sms_enabled,
			 categories, quiet_hours, smart_filter, importance_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			in_app_enabled = EXCLUDED.in_app_enabled,
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			categories = EXCLUDED.categories,
			quiet_hours = EXCLUDED.quiet_hours,
			smart_filter = EXCLUDED.smart_filter,
			importance_threshold = EXCLUDED.importance_threshold,
			updated_at = NOW()
		RETURNING id, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		prefs.UserID,
		prefs.InAppEnabled, prefs.PushEnabled, prefs.EmailEnabled, prefs.SMSEnabled,
		prefs.Categories, prefs.QuietHours,
		prefs.SmartFilter, prefs.ImportanceThreshold,
	).Scan(&prefs.ID, &prefs.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetBehaviorPattern(ctx context.Context, userID int64) (*BehaviorPattern, error) {
	var patternJSON []byte
	var pattern BehaviorPattern

	query := `SELECT user_id, pattern, updated_at FROM user_behavior_patterns WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&pattern.UserID, &patternJSON, &pattern.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(patternJSON, &pattern); err != nil {
		return nil, fmt.Errorf("failed to unmarshal behavior pattern: %w", err)
	}
	return &pattern, nil
}

func (r *postgresRepository) SaveBehaviorPattern(ctx context.Context, pattern *BehaviorPattern) error {
	patternJSON, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("failed to marshal behavior pattern: %w", err)
	}

	query := `
		INSERT INTO user_behavior_patterns (user_id, pattern, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			pattern = EXCLUDED.pattern,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query, pattern.UserID, patternJSON)
	if err != nil {
		return fmt.Errorf("failed to save behavior pattern: %w", err)
	}
	return nil
}

// SaveDevice upserts a push device keyed by (user_id, device_id)
func (r *postgresRepository) SaveDevice(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO push_devices (user_id, platform, token, device_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW(), NOW())
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			platform = EXCLUDED.platform,
			token = EXCLUDED.token,
			is_active = true,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		device.UserID, device.Platform, device.Token, device.DeviceID,
	).Scan(&device.ID, &device.CreatedAt, &device.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	device.IsActive = true
	return nil
}

func (r *postgresRepository) GetUserDevices(ctx context.Context, userID int64, activeOnly bool) ([]*Device, error) {
	var devices []*Device
	query := `
		SELECT id, user_id, platform, token, device_id, is_active, created_at, updated_at
		FROM push_devices
		WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY updated_at DESC`

	err := r.db.SelectContext(ctx, &devices, query, userID)
	return devices, err
}

// DeactivateDevice retires a token rejected by the push provider
func (r *postgresRepository) DeactivateDevice(ctx context.Context, userID int64, token string) error {
	query := `
		UPDATE push_devices
		SET is_active = false, updated_at = NOW()
		WHERE user_id = $1 AND token = $2`

	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}

func (r *postgresRepository) DeleteDevice(ctx context.Context, userID int64, deviceID string) error {
	query := `DELETE FROM push_devices WHERE user_id = $1 AND device_id = $2`

	result, err := r.db.ExecContext(ctx, query, userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *postgresRepository) RecordInteraction(ctx context.Context, event *InteractionEvent) error {
	query := `
		INSERT INTO interaction_events (user_id, category, channel, action, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		event.UserID, event.Category, event.Channel, event.Action, event.OccurredAt,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetUserContact(ctx context.Context, userID int64) (*UserContact, error) {
	var user UserContact
	query := `SELECT id, full_name, email, phone, city, role FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, userID)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *postgresRepository) GetUserContacts(ctx context.Context, userIDs []int64) ([]*UserContact, error) {
	var users []*UserContact
	query := `SELECT id, full_name, email, phone, city, role FROM users WHERE id = ANY($1)`

	err := r.db.SelectContext(ctx, &users, query, pq.Array(userIDs))
	return users, err
}
