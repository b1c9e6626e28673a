// internal/notifications/models.go

package notifications

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// NotificationKind represents the visual kind of a notification
type NotificationKind string

const (
	KindInfo      NotificationKind = "info"
	KindSuccess   NotificationKind = "success"
	KindWarning   NotificationKind = "warning"
	KindError     NotificationKind = "error"
	KindPromotion NotificationKind = "promotion"
)

// Category groups notifications by marketplace concern
type Category string

const (
	CategoryMessages        Category = "messages"
	CategoryApplications    Category = "applications"
	CategoryVisits          Category = "visits"
	CategoryPayments        Category = "payments"
	CategoryPromotions      Category = "promotions"
	CategoryRecommendations Category = "recommendations"
	CategorySecurity        Category = "security"
	CategorySystem          Category = "system"
)

// Priority represents notification priority levels
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeliveryChannel represents notification delivery channels
type DeliveryChannel string

const (
	ChannelInApp DeliveryChannel = "in_app"
	ChannelPush  DeliveryChannel = "push"
	ChannelEmail DeliveryChannel = "email"
	ChannelSMS   DeliveryChannel = "sms"
)

// DeliveryStatus tracks a notification through its lifecycle.
// Transitions only advance: pending -> sent -> (delivered|read) or failed.
// A pending notification may loop back to pending while retries remain.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
	StatusCancelled DeliveryStatus = "cancelled"
)

// Platform represents device platforms
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// UserRole mirrors the marketplace roles
type UserRole string

const (
	RoleTenant   UserRole = "tenant"
	RoleLandlord UserRole = "landlord"
	RoleAgency   UserRole = "agency"
	RoleAdmin    UserRole = "admin"
)

// TemplateAction is a call-to-action rendered with a notification
type TemplateAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Template is a static notification definition. Templates are immutable
// once created; personalization happens per send, never on the template.
type Template struct {
	ID            int64            `json:"id" db:"id"`
	Key           string           `json:"key" db:"key"`
	Kind          NotificationKind `json:"kind" db:"kind"`
	Category      Category         `json:"category" db:"category"`
	Priority      Priority         `json:"priority" db:"priority"`
	TitleTemplate string           `json:"title_template" db:"title_template"`
	BodyTemplate  string           `json:"body_template" db:"body_template"`
	Actions       ActionList       `json:"actions,omitempty" db:"actions"`
	ExpiresAfter  *time.Duration   `json:"expires_after,omitempty" db:"expires_after"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// ActionList is stored as a JSONB column
type ActionList []TemplateAction

func (a *ActionList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, a)
}

func (a ActionList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// QuietHours defers non-urgent notifications inside the configured window.
// Start and End use "15:04" clock format in the window's timezone. A window
// with Start > End wraps past midnight (e.g. 22:00 to 08:00).
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Preferences represents per-user notification preferences.
// Created lazily with defaults on first lookup, never deleted.
type Preferences struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user_id" db:"user_id"`

	InAppEnabled bool `json:"in_app_enabled" db:"in_app_enabled"`
	PushEnabled  bool `json:"push_enabled" db:"push_enabled"`
	EmailEnabled bool `json:"email_enabled" db:"email_enabled"`
	SMSEnabled   bool `json:"sms_enabled" db:"sms_enabled"`

	Categories CategoryOptIns `json:"categories" db:"categories"`
	QuietHours QuietHoursCol  `json:"quiet_hours" db:"quiet_hours"`

	SmartFilter         bool    `json:"smart_filter" db:"smart_filter"`
	ImportanceThreshold float64 `json:"importance_threshold" db:"importance_threshold"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CategoryOptIns maps categories to opt-in flags (JSONB column)
type CategoryOptIns map[Category]bool

func (c *CategoryOptIns) Scan(value interface{}) error {
	if value == nil {
		*c = make(CategoryOptIns)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, c)
}

func (c CategoryOptIns) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return json.Marshal(c)
}

// Enabled reports whether the user accepts a category. Absent entries
// default to opted-in.
func (c CategoryOptIns) Enabled(cat Category) bool {
	if c == nil {
		return true
	}
	enabled, ok := c[cat]
	if !ok {
		return true
	}
	return enabled
}

// QuietHoursCol wraps QuietHours for JSONB storage
type QuietHoursCol struct {
	QuietHours
}

func (q *QuietHoursCol) Scan(value interface{}) error {
	if value == nil {
		*q = QuietHoursCol{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &q.QuietHours)
}

func (q QuietHoursCol) Value() (driver.Value, error) {
	return json.Marshal(q.QuietHours)
}

// SendWindow is a predicted good moment to reach the user.
// Start and End use "15:04" clock format.
type SendWindow struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Score float64 `json:"score"`
}

// BehaviorPattern holds precomputed statistics about a user's activity.
// Refreshed periodically by the analytics pipeline; the cached copy is
// invalidated whenever a new interaction event arrives.
type BehaviorPattern struct {
	UserID             int64                       `json:"user_id" db:"user_id"`
	HourlyActivity     []float64                   `json:"hourly_activity"`
	ChannelWeights     map[DeliveryChannel]float64 `json:"channel_weights"`
	CategoryEngagement map[Category]float64        `json:"category_engagement"`
	NextActiveAt       *time.Time                  `json:"next_active_at,omitempty"`
	OptimalWindows     []SendWindow                `json:"optimal_windows,omitempty"`
	ChurnRisk          float64                     `json:"churn_risk"`
	UpdatedAt          time.Time                   `json:"updated_at" db:"updated_at"`
}

// ScoreFactor is one weighted contribution to a relevance score
type ScoreFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// Intelligence records how a notification was scored and timed
type Intelligence struct {
	Score               float64           `json:"score"`
	Confidence          float64           `json:"confidence"`
	Factors             []ScoreFactor     `json:"factors"`
	PredictedEngagement float64           `json:"predicted_engagement"`
	OptimalSendAt       time.Time         `json:"optimal_send_at"`
	Context             map[string]string `json:"context,omitempty"`
}

// ChannelOutcome records the result of one channel's delivery attempt.
// Outcomes persist across retries so a channel that already succeeded is
// never re-sent.
type ChannelOutcome struct {
	Channel     DeliveryChannel `json:"channel"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

// ChannelOutcomes maps channel to its latest outcome (JSONB column)
type ChannelOutcomes map[DeliveryChannel]*ChannelOutcome

func (o *ChannelOutcomes) Scan(value interface{}) error {
	if value == nil {
		*o = make(ChannelOutcomes)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, o)
}

func (o ChannelOutcomes) Value() (driver.Value, error) {
	if o == nil {
		return "{}", nil
	}
	return json.Marshal(o)
}

// Delivery tracks the state machine for one notification
type Delivery struct {
	Channels    ChannelList     `json:"channels" db:"channels"`
	ScheduledAt time.Time       `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty" db:"read_at"`
	Status      DeliveryStatus  `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	Outcomes    ChannelOutcomes `json:"outcomes" db:"outcomes"`
}

// ChannelList is stored as a JSONB column
type ChannelList []DeliveryChannel

func (c *ChannelList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, c)
}

func (c ChannelList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

// Contains reports whether the list includes a channel
func (c ChannelList) Contains(ch DeliveryChannel) bool {
	for _, existing := range c {
		if existing == ch {
			return true
		}
	}
	return false
}

// NotificationData represents additional notification payload data
type NotificationData map[string]interface{}

func (nd *NotificationData) Scan(value interface{}) error {
	if value == nil {
		*nd = make(NotificationData)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, nd)
}

func (nd NotificationData) Value() (driver.Value, error) {
	if nd == nil {
		return "{}", nil
	}
	return json.Marshal(nd)
}

// Notification is one personalized send, created by the orchestrator and
// mutated in place as delivery progresses.
type Notification struct {
	ID          int64            `json:"id" db:"id"`
	UserID      int64            `json:"user_id" db:"user_id"`
	TemplateKey string           `json:"template_key" db:"template_key"`
	Kind        NotificationKind `json:"kind" db:"kind"`
	Category    Category         `json:"category" db:"category"`
	Priority    Priority         `json:"priority" db:"priority"`
	Title       string           `json:"title" db:"title"`
	Body        string           `json:"body" db:"body"`
	Actions     ActionList       `json:"actions,omitempty" db:"actions"`
	Data        NotificationData `json:"data,omitempty" db:"data"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty" db:"expires_at"`

	Delivery     Delivery     `json:"delivery"`
	Intelligence Intelligence `json:"intelligence"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Device represents a registered push device
type Device struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Platform  Platform  `json:"platform" db:"platform"`
	Token     string    `json:"token" db:"token"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserContact is the slice of the marketplace user record the
// orchestrator needs for personalization and delivery addressing.
type UserContact struct {
	ID       int64    `json:"id" db:"id"`
	FullName string   `json:"full_name" db:"full_name"`
	Email    string   `json:"email" db:"email"`
	Phone    string   `json:"phone" db:"phone"`
	City     string   `json:"city" db:"city"`
	Role     UserRole `json:"role" db:"role"`
}

// InteractionEvent is a user action on a notification or listing,
// recorded for the analytics pipeline. Receiving one invalidates the
// user's cached behavior pattern.
type InteractionEvent struct {
	ID         int64            `json:"id" db:"id"`
	UserID     int64            `json:"user_id" db:"user_id"`
	Category   Category         `json:"category" db:"category"`
	Channel    *DeliveryChannel `json:"channel,omitempty" db:"channel"`
	Action     string           `json:"action" db:"action"` // open, click, dismiss
	OccurredAt time.Time        `json:"occurred_at" db:"occurred_at"`
}

// EmailNotification represents an outbound email
type EmailNotification struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// SMSNotification represents an outbound SMS
type SMSNotification struct {
	To      string
	Message string
}

// PushNotification represents an outbound push message
type PushNotification struct {
	Tokens   []string
	Title    string
	Body     string
	Data     map[string]string
	Priority Priority
	Image    string
}

// InAppMessage is the realtime payload pushed over the websocket hub
type InAppMessage struct {
	EventID        string           `json:"event_id"`
	NotificationID int64            `json:"notification_id"`
	Kind           NotificationKind `json:"kind"`
	Category       Category         `json:"category"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Actions        []TemplateAction `json:"actions,omitempty"`
	Data           NotificationData `json:"data,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// SendRequest asks the orchestrator to create and route one notification
type SendRequest struct {
	UserID      int64             `json:"user_id" validate:"required"`
	TemplateKey string            `json:"template_key" validate:"required"`
	Context     map[string]string `json:"context,omitempty"`
	Data        NotificationData  `json:"data,omitempty"`
	Channels    []DeliveryChannel `json:"channels,omitempty"` // override; empty means let the selector decide
}

// BroadcastRequest fans one template out to many users
type BroadcastRequest struct {
	UserIDs     []int64           `json:"user_ids" validate:"required,min=1"`
	TemplateKey string            `json:"template_key" validate:"required"`
	Context     map[string]string `json:"context,omitempty"`
	Data        NotificationData  `json:"data,omitempty"`
}

// RegisterDeviceRequest registers a push device
type RegisterDeviceRequest struct {
	Platform Platform `json:"platform" validate:"required,oneof=ios android web"`
	Token    string   `json:"token" validate:"required"`
	DeviceID string   `json:"device_id" validate:"required"`
}

// UpdatePreferencesRequest carries partial preference updates
type UpdatePreferencesRequest struct {
	InAppEnabled        *bool              `json:"in_app_enabled,omitempty"`
	PushEnabled         *bool              `json:"push_enabled,omitempty"`
	EmailEnabled        *bool              `json:"email_enabled,omitempty"`
	SMSEnabled          *bool              `json:"sms_enabled,omitempty"`
	Categories          map[Category]*bool `json:"categories,omitempty"`
	QuietHours          *QuietHours        `json:"quiet_hours,omitempty"`
	SmartFilter         *bool              `json:"smart_filter,omitempty"`
	ImportanceThreshold *float64           `json:"importance_threshold,omitempty"`
}

// RecordInteractionRequest reports a user interaction
type RecordInteractionRequest struct {
	Category Category         `json:"category" validate:"required"`
	Channel  *DeliveryChannel `json:"channel,omitempty"`
	Action   string           `json:"action" validate:"required,oneof=open click dismiss"`
}

// NotificationsResponse represents paginated notifications
type NotificationsResponse struct {
	Notifications []*Notification `json:"notifications"`
	TotalCount    int             `json:"total_count"`
	UnreadCount   int             `json:"unread_count"`
	HasMore       bool            `json:"has_more"`
}

// DefaultPreferences returns the lazily-created preference row for a user
func DefaultPreferences(userID int64) *Preferences {
	return &Preferences{
		UserID:              userID,
		InAppEnabled:        true,
		PushEnabled:         true,
		EmailEnabled:        true,
		SMSEnabled:          false,
		Categories:          CategoryOptIns{},
		SmartFilter:         false,
		ImportanceThreshold: 5.0,
	}
}
