// internal/notifications/errors.go

package notifications

import "errors"

var (
	ErrTemplateNotFound     = errors.New("notification template not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrAlreadyTerminal      = errors.New("notification is in a terminal state")
	ErrUnauthorized         = errors.New("unauthorized")
)
