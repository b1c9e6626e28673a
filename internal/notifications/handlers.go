package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rentora/rentora-notifications/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetNotifications retrieves notifications for the authenticated user
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	response, err := h.service.GetNotifications(r.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get notifications")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

// GetNotification retrieves a specific notification
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	notificationID, err := pathID(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	notification, err := h.service.GetNotification(r.Context(), userID, notificationID)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
		} else {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get notification")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, notification)
}

// MarkAsRead marks a notification as read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	notificationID, err := pathID(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.service.MarkAsRead(r.Context(), userID, notificationID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark as read")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Notification marked as read",
	})
}

// MarkAllAsRead marks all notifications as read for the user
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	if err := h.service.MarkAllAsRead(r.Context(), userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark all as read")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "All notifications marked as read",
	})
}

// MarkAsDelivered acknowledges client-side receipt of a notification
func (h *Handler) MarkAsDelivered(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	notificationID, err := pathID(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.service.MarkAsDelivered(r.Context(), userID, notificationID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark as delivered")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Notification marked as delivered",
	})
}

// DeleteNotification deletes a notification
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	notificationID, err := pathID(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.service.Delete(r.Context(), userID, notificationID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete notification")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Notification deleted successfully",
	})
}

// GetPreferences returns the user's notification preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	prefs, err := h.service.GetPreferences(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get preferences")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences applies a partial preference update
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	prefs, err := h.service.UpdatePreferences(r.Context(), userID, &req)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, prefs)
}

// RegisterDevice registers a device for push notifications
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	device, err := h.service.RegisterDevice(r.Context(), userID, &req)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, device)
}

// UnregisterDevice removes a registered device
func (h *Handler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	deviceID := mux.Vars(r)["device_id"]

	if err := h.service.UnregisterDevice(r.Context(), userID, deviceID); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Device not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to unregister device")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Device unregistered successfully",
	})
}

// RecordInteraction reports a user interaction event
func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req RecordInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RecordInteraction(r.Context(), userID, &req); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record interaction")
		return
	}

	utils.RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Interaction recorded",
	})
}

// SendNotification creates and routes one notification (admin)
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	notification, err := h.service.Send(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrTemplateNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Template not found")
		case errors.Is(err, ErrUserNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to send notification")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, notification)
}

// BroadcastNotification fans one template out to many users (admin)
func (h *Handler) BroadcastNotification(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	notifications, err := h.service.Broadcast(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to broadcast notification")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"created": len(notifications),
	})
}

// CancelNotification withdraws a pending notification
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	notificationID, err := pathID(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	// Admins may cancel on behalf of another user
	if target := r.URL.Query().Get("user_id"); target != "" {
		if role, _ := r.Context().Value("role").(string); role == "admin" {
			if id, err := strconv.ParseInt(target, 10, 64); err == nil {
				userID = id
			}
		}
	}

	if err := h.service.Cancel(r.Context(), userID, notificationID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "No pending notification to cancel")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to cancel notification")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Notification cancelled",
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
