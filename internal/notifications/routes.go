package notifications

import (
	"github.com/gorilla/mux"
	"github.com/rentora/rentora-notifications/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	// Protected routes
	api := router.PathPrefix("/api/v1/notifications").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// User notifications
	api.HandleFunc("", handler.GetNotifications).Methods("GET")
	api.HandleFunc("/read-all", handler.MarkAllAsRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}", handler.GetNotification).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/read", handler.MarkAsRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}/delivered", handler.MarkAsDelivered).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}/cancel", handler.CancelNotification).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}", handler.DeleteNotification).Methods("DELETE")

	// Preferences
	api.HandleFunc("/preferences", handler.GetPreferences).Methods("GET")
	api.HandleFunc("/preferences", handler.UpdatePreferences).Methods("PUT")

	// Push devices
	api.HandleFunc("/devices", handler.RegisterDevice).Methods("POST")
	api.HandleFunc("/devices/{device_id}", handler.UnregisterDevice).Methods("DELETE")

	// Interaction events
	api.HandleFunc("/events", handler.RecordInteraction).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/api/v1/admin/notifications").Subrouter()
	admin.Use(authMiddleware.Authenticate)
	admin.Use(authMiddleware.RequireAdmin)

	admin.HandleFunc("/send", handler.SendNotification).Methods("POST")
	admin.HandleFunc("/broadcast", handler.BroadcastNotification).Methods("POST")
	admin.HandleFunc("/{id:[0-9]+}/cancel", handler.CancelNotification).Methods("PUT")
}
