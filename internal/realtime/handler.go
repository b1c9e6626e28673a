// internal/realtime/handler.go

package realtime

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rentora/rentora-notifications/internal/common/utils"
	"github.com/rentora/rentora-notifications/internal/notifications"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are enforced by the API gateway
		return true
	},
}

// Handler upgrades authenticated requests to websocket connections
type Handler struct {
	hub     *Hub
	service notifications.Service
}

func NewHandler(hub *Hub, service notifications.Service) *Handler {
	return &Handler{hub: hub, service: service}
}

// ServeWS handles the websocket upgrade. Must run behind the auth
// middleware so userID is present in the context.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}

	client := NewClient(h.hub, conn, userID, h.service)
	client.Start()
}
