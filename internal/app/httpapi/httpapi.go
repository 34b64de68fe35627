package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"webrtc-signaling-relay/pkg/signaling"
)

// HealthHandler reports liveness.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	})
}

// RoomsHandler lists the ids of currently live rooms. Rooms are in-memory
// only, so this is an operational probe, not an API over persisted state.
func RoomsHandler(rooms *signaling.RoomRegistry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]interface{}{
			"rooms": rooms.RoomIDs(),
			"count": rooms.RoomCount(),
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("rooms encode error: %v", err)
		}
	})
}

// DebugICEHandler exposes the ICE configuration advertised to clients.
func DebugICEHandler(mode string, servers []signaling.ICEServer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := map[string]interface{}{
			"mode":       mode,
			"iceServers": servers,
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
}
