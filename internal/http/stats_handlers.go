package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/ws"
)

type StatsAPI struct{ Hub *ws.Hub }

type statsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Get reports live room and connection counts.
func (a *StatsAPI) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rooms, conns := a.Hub.Stats()
	writeJSON(w, statsResponse{Rooms: rooms, Connections: conns})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
