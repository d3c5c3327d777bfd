package bot

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string     `json:"status"`
	Uptime    float64    `json:"uptime"`
	LastPoll  *time.Time `json:"lastPoll"`
	LastCheck *time.Time `json:"lastCheck"`
	Timestamp time.Time  `json:"timestamp"`
}

// Handler serves GET /health with scheduler liveness. Other paths are 404.
func (b *Bot) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.handleHealth)
	return mux
}

func (b *Bot) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := b.now()
	resp := healthResponse{
		Status:    "ok",
		Uptime:    now.Sub(b.startedAt).Seconds(),
		Timestamp: now.UTC(),
	}
	if t, ok := b.LastPoll(); ok {
		t = t.UTC()
		resp.LastPoll = &t
	}
	if t, ok := b.LastCheck(); ok {
		t = t.UTC()
		resp.LastCheck = &t
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		b.logger.Error("failed to write health response", "error", err)
	}
}
