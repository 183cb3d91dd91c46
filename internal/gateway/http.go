// ABOUTME: Plain HTTP surface: health probe and the Telegram webhook
// ABOUTME: Webhook deliveries are secret-checked and fed to the inbound queue

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/chaihq/chai/internal/channels"
)

// handler builds the single-port mux: health at /, the WebSocket endpoint,
// and the Telegram webhook receiver.
func (g *Gateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", g.handleHealth)
	mux.HandleFunc("GET /ws", g.handleWS)
	mux.HandleFunc("POST /telegram/webhook", g.handleTelegramWebhook)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"runtime":  "running",
		"protocol": ProtocolVersion,
		"port":     g.cfg.Gateway.Port,
	})
}

// handleTelegramWebhook receives one Bot API update. When a webhook secret
// is configured Telegram echoes it in a header; mismatches are rejected.
func (g *Gateway) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if expected := g.cfg.Channels.Telegram.WebhookSecret; expected != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != expected {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if g.telegram == nil {
		http.Error(w, "telegram channel not configured", http.StatusServiceUnavailable)
		return
	}

	var update channels.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	g.telegram.HandleUpdate(r.Context(), update, g.inbound)
	w.WriteHeader(http.StatusOK)
}
