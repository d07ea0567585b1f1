package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signalchart/internal/model"
)

// maxFrameBytes caps a POSTed frame body.
const maxFrameBytes = 8 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// HealthCheck probes one dependency. Nil error means reachable.
type HealthCheck func(ctx context.Context) error

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, pump *FramePump, checks map[string]HealthCheck, processStart time.Time) {
	// Chart pages
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		renderPage(w, "")
	})
	mux.HandleFunc("/chart/", func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, strings.TrimPrefix(r.URL.Path, "/chart/"))
	})

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("chart"))
	})

	// REST: ingest one frame
	mux.HandleFunc("/api/frames", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			SetCORS(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST only")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		f, err := model.DecodeFrame(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if f.Quote != nil {
			if err := f.Quote.Validate(); err != nil {
				log.Printf("[gateway] WARNING: frame for %s: %v", f.Chart, err)
			}
		}
		if err := pump.Submit(f, "http"); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, FrameAccepted{Accepted: 1, Charts: []string{f.Chart}})
	})

	// REST: live charts
	mux.HandleFunc("/api/charts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ChartsResponse{
			Charts:     pump.Charts(),
			Containers: hub.Library.Containers(),
		})
	})

	// REST: DELETE /api/charts/{id}
	mux.HandleFunc("/api/charts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			SetCORS(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "DELETE only")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/charts/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "chart id is required")
			return
		}
		if !pump.Destroy(r.Context(), id) {
			writeError(w, http.StatusNotFound, "unknown chart "+id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed", "chart": id})
	})

	// REST: replay buffer range for gap backfill
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || errFrom != nil || errTo != nil {
			writeError(w, http.StatusBadRequest, "channel, from and to are required")
			return
		}
		msgs := hub.Missed(channel, from, to)
		out := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
		}
		writeJSON(w, http.StatusOK, out)
	})

	// REST: system metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Metrics(processStart))
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		deps := make(map[string]bool, len(checks))
		status := "ok"
		for name, check := range checks {
			deps[name] = check(ctx) == nil
			if !deps[name] {
				status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     status,
			"deps":       deps,
			"charts":     len(pump.Charts()),
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
