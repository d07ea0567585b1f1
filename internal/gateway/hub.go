package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns the connected WebSocket clients and the channel state their
// messages are sequenced against. Library turns chart calls into commands,
// Broadcaster stamps and fans them out.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	seq      int64
	channels map[string]*channelLog

	// Render latency, frame publish to chart commands emitted
	Latency *LatencyTracker

	// Optional hooks, set before serving. OnDrop fires when a slow client
	// misses a message, OnClients when the connected count changes.
	OnDrop    func()
	OnClients func(n int)

	Library     *Library
	Broadcaster *Broadcaster
}

// NewHub creates a Hub with an empty chart Library.
func NewHub() *Hub {
	h := &Hub{
		clients:  make(map[*Client]bool),
		channels: make(map[string]*channelLog),
		Latency:  NewLatencyTracker(10000),
	}
	h.Broadcaster = NewBroadcaster(h)
	h.Library = NewLibrary(h.broadcast)
	return h
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded connection. A non-empty chartID
// subscribes the client to that chart only.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, chartID string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
	if chartID != "" {
		client.subs[chartID] = true
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.notifyClients(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(client.Charts())
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.notifyClients(count)
}

func (h *Hub) notifyClients(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// Missed returns the envelopes of channel with channel_seq in [from, to]
// that are still buffered.
func (h *Hub) Missed(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	cl, ok := h.channels[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := cl.replay.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the last channel_seq sent on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cl, ok := h.channels[channel]; ok {
		return cl.seq
	}
	return 0
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MetricsChannel carries the periodic SystemMetrics snapshot.
const MetricsChannel = "metrics"

// StartMetricsBroadcast publishes a METRICS message on MetricsChannel every
// interval until ctx is cancelled.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(MetricsMessage{Type: "METRICS", Metrics: h.Metrics(start)})
			if err != nil {
				continue
			}
			h.broadcast(MetricsChannel, data)
		}
	}
}

// Metrics collects a SystemMetrics snapshot including hub state.
func (h *Hub) Metrics(start time.Time) SystemMetrics {
	m := CollectMetrics(start)
	m.Clients = h.ClientCount()
	m.Charts = len(h.Library.Charts())
	if h.Latency != nil {
		m.LatencyP50, m.LatencyP95, m.LatencyP99 = h.Latency.Percentiles()
	}
	return m
}
