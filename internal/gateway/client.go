package gateway

import (
	"bytes"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer, usually one chart page.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed chart ids. Empty means every chart.
	subMu sync.RWMutex
	subs  map[string]bool
}

// Charts returns the subscribed chart ids, sorted.
func (c *Client) Charts() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sendInitialState queues the commands that rebuild each chart in ids, or
// every live chart when ids is empty. The snapshot goes out as a single
// newline-separated message so it occupies one send slot however many
// charts it covers. The hub lock is held so no live command for these
// charts can be queued between the snapshot and its envelopes.
func (c *Client) sendInitialState(ids []string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if !c.hub.clients[c] {
		return // already removed, send is closed
	}

	if len(ids) == 0 {
		ids = c.hub.Library.Charts()
	}
	snapshot := c.snapshot(ids, time.Now().UTC())
	if len(snapshot) == 0 {
		return
	}
	select {
	case c.send <- snapshot:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
		}
		log.Printf("[gateway] client send buffer full, initial state for %d charts dropped", len(ids))
	}
}

// snapshot encodes the replay of ids as initial envelopes. Caller holds hub.mu.
func (c *Client) snapshot(ids []string, now time.Time) []byte {
	var lines [][]byte
	for _, id := range ids {
		channel := ChartChannel(id)
		env := Envelope{Channel: channel, TS: now, Seq: c.hub.seq, Initial: true}
		if cl, ok := c.hub.channels[channel]; ok {
			env.ChannelSeq = cl.seq
		}
		for _, cmd := range c.hub.Library.Replay(id) {
			data, err := json.Marshal(cmd)
			if err != nil {
				continue
			}
			lines = append(lines, env.Wrap(data))
		}
	}
	return bytes.Join(lines, []byte{'\n'})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	var base struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &base) != nil {
		return
	}

	switch base.Type {
	case "SUBSCRIBE":
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		c.handleSubscribe(sub)

	case "UNSUBSCRIBE":
		var unsub UnsubscribeMsg
		if err := json.Unmarshal(msg, &unsub); err != nil {
			return
		}
		c.subMu.Lock()
		delete(c.subs, unsub.Chart)
		c.subMu.Unlock()
		log.Printf("[subscribe] client unsubscribed: chart=%s", unsub.Chart)

	default:
		if base.Ping > 0 {
			SendJSON(c, map[string]interface{}{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
		}
	}
}

// handleSubscribe adds a chart to the client's set and replays its state.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Chart == "" {
		SendError(c, msg.ReqID, "chart is required")
		return
	}

	c.subMu.Lock()
	c.subs[msg.Chart] = true
	c.subMu.Unlock()

	SendJSON(c, SubscribedResponse{
		Type:  "SUBSCRIBED",
		ReqID: msg.ReqID,
		Chart: msg.Chart,
		Seq:   c.hub.ChannelSeq(ChartChannel(msg.Chart)),
	})
	c.sendInitialState([]string{msg.Chart})
	log.Printf("[subscribe] client subscribed: chart=%s", msg.Chart)
}

// matchesChannel reports whether a broadcast channel should reach this client.
// Non-chart channels always match; chart channels match when the client has
// no subscriptions or is subscribed to that chart.
func (c *Client) matchesChannel(channel string) bool {
	id, ok := strings.CutPrefix(channel, "chart:")
	if !ok {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[id]
}

// SendJSON marshals v and queues it, dropping it if the client is slow.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] client send buffer full, dropping message")
	}
}

// SendError sends an ERROR message to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{Type: "ERROR", ReqID: reqID, Error: errMsg})
}
