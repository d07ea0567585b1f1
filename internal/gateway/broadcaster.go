package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// replayDepth is the number of envelopes kept per channel for backfill.
const replayDepth = 500

// channelLog is the sequencing state of one broadcast channel.
type channelLog struct {
	seq    int64
	replay *ReplayBuffer
}

// Envelope is the header wrapped around every message sent to a client.
// Seq is hub-wide, ChannelSeq counts messages on Channel only so a client
// can spot a gap and backfill it from /api/missed.
type Envelope struct {
	Channel    string
	TS         time.Time
	Seq        int64
	ChannelSeq int64
	Initial    bool // part of a snapshot replay, not a live command
}

// Wrap encodes {"channel","data","ts","seq","channel_seq"[,"initial"]}
// around data, which must already be valid JSON. The channel carries a
// client-chosen chart id and is always escaped.
func (e Envelope) Wrap(data []byte) []byte {
	channel, err := json.Marshal(e.Channel)
	if err != nil {
		channel = []byte(`""`)
	}
	buf := make([]byte, 0, len(channel)+len(data)+176)
	buf = append(buf, `{"channel":`...)
	buf = append(buf, channel...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = e.TS.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, e.Seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, e.ChannelSeq, 10)
	if e.Initial {
		buf = append(buf, `,"initial":true`...)
	}
	return append(buf, '}')
}

// Broadcaster sequences chart commands and fans them out to the clients
// subscribed to their channel.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast stamps data with the next sequence numbers of channel, records it
// for backfill and queues it on every matching client. A client whose queue
// is full misses the message and reports it through Hub.OnDrop.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	env, cl := b.next(channel)
	buf := env.Wrap(data)
	cl.replay.Push(env.ChannelSeq, buf)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for c := range b.hub.clients {
		if !c.matchesChannel(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			if b.hub.OnDrop != nil {
				b.hub.OnDrop()
			}
		}
	}
}

func (b *Broadcaster) next(channel string) (Envelope, *channelLog) {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.channels[channel]
	if !ok {
		cl = &channelLog{replay: NewReplayBuffer(replayDepth)}
		h.channels[channel] = cl
	}
	cl.seq++
	h.seq++
	return Envelope{Channel: channel, TS: time.Now().UTC(), Seq: h.seq, ChannelSeq: cl.seq}, cl
}
