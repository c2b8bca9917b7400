package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ConnState is the externally observable connection state of a channel.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
)

const (
	// A presence entry is considered gone after missing three heartbeats.
	presenceTTL     = 30 * time.Second
	heartbeatPeriod = 10 * time.Second

	eventBuffer    = 64
	presenceBuffer = 16
)

// presenceEntry wraps a record with its last heartbeat so dead connections
// age out without anyone explicitly untracking them.
type presenceEntry struct {
	Record   PresenceRecord `json:"record"`
	LastSeen time.Time      `json:"lastSeen"`
}

// Channel is one logical presence/broadcast channel for a room code, backed
// by Redis pub/sub plus a presence hash. Broadcasts are self-inclusive: the
// publisher is subscribed like everyone else and receives its own message.
// Nothing is replayed after a reconnect; consumers reconcile against the
// database instead.
//
// Presence records are tracked under caller-chosen per-connection keys; the
// key is deliberately not the user id (see DedupePlayers).
type Channel struct {
	rdb  *redis.Client
	code string
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	pubsub *redis.PubSub

	events   chan Event
	presence chan []PresenceRecord
	state    atomic.Int32

	mu      sync.Mutex
	tracked map[string]PresenceRecord
}

func eventsTopic(code string) string   { return "room:" + code + ":events" }
func presenceTopic(code string) string { return "room:" + code + ":sync" }
func presenceKey(code string) string   { return "room:" + code + ":presence" }

// Connect subscribes to the room's topics. The returned channel is live once
// Connect returns; Track must still be called to appear in presence.
func Connect(ctx context.Context, rdb *redis.Client, roomCode string) (*Channel, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))

	cctx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		rdb:      rdb,
		code:     code,
		log:      logrus.WithField("room", code),
		ctx:      cctx,
		cancel:   cancel,
		events:   make(chan Event, eventBuffer),
		presence: make(chan []PresenceRecord, presenceBuffer),
		tracked:  make(map[string]PresenceRecord),
	}
	ch.state.Store(int32(StateConnecting))

	pubsub := rdb.Subscribe(ctx, eventsTopic(code), presenceTopic(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}
	ch.pubsub = pubsub
	ch.state.Store(int32(StateConnected))

	go ch.readLoop()
	go ch.heartbeatLoop()

	return ch, nil
}

func (c *Channel) State() ConnState { return ConnState(c.state.Load()) }

// Events delivers broadcasts, including the channel's own. Closed on Close.
func (c *Channel) Events() <-chan Event { return c.events }

// PresenceSync delivers the full deduplicated member set on every presence
// change. Each delivery replaces the previous one entirely.
func (c *Channel) PresenceSync() <-chan []PresenceRecord { return c.presence }

// Track publishes a presence record under a per-connection key and keeps it
// alive via heartbeat until Untrack or Close.
func (c *Channel) Track(key string, record PresenceRecord) error {
	c.mu.Lock()
	c.tracked[key] = record
	c.mu.Unlock()

	if err := c.writePresence(key, record); err != nil {
		return err
	}
	return c.notifyPresence()
}

// Untrack removes one tracked record without closing the channel.
func (c *Channel) Untrack(key string) error {
	c.mu.Lock()
	delete(c.tracked, key)
	c.mu.Unlock()

	if err := c.rdb.HDel(c.ctx, presenceKey(c.code), key).Err(); err != nil {
		return err
	}
	return c.notifyPresence()
}

// Broadcast publishes a game event to every channel member, sender included.
func (c *Channel) Broadcast(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rdb.Publish(c.ctx, eventsTopic(c.code), data).Err()
}

// Close untracks everything, notifies the room, and tears the subscription
// down. After Close no further events or syncs are delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.tracked))
	for key := range c.tracked {
		keys = append(keys, key)
	}
	c.tracked = make(map[string]PresenceRecord)
	c.mu.Unlock()

	if len(keys) > 0 {
		// The channel ctx is about to be cancelled; use a fresh one so the
		// untrack still reaches Redis.
		if err := c.rdb.HDel(context.Background(), presenceKey(c.code), keys...).Err(); err != nil {
			c.log.WithError(err).Warn("untrack on close failed")
		}
		if err := c.rdb.Publish(context.Background(), presenceTopic(c.code), "sync").Err(); err != nil {
			c.log.WithError(err).Warn("presence notify on close failed")
		}
	}

	c.cancel()
	if err := c.pubsub.Close(); err != nil {
		c.log.WithError(err).Warn("pubsub close failed")
	}
	c.state.Store(int32(StateDisconnected))
}

func (c *Channel) writePresence(key string, record PresenceRecord) error {
	entry := presenceEntry{Record: record, LastSeen: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.HSet(c.ctx, presenceKey(c.code), key, data).Err()
}

func (c *Channel) notifyPresence() error {
	return c.rdb.Publish(c.ctx, presenceTopic(c.code), "sync").Err()
}

func (c *Channel) readLoop() {
	defer close(c.events)
	defer close(c.presence)

	msgs := c.pubsub.Channel()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.state.Store(int32(StateDisconnected))
				return
			}
			switch msg.Channel {
			case eventsTopic(c.code):
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					c.log.WithError(err).Warn("dropping malformed broadcast")
					continue
				}
				select {
				case c.events <- ev:
				default:
					c.log.WithField("type", ev.Type).Warn("event buffer full, dropping")
				}
			case presenceTopic(c.code):
				c.emitPresence()
			}
		}
	}
}

// emitPresence reads the full presence hash, prunes expired entries, and
// pushes the deduped snapshot to consumers. A snapshot still queued is
// replaced rather than delivered stale.
func (c *Channel) emitPresence() {
	raw, err := c.rdb.HGetAll(c.ctx, presenceKey(c.code)).Result()
	if err != nil {
		c.log.WithError(err).Warn("presence read failed")
		c.state.Store(int32(StateDisconnected))
		return
	}

	now := time.Now().UTC()
	records := make([]PresenceRecord, 0, len(raw))
	for field, data := range raw {
		var entry presenceEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			c.log.WithError(err).Warn("dropping malformed presence entry")
			continue
		}
		if now.Sub(entry.LastSeen) > presenceTTL {
			c.rdb.HDel(c.ctx, presenceKey(c.code), field)
			continue
		}
		records = append(records, entry.Record)
	}

	snapshot := DedupePlayers(records)
	for {
		select {
		case c.presence <- snapshot:
			return
		default:
			select {
			case <-c.presence: // discard the stale snapshot
			default:
			}
		}
	}
}

func (c *Channel) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			tracked := make(map[string]PresenceRecord, len(c.tracked))
			for key, record := range c.tracked {
				tracked[key] = record
			}
			c.mu.Unlock()
			if len(tracked) == 0 {
				continue
			}

			failed := false
			for key, record := range tracked {
				if err := c.writePresence(key, record); err != nil {
					c.log.WithError(err).Warn("presence heartbeat failed")
					failed = true
					break
				}
			}
			if failed {
				c.state.Store(int32(StateDisconnected))
				continue
			}
			if c.State() == StateDisconnected {
				// Redis is reachable again; re-announce so everyone resyncs.
				c.state.Store(int32(StateConnected))
			}
			if err := c.notifyPresence(); err != nil {
				c.log.WithError(err).Warn("presence notify failed")
				c.state.Store(int32(StateDisconnected))
			}
		}
	}
}
