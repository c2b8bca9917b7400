package session

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bustedgame/busted-server/internal/realtime"
)

// RoomChannel is the slice of realtime.Channel the coordinator depends on,
// kept narrow so tests can run against a fake.
type RoomChannel interface {
	Events() <-chan realtime.Event
	PresenceSync() <-chan []realtime.PresenceRecord
	Track(key string, record realtime.PresenceRecord) error
	Untrack(key string) error
	Broadcast(ev realtime.Event) error
	State() realtime.ConnState
	Close()
}

// Coordinator owns the one channel of a room and fans its events out to any
// number of subscribers. All per-screen, per-connection consumers of a room
// share the coordinator; none of them ever opens a second channel, which is
// what keeps presence entries and event deliveries from duplicating.
type Coordinator struct {
	code string
	ch   RoomChannel
	log  *logrus.Entry

	mu            sync.RWMutex
	players       []realtime.PresenceRecord
	listeners     map[int]func(realtime.Event)
	presListeners map[int]func([]realtime.PresenceRecord)
	nextID        int
	closed        bool

	done chan struct{}
}

func NewCoordinator(code string, ch RoomChannel) *Coordinator {
	c := &Coordinator{
		code:          code,
		ch:            ch,
		log:           logrus.WithField("room", code),
		listeners:     make(map[int]func(realtime.Event)),
		presListeners: make(map[int]func([]realtime.PresenceRecord)),
		done:          make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.done)

	events := c.ch.Events()
	presence := c.ch.PresenceSync()
	for events != nil || presence != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.dispatch(ev)
		case snapshot, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			c.mu.Lock()
			c.players = snapshot
			listeners := make([]func([]realtime.PresenceRecord), 0, len(c.presListeners))
			for _, fn := range c.presListeners {
				listeners = append(listeners, fn)
			}
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(snapshot)
			}
		}
	}
}

// dispatch fans one event out in subscription order, so a state-owning
// listener registered first observes the event before any forwarder does.
func (c *Coordinator) dispatch(ev realtime.Event) {
	c.mu.RLock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(realtime.Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.WithField("panic", r).Error("event listener panicked")
				}
			}()
			fn(ev)
		}()
	}
}

// Subscribe registers a listener for every event on the room channel and
// returns its unsubscribe function. Listeners added after an event was
// dispatched do not see it; late joiners reconcile from the database.
func (c *Coordinator) Subscribe(fn func(realtime.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// SubscribePresence registers a listener for presence snapshot replacements.
func (c *Coordinator) SubscribePresence(fn func([]realtime.PresenceRecord)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.presListeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.presListeners, id)
	}
}

// Players returns the current deduplicated presence-derived player list.
func (c *Coordinator) Players() []realtime.PresenceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	players := make([]realtime.PresenceRecord, len(c.players))
	copy(players, c.players)
	return players
}

func (c *Coordinator) Connected() bool {
	return c.ch.State() == realtime.StateConnected
}

func (c *Coordinator) Code() string { return c.code }

// Send broadcasts an event to the room, this node included.
func (c *Coordinator) Send(ev realtime.Event) error {
	return c.ch.Broadcast(ev)
}

// SendEvent builds and broadcasts an event from a payload struct.
func (c *Coordinator) SendEvent(t realtime.EventType, payload interface{}) error {
	ev, err := realtime.NewEvent(t, payload)
	if err != nil {
		return err
	}
	return c.Send(ev)
}

// Track announces one connection's presence; key is the per-connection
// presence key, never the bare user id.
func (c *Coordinator) Track(key string, record realtime.PresenceRecord) error {
	return c.ch.Track(key, record)
}

func (c *Coordinator) Untrack(key string) error {
	return c.ch.Untrack(key)
}

// shutdown clears all listeners and releases the channel. Called by the
// registry when the last reference to the room is dropped; no callbacks fire
// afterwards.
func (c *Coordinator) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.listeners = make(map[int]func(realtime.Event))
	c.presListeners = make(map[int]func([]realtime.PresenceRecord))
	c.mu.Unlock()

	c.ch.Close()
	<-c.done
	c.log.Info("room session released")
}
