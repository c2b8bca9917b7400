package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/bustedgame/busted-server/internal/realtime"
)

// Registry hands out exactly one Coordinator per room code per process.
// Channel ownership is scoped to "being in the room", not to any one screen
// or websocket: navigating within a room must reuse the same coordinator, so
// acquiring an already-open room bumps a refcount instead of dialing a second
// channel.
type Registry struct {
	rdb *redis.Client

	mu    sync.Mutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	coord *Coordinator
	refs  int
}

func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		rdb:   rdb,
		rooms: make(map[string]*roomEntry),
	}
}

// Acquire returns the room's coordinator, connecting the channel on first
// use. Every Acquire must be paired with one Release.
func (r *Registry) Acquire(ctx context.Context, roomCode string) (*Coordinator, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.rooms[code]; ok {
		entry.refs++
		return entry.coord, nil
	}

	ch, err := realtime.Connect(ctx, r.rdb, code)
	if err != nil {
		return nil, err
	}
	coord := NewCoordinator(code, ch)
	r.rooms[code] = &roomEntry{coord: coord, refs: 1}
	return coord, nil
}

// Release drops one reference to the room. The last release tears the
// coordinator down: presence untracked, channel closed, listeners cleared.
func (r *Registry) Release(roomCode string) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))

	r.mu.Lock()
	entry, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, code)
	r.mu.Unlock()

	entry.coord.shutdown()
}

// Shutdown releases every open room, for server teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for code, entry := range r.rooms {
		entries = append(entries, entry)
		delete(r.rooms, code)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.coord.shutdown()
	}
}
