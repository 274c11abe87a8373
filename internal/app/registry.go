package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"trivia-room-service/internal/domain"
)

// Config holds the engine tunables shared by every room.
type Config struct {
	// MaxRounds is the round budget per match.
	MaxRounds int
	// AdvanceDelay is how long after the first correct answer the next
	// round is issued.
	AdvanceDelay time.Duration
	// IdleThreshold is how long a room may remain empty before eviction.
	IdleThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 10
	}
	if c.AdvanceDelay <= 0 {
		c.AdvanceDelay = 5 * time.Second
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = 300 * time.Second
	}
	return c
}

// Registry is the process-wide room directory. It is an injectable
// component rather than a hidden singleton so tests can run isolated
// registries side by side.
//
// The directory map has its own lock, held only for lookups and
// insertions; room mutations are serialized by each room's own mutex, so
// operations on distinct rooms never block each other.
type Registry struct {
	source QuestionSource
	mirror RoomMirror
	cfg    Config
	now    func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room

	lobbyMu   sync.Mutex
	lobbySubs map[chan []domain.RoomSummary]struct{}
}

func NewRegistry(source QuestionSource, mirror RoomMirror, cfg Config) *Registry {
	return NewRegistryWithClock(source, mirror, cfg, time.Now)
}

// NewRegistryWithClock allows deterministic idle-eviction tests.
func NewRegistryWithClock(source QuestionSource, mirror RoomMirror, cfg Config, now func() time.Time) *Registry {
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Registry{
		source:    source,
		mirror:    mirror,
		cfg:       cfg.withDefaults(),
		now:       now,
		rooms:     make(map[string]*Room),
		lobbySubs: make(map[chan []domain.RoomSummary]struct{}),
	}
}

// CreateRoom creates an empty lobby-state room. A room may be created ahead
// of its creator's connection; the creator joins explicitly afterward.
func (g *Registry) CreateRoom(ctx context.Context, roomID string) (*Room, error) {
	g.mu.Lock()
	if _, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		return nil, domain.ErrRoomExists
	}
	room := newRoomWithClock(roomID, g.cfg, g.source, g.mirror, g.now)
	g.rooms[roomID] = room
	g.mu.Unlock()

	log.Printf("registry: room %s created", roomID)
	if err := g.mirror.SaveRoom(ctx, room.Summary(), domain.StateLobby); err != nil {
		log.Printf("registry: mirror save %s: %v", roomID, err)
	}
	return room, nil
}

// GetRoom looks up a room, never creating one as a side effect.
func (g *Registry) GetRoom(roomID string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// DeleteRoom removes the room, cancelling any pending round timer.
// Idempotent.
func (g *Registry) DeleteRoom(ctx context.Context, roomID string) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	if ok {
		delete(g.rooms, roomID)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	room.close()
	log.Printf("registry: room %s deleted", roomID)
	if err := g.mirror.DeleteRoom(ctx, roomID); err != nil {
		log.Printf("registry: mirror delete %s: %v", roomID, err)
	}
}

// ListJoinableRooms returns summaries for every room that is either waiting
// in the lobby, or already playing/finished but still populated (visible for
// rejoin). As a side effect, rooms empty past the idle threshold are evicted.
func (g *Registry) ListJoinableRooms(ctx context.Context) []domain.RoomSummary {
	now := g.now()

	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		if room.expire(now, g.cfg.IdleThreshold) {
			g.evict(ctx, room)
			continue
		}
		summary, state, count := room.listing()
		if state != domain.StateLobby && count == 0 {
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].RoomID < summaries[j].RoomID
	})
	return summaries
}

// Sweep evicts idle rooms without producing a listing. Intended for a
// background tick; listing performs the same sweep on demand.
func (g *Registry) Sweep(ctx context.Context) {
	now := g.now()

	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	for _, room := range rooms {
		if room.expire(now, g.cfg.IdleThreshold) {
			g.evict(ctx, room)
		}
	}
}

func (g *Registry) evict(ctx context.Context, room *Room) {
	g.mu.Lock()
	if g.rooms[room.id] == room {
		delete(g.rooms, room.id)
	}
	g.mu.Unlock()

	log.Printf("registry: room %s evicted after idle timeout", room.id)
	if err := g.mirror.DeleteRoom(ctx, room.id); err != nil {
		log.Printf("registry: mirror delete %s: %v", room.id, err)
	}
}

// RemoveConnection handles a transport-level connection drop: it locates the
// room holding the handle and removes its player, equivalent to an explicit
// leave. Reports which room was affected, if any.
func (g *Registry) RemoveConnection(conn string) (roomID string, identity string, ok bool) {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	for _, room := range rooms {
		if identity, dropped := room.dropConnection(conn); dropped {
			return room.id, identity, true
		}
	}
	return "", "", false
}

// SubscribeLobby returns a channel receiving room-list updates. The caller
// must invoke the returned cancel function to avoid leaks.
func (g *Registry) SubscribeLobby() (<-chan []domain.RoomSummary, func()) {
	ch := make(chan []domain.RoomSummary, 8)

	g.lobbyMu.Lock()
	g.lobbySubs[ch] = struct{}{}
	g.lobbyMu.Unlock()

	cancel := func() {
		g.lobbyMu.Lock()
		if _, ok := g.lobbySubs[ch]; ok {
			delete(g.lobbySubs, ch)
			close(ch)
		}
		g.lobbyMu.Unlock()
	}
	return ch, cancel
}

// PublishRoomList pushes a fresh room list to every lobby subscriber.
// Called by the transport after any lobby-visible change.
func (g *Registry) PublishRoomList(ctx context.Context) []domain.RoomSummary {
	list := g.ListJoinableRooms(ctx)

	g.lobbyMu.Lock()
	defer g.lobbyMu.Unlock()
	for ch := range g.lobbySubs {
		select {
		case ch <- list:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- list
		}
	}
	return list
}
