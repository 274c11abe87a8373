package app

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"trivia-room-service/internal/domain"
)

// QuestionSource supplies the ordered question pool shared by all rooms.
type QuestionSource interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// RoomMirror receives best-effort copies of room state for durable storage.
// The in-memory room stays authoritative; mirror failures are logged and
// never block or roll back gameplay.
type RoomMirror interface {
	SaveRoom(ctx context.Context, summary domain.RoomSummary, state domain.RoomState) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// NopMirror discards all mirror writes.
type NopMirror struct{}

func (NopMirror) SaveRoom(context.Context, domain.RoomSummary, domain.RoomState) error {
	return nil
}

func (NopMirror) DeleteRoom(context.Context, string) error { return nil }

type player struct {
	identity    string
	displayName string
	conn        string // live connection handle, empty while disconnected
	score       int
}

// Room is the per-room state machine. Every mutating operation takes the
// room's own mutex, so concurrent events on one room are linearized while
// distinct rooms proceed in parallel.
type Room struct {
	id     string
	source QuestionSource
	mirror RoomMirror
	now    func() time.Time

	mu           sync.Mutex
	closed       bool
	state        domain.RoomState
	hostIdentity string
	players      map[string]*player
	order        []string          // identities in join order
	conns        map[string]string // connection handle -> identity
	lastActivity time.Time

	// match state, managed by round.go
	currentRound int
	maxRounds    int
	question     *domain.Question
	answered     map[string]struct{}
	pool         []int
	questions    []domain.Question
	history      []domain.AnswerRecord
	advanceDelay time.Duration
	advanceTimer *time.Timer
	rnd          *rand.Rand

	subscribers map[chan domain.Event]struct{}
}

func newRoom(id string, cfg Config, source QuestionSource, mirror RoomMirror) *Room {
	return newRoomWithClock(id, cfg, source, mirror, time.Now)
}

// newRoomWithClock allows deterministic timestamps in tests.
func newRoomWithClock(id string, cfg Config, source QuestionSource, mirror RoomMirror, now func() time.Time) *Room {
	return &Room{
		id:           id,
		source:       source,
		mirror:       mirror,
		now:          now,
		state:        domain.StateLobby,
		players:      make(map[string]*player),
		conns:        make(map[string]string),
		lastActivity: now(),
		maxRounds:    cfg.MaxRounds,
		answered:     make(map[string]struct{}),
		advanceDelay: cfg.AdvanceDelay,
		rnd:          rand.New(rand.NewSource(now().UnixNano())),
		subscribers:  make(map[chan domain.Event]struct{}),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) HostIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostIdentity
}

// Players returns the roster in join order.
func (r *Room) Players() []domain.PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playersLocked()
}

// History returns a copy of the append-only answer history.
func (r *Room) History() []domain.AnswerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AnswerRecord, len(r.history))
	copy(out, r.history)
	return out
}

// Join adds a brand-new identity to the room, or rebinds a known identity
// to a fresh connection handle. Reconnecting preserves score, membership
// and host status; reconnected reports which path was taken.
func (r *Room) Join(identity, displayName, conn string) (reconnected bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, domain.ErrRoomNotFound
	}

	if p, ok := r.players[identity]; ok {
		r.rebindLocked(p, conn)
		if displayName != "" {
			p.displayName = displayName
		}
		r.touchLocked()
		// a reconnect is not a new join; refresh the roster without
		// announcing anyone
		r.broadcastLocked(domain.Event{Type: domain.EventRosterUpdated, Payload: r.rosterLocked()})
		r.mirrorLocked()
		return true, nil
	}

	if r.state != domain.StateLobby {
		return false, domain.ErrMatchStarted
	}

	if len(r.players) == 0 {
		r.hostIdentity = identity
	}
	p := &player{identity: identity, displayName: displayName}
	r.players[identity] = p
	r.order = append(r.order, identity)
	r.bindLocked(p, conn)

	r.touchLocked()
	r.broadcastLocked(domain.Event{Type: domain.EventPlayerJoined, Payload: r.rosterLocked()})
	r.mirrorLocked()
	return false, nil
}

// Leave removes the identity from the room.
func (r *Room) Leave(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[identity]; !ok {
		return domain.ErrIdentityNotFound
	}
	r.removeLocked(identity)
	return nil
}

// dropConnection removes whichever player owns the handle. Used by the
// registry when the transport reports a dead connection without a room id.
func (r *Room) dropConnection(conn string) (identity string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok = r.conns[conn]
	if !ok {
		return "", false
	}
	r.removeLocked(identity)
	return identity, true
}

func (r *Room) removeLocked(identity string) {
	p := r.players[identity]
	delete(r.players, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if p.conn != "" {
		delete(r.conns, p.conn)
	}
	r.touchLocked()

	var succession *player
	if identity == r.hostIdentity {
		r.hostIdentity = ""
		if len(r.order) > 0 {
			// deterministic succession: next player in join order
			r.hostIdentity = r.order[0]
			succession = r.players[r.hostIdentity]
		}
	}

	r.broadcastLocked(domain.Event{Type: domain.EventPlayerLeft, Payload: r.rosterLocked()})
	if succession != nil {
		log.Printf("room %s: host changed to %s", r.id, succession.identity)
		r.broadcastLocked(domain.Event{Type: domain.EventHostChanged, Payload: domain.HostChange{
			NewHostIdentity: succession.identity,
			NewHostName:     succession.displayName,
		}})
	}
	r.mirrorLocked()
}

// Chat relays a message from the connection's player to the whole room.
func (r *Room) Chat(conn, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.conns[conn]
	if !ok {
		return domain.ErrUnknownPlayer
	}
	r.broadcastLocked(domain.Event{Type: domain.EventChatMessage, Payload: domain.ChatMessage{
		Sender:  r.players[identity].displayName,
		Message: message,
	}})
	return nil
}

// Summary is the lobby-listing view of the room.
func (r *Room) Summary() domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// listing snapshots what the registry needs in one lock acquisition.
func (r *Room) listing() (domain.RoomSummary, domain.RoomState, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked(), r.state, len(r.players)
}

// expire closes the room if it is still empty past the idle threshold at
// check time. The re-check under the room's lock keeps a concurrent join
// from racing the sweep.
func (r *Room) expire(now time.Time, threshold time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return true
	}
	if len(r.players) == 0 && now.Sub(r.lastActivity) > threshold {
		r.closeLocked()
		return true
	}
	return false
}

func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	if r.advanceTimer != nil {
		r.advanceTimer.Stop()
		r.advanceTimer = nil
	}
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// Subscribe returns a channel receiving the room's outbound events.
// The caller must invoke the returned cancel function to avoid leaks.
func (r *Room) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcastLocked(evt domain.Event) {
	for ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
			// drop the oldest event rather than block the room on a slow client
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}

func (r *Room) playersLocked() []domain.PlayerInfo {
	infos := make([]domain.PlayerInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		infos = append(infos, domain.PlayerInfo{
			Identity:    p.identity,
			DisplayName: p.displayName,
			Score:       p.score,
		})
	}
	return infos
}

func (r *Room) rosterLocked() domain.RosterUpdate {
	return domain.RosterUpdate{
		Players:      r.playersLocked(),
		HostIdentity: r.hostIdentity,
	}
}

func (r *Room) summaryLocked() domain.RoomSummary {
	hostName := "---"
	if host, ok := r.players[r.hostIdentity]; ok {
		hostName = host.displayName
	}
	return domain.RoomSummary{
		RoomID:          r.id,
		HostDisplayName: hostName,
		PlayerCount:     len(r.players),
	}
}

func (r *Room) touchLocked() {
	r.lastActivity = r.now()
}

// mirrorLocked pushes a snapshot to the durable mirror without holding the
// room lock during the write.
func (r *Room) mirrorLocked() {
	summary := r.summaryLocked()
	state := r.state
	go func() {
		if err := r.mirror.SaveRoom(context.Background(), summary, state); err != nil {
			log.Printf("room %s: mirror save failed: %v", summary.RoomID, err)
		}
	}()
}
