package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

// RoomMirror keeps a best-effort copy of room summaries in Redis so a
// restarted instance (or an operator) can see what rooms existed. Gameplay
// never reads it back; the in-memory registry stays authoritative.
// Rooms are stored as: HSET room:{roomID} host {name} players {n} state {s}
type RoomMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomMirror(client *redis.Client, ttl time.Duration) *RoomMirror {
	return &RoomMirror{client: client, ttl: ttl}
}

func (m *RoomMirror) SaveRoom(ctx context.Context, summary domain.RoomSummary, state domain.RoomState) error {
	key := m.key(summary.RoomID)
	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key,
		"host", summary.HostDisplayName,
		"players", strconv.Itoa(summary.PlayerCount),
		"state", string(state),
	)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RoomMirror) DeleteRoom(ctx context.Context, roomID string) error {
	return m.client.Del(ctx, m.key(roomID)).Err()
}

func (m *RoomMirror) key(roomID string) string {
	return "room:" + roomID
}
