package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

func TestRoomMirrorSavesAndDeletesRooms(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewRoomMirror(client, time.Minute)
	ctx := context.Background()

	summary := domain.RoomSummary{RoomID: "quiz-night", HostDisplayName: "Alice", PlayerCount: 3}
	if err := mirror.SaveRoom(ctx, summary, domain.StateInRound); err != nil {
		t.Fatalf("save room: %v", err)
	}

	if !mr.Exists("room:quiz-night") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("room:quiz-night", "host"); got != "Alice" {
		t.Fatalf("expected host field Alice, got %q", got)
	}
	if got := mr.HGet("room:quiz-night", "players"); got != "3" {
		t.Fatalf("expected players field 3, got %q", got)
	}
	if got := mr.HGet("room:quiz-night", "state"); got != "in_round" {
		t.Fatalf("expected state field in_round, got %q", got)
	}
	if ttl := mr.TTL("room:quiz-night"); ttl != time.Minute {
		t.Fatalf("expected one minute ttl, got %v", ttl)
	}

	if err := mirror.DeleteRoom(ctx, "quiz-night"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if mr.Exists("room:quiz-night") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestRoomMirrorWithoutTTLSkipsExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewRoomMirror(client, 0)

	summary := domain.RoomSummary{RoomID: "quiz-night", HostDisplayName: "Alice", PlayerCount: 1}
	if err := mirror.SaveRoom(context.Background(), summary, domain.StateLobby); err != nil {
		t.Fatalf("save room: %v", err)
	}
	if ttl := mr.TTL("room:quiz-night"); ttl != 0 {
		t.Fatalf("expected no ttl, got %v", ttl)
	}
}
