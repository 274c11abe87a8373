package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and routes inbound room
// events into the registry. Each accepted socket is assigned a fresh
// connection handle; the persistent identity comes from the auth token.
type WSHandler struct {
	registry *app.Registry
	verifier IdentityVerifier
	upgrader websocket.Upgrader
}

// NewWSHandler builds the handler. A nil verifier accepts the identity from
// query parameters directly, for local development and tests.
func NewWSHandler(registry *app.Registry, verifier IdentityVerifier) *WSHandler {
	return &WSHandler{
		registry: registry,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type answerPayload struct {
	RoomID string `json:"roomId"`
	Answer string `json:"answer"`
}

type chatPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinedPayload struct {
	RoomID string `json:"roomId"`
}

// ServeWS runs one connection's event loop. All writes to the socket go
// through a single writer goroutine; room and lobby subscriptions are
// pumped into the same send channel.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, displayName, err := h.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	lobbyCh, lobbyCancel := h.registry.SubscribeLobby()
	lobbyDone := pumpLobby(lobbyCh, send, closeSignals)

	var currentRoom *app.Room
	var roomCancel func()
	var roomDone chan struct{}

	leaveCurrent := func() {
		if roomCancel != nil {
			roomCancel()
			<-roomDone
			roomCancel = nil
			roomDone = nil
		}
		currentRoom = nil
	}

	send <- outboundMessage[any]{Type: "room_list_updated", Payload: h.registry.ListJoinableRooms(r.Context())}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "create_room":
			var payload roomPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			if _, err := h.registry.CreateRoom(r.Context(), payload.RoomID); err != nil {
				sendError(send, err)
				continue
			}
			send <- outboundMessage[any]{Type: "room_created", Payload: joinedPayload{RoomID: payload.RoomID}}
			h.registry.PublishRoomList(r.Context())

		case "join_room":
			var payload roomPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			room, err := h.registry.GetRoom(payload.RoomID)
			if err != nil {
				sendError(send, err)
				continue
			}
			if currentRoom != nil && currentRoom != room {
				_ = currentRoom.Leave(identity)
				leaveCurrent()
			}
			reconnected, err := room.Join(identity, displayName, connID)
			if err != nil {
				sendError(send, err)
				continue
			}
			if currentRoom != room {
				ch, cancel := room.Subscribe()
				roomCancel = cancel
				roomDone = pumpRoom(ch, send, closeSignals)
				currentRoom = room
			}
			ack := "joined"
			if reconnected {
				ack = "reconnected"
			}
			send <- outboundMessage[any]{Type: ack, Payload: joinedPayload{RoomID: payload.RoomID}}
			h.registry.PublishRoomList(r.Context())

		case "leave_room":
			var payload roomPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			room, err := h.registry.GetRoom(payload.RoomID)
			if err != nil {
				sendError(send, err)
				continue
			}
			if err := room.Leave(identity); err != nil {
				sendError(send, err)
				continue
			}
			if currentRoom == room {
				leaveCurrent()
			}
			h.registry.PublishRoomList(r.Context())

		case "start_game":
			var payload roomPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			room, err := h.registry.GetRoom(payload.RoomID)
			if err != nil {
				sendError(send, err)
				continue
			}
			if err := room.StartMatch(r.Context(), identity); err != nil {
				sendError(send, err)
				continue
			}
			h.registry.PublishRoomList(r.Context())

		case "answer":
			var payload answerPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			room, err := h.registry.GetRoom(payload.RoomID)
			if err != nil {
				sendError(send, err)
				continue
			}
			result, err := room.SubmitAnswer(connID, payload.Answer)
			if err != nil {
				sendError(send, err)
				continue
			}
			if result == nil {
				// no round active; expected race, nothing to report
				continue
			}
			if result.Status != domain.AnswerCorrectFirst {
				// the first-correct outcome reaches the caller via the
				// room broadcast; everything else is caller-only
				send <- outboundMessage[any]{Type: "answer_result", Payload: *result}
			}

		case "chat":
			var payload chatPayload
			if !decode(inbound.Payload, &payload, send) {
				continue
			}
			room, err := h.registry.GetRoom(payload.RoomID)
			if err != nil {
				sendError(send, err)
				continue
			}
			if err := room.Chat(connID, payload.Message); err != nil {
				sendError(send, err)
			}

		case "request_room_list":
			send <- outboundMessage[any]{Type: "room_list_updated", Payload: h.registry.ListJoinableRooms(r.Context())}

		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	// socket is gone; a drop without an explicit leave removes the player
	if roomID, who, ok := h.registry.RemoveConnection(connID); ok {
		log.Printf("ws: %s dropped from room %s", who, roomID)
		h.registry.PublishRoomList(context.Background())
	}

	close(closeSignals)
	if roomCancel != nil {
		roomCancel()
		<-roomDone
	}
	lobbyCancel()
	<-lobbyDone
	close(send)
	<-writerDone
}

func (h *WSHandler) authenticate(r *http.Request) (identity, displayName string, err error) {
	if h.verifier != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			return "", "", errors.New("missing token")
		}
		return h.verifier.Verify(token)
	}

	identity = r.URL.Query().Get("identity")
	if identity == "" {
		return "", "", errors.New("missing identity")
	}
	displayName = r.URL.Query().Get("name")
	if displayName == "" {
		displayName = identity
	}
	return identity, displayName, nil
}

func pumpRoom(ch <-chan domain.Event, send chan<- outboundMessage[any], closeSignals <-chan struct{}) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(evt.Type), Payload: evt.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return done
}

func pumpLobby(ch <-chan []domain.RoomSummary, send chan<- outboundMessage[any], closeSignals <-chan struct{}) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case list, ok := <-ch:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "room_list_updated", Payload: list}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return done
}

func decode(raw json.RawMessage, dst any, send chan<- outboundMessage[any]) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid payload"}}
		return false
	}
	return true
}

func sendError(send chan<- outboundMessage[any], err error) {
	send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
