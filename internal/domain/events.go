package domain

// EventType names an outbound notification emitted by the room engine.
type EventType string

const (
	EventPlayerJoined  EventType = "player_joined"
	EventPlayerLeft    EventType = "player_left"
	EventRosterUpdated EventType = "roster_updated"
	EventHostChanged   EventType = "host_changed"
	EventNewRound      EventType = "new_round"
	EventAnswerResult  EventType = "answer_result"
	EventGameOver      EventType = "game_over"
	EventChatMessage   EventType = "chat_message"
)

// Event is the envelope pushed to room subscribers. The payload type is
// determined by Type (RosterUpdate, HostChange, RoundInfo, AnswerResult,
// GameOver or ChatMessage).
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}
