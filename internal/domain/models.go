package domain

import "time"

// MediaType classifies the media attached to a question.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaText  MediaType = "text"
)

// Question is one entry from the shared question pool. Immutable once
// issued to a round.
type Question struct {
	ID        int64     `json:"id"`
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
	MediaRef  string    `json:"mediaRef,omitempty"`
	MediaType MediaType `json:"mediaType"`
}

// RoomState is the per-room match state.
type RoomState string

const (
	StateLobby    RoomState = "lobby"
	StateInRound  RoomState = "in_round"
	StateFinished RoomState = "finished"
)

// PlayerInfo is a snapshot-friendly view of a room member. Identity is
// stable across reconnects; connection handles are never exposed here.
type PlayerInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// RoomSummary is the lobby-listing view of a room.
type RoomSummary struct {
	RoomID          string `json:"roomId"`
	HostDisplayName string `json:"hostDisplayName"`
	PlayerCount     int    `json:"playerCount"`
}

// RoundInfo describes a freshly issued round.
type RoundInfo struct {
	RoundIndex int          `json:"round"`
	MaxRounds  int          `json:"maxRounds"`
	Prompt     string       `json:"prompt"`
	MediaRef   string       `json:"mediaRef,omitempty"`
	MediaType  MediaType    `json:"mediaType"`
	Players    []PlayerInfo `json:"players"`
}

// GameOver carries the final scoreboard, sorted by score descending with
// ties broken by join order.
type GameOver struct {
	Scoreboard []PlayerInfo `json:"scoreboard"`
}

// AnswerStatus is the outcome of a single answer submission.
type AnswerStatus string

const (
	AnswerCorrectFirst    AnswerStatus = "correct_first"
	AnswerCorrect         AnswerStatus = "correct"
	AnswerIncorrect       AnswerStatus = "incorrect"
	AnswerAlreadyAnswered AnswerStatus = "already_answered"
)

// AnswerResult summarizes the outcome of a submission. Scores is only
// populated for the first correct answer of a round.
type AnswerResult struct {
	Status      AnswerStatus `json:"status"`
	Identity    string       `json:"identity"`
	DisplayName string       `json:"displayName"`
	Scores      []PlayerInfo `json:"scores,omitempty"`
}

// AnswerRecord is one entry of a room's append-only answer history.
type AnswerRecord struct {
	Round       int
	Identity    string
	Answer      string
	SubmittedAt time.Time
	Correct     bool
}

// ChatMessage is relayed verbatim to every connection in a room.
type ChatMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// RosterUpdate is broadcast whenever room membership changes.
type RosterUpdate struct {
	Players      []PlayerInfo `json:"players"`
	HostIdentity string       `json:"hostIdentity"`
}

// HostChange announces host migration after the previous host left.
type HostChange struct {
	NewHostIdentity string `json:"newHostIdentity"`
	NewHostName     string `json:"newHostName"`
}
