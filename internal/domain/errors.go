package domain

import "errors"

var (
	// ErrRoomExists is returned when creating a room whose id is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomNotFound is returned when a room id cannot be resolved.
	ErrRoomNotFound = errors.New("room not found")
	// ErrIdentityNotFound is returned when an identity has no entry in a room.
	ErrIdentityNotFound = errors.New("identity not found in room")
	// ErrAlreadyConnected is returned when an identity is bound to a different
	// live connection and the caller did not ask for reconnect semantics.
	ErrAlreadyConnected = errors.New("identity already connected")
	// ErrUnknownPlayer is returned when a connection handle resolves to no player.
	ErrUnknownPlayer = errors.New("player not found in room")
	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = errors.New("only the host may start the match")
	// ErrInsufficientPlayers is returned when a match is started with fewer
	// than two players.
	ErrInsufficientPlayers = errors.New("at least two players required")
	// ErrMatchStarted is returned when a new identity tries to join a room
	// whose match is already in progress.
	ErrMatchStarted = errors.New("match already in progress")
)
