package app

import "trivia-room-service/internal/domain"

// Identity resolution: each room maintains a bidirectional mapping between
// persistent player identities and the ephemeral connection handle currently
// serving them. Handles change across reconnects, identities do not, and the
// host is tracked by identity so a reconnect never moves host authority.

// IdentityFor resolves a live connection handle to its persistent identity.
func (r *Room) IdentityFor(conn string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.conns[conn]
	if !ok {
		return "", domain.ErrUnknownPlayer
	}
	return identity, nil
}

// ConnectionFor returns the handle currently bound to the identity. The
// handle is empty when the player is known but disconnected.
func (r *Room) ConnectionFor(identity string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[identity]
	if !ok {
		return "", domain.ErrIdentityNotFound
	}
	return p.conn, nil
}

// Bind attaches a handle to an identity without reconnect semantics: it
// fails if the identity is already served by a different live connection.
func (r *Room) Bind(identity, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[identity]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	if p.conn != "" && p.conn != conn {
		return domain.ErrAlreadyConnected
	}
	r.bindLocked(p, conn)
	return nil
}

// Rebind atomically replaces the identity's handle, preserving score and
// membership. Host status is unaffected since the host is keyed by identity.
func (r *Room) Rebind(identity, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[identity]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	r.rebindLocked(p, conn)
	return nil
}

func (r *Room) bindLocked(p *player, conn string) {
	if conn == "" {
		return
	}
	p.conn = conn
	r.conns[conn] = p.identity
}

func (r *Room) rebindLocked(p *player, conn string) {
	if p.conn != "" {
		delete(r.conns, p.conn)
	}
	p.conn = ""
	r.bindLocked(p, conn)
}
