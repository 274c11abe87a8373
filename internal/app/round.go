package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"trivia-room-service/internal/domain"
)

// StartMatch transitions the room from lobby into the first round. Only the
// current host may start, at least two players must be present, and every
// score is reset. With an empty question source the match finishes
// immediately instead of stalling on an unfillable round.
//
// Starting an already started or finished match is a silent no-op: double
// starts are an expected race under concurrent events, not an error.
func (r *Room) StartMatch(ctx context.Context, caller string) error {
	// Fetch outside the room lock; the source may hit the network.
	questions, err := r.source.Questions(ctx)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRoomNotFound
	}
	if r.state != domain.StateLobby {
		return nil
	}
	if caller != r.hostIdentity {
		return domain.ErrNotHost
	}
	if len(r.players) < 2 {
		return domain.ErrInsufficientPlayers
	}

	for _, p := range r.players {
		p.score = 0
	}
	r.questions = questions
	r.currentRound = 0
	r.touchLocked()

	if len(r.questions) == 0 {
		r.state = domain.StateFinished
		r.question = nil
		r.broadcastLocked(domain.Event{Type: domain.EventGameOver, Payload: domain.GameOver{
			Scoreboard: []domain.PlayerInfo{},
		}})
		r.mirrorLocked()
		return nil
	}

	r.state = domain.StateInRound
	r.resetPoolLocked()
	r.advanceLocked()
	r.mirrorLocked()
	return nil
}

// AdvanceRound forces the next round (or game over) immediately. Any pending
// deferred advance for the current round becomes stale and will not fire.
func (r *Room) AdvanceRound() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.state != domain.StateInRound {
		return
	}
	r.stopAdvanceTimerLocked()
	r.advanceLocked()
}

// CurrentRound returns the 1-based index of the active round, 0 before the
// first round is issued.
func (r *Room) CurrentRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound
}

// CurrentQuestion returns a copy of the active question, if any.
func (r *Room) CurrentQuestion() (domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.question == nil {
		return domain.Question{}, false
	}
	return *r.question, true
}

// Scoreboard returns players sorted by score descending, ties broken by
// join order.
func (r *Room) Scoreboard() []domain.PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scoreboardLocked()
}

// SubmitAnswer evaluates a raw answer from the given connection. A nil
// result with nil error means the submission was ignored because no round
// is active, which is expected under normal event races.
func (r *Room) SubmitAnswer(conn, raw string) (*domain.AnswerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrRoomNotFound
	}
	identity, ok := r.conns[conn]
	if !ok {
		return nil, domain.ErrUnknownPlayer
	}
	if r.state != domain.StateInRound || r.question == nil {
		return nil, nil
	}

	p := r.players[identity]
	record := domain.AnswerRecord{
		Round:       r.currentRound,
		Identity:    identity,
		Answer:      raw,
		SubmittedAt: r.now(),
	}

	if _, done := r.answered[identity]; done {
		r.history = append(r.history, record)
		return &domain.AnswerResult{
			Status:      domain.AnswerAlreadyAnswered,
			Identity:    identity,
			DisplayName: p.displayName,
		}, nil
	}

	if !answersMatch(raw, r.question.Answer) {
		r.history = append(r.history, record)
		return &domain.AnswerResult{
			Status:      domain.AnswerIncorrect,
			Identity:    identity,
			DisplayName: p.displayName,
		}, nil
	}

	record.Correct = true
	r.history = append(r.history, record)
	first := len(r.answered) == 0
	r.answered[identity] = struct{}{}
	r.touchLocked()

	if !first {
		// only the first correct responder scores
		return &domain.AnswerResult{
			Status:      domain.AnswerCorrect,
			Identity:    identity,
			DisplayName: p.displayName,
		}, nil
	}

	p.score++
	result := domain.AnswerResult{
		Status:      domain.AnswerCorrectFirst,
		Identity:    identity,
		DisplayName: p.displayName,
		Scores:      r.scoreboardLocked(),
	}
	r.broadcastLocked(domain.Event{Type: domain.EventAnswerResult, Payload: result})
	r.scheduleAdvanceLocked()
	return &result, nil
}

// answersMatch trims surrounding whitespace and compares case-insensitively.
// No further normalization.
func answersMatch(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}

// scheduleAdvanceLocked arms the deferred round advance. The timer does not
// hold the room lock while waiting; at fire time it reacquires the lock and
// re-checks that the room is still playing the same round, so a stale timer
// (manual advance, match ended, room deleted) is a no-op.
func (r *Room) scheduleAdvanceLocked() {
	round := r.currentRound
	r.stopAdvanceTimerLocked()
	r.advanceTimer = time.AfterFunc(r.advanceDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.state != domain.StateInRound || r.currentRound != round {
			return
		}
		r.advanceLocked()
	})
}

func (r *Room) stopAdvanceTimerLocked() {
	if r.advanceTimer != nil {
		r.advanceTimer.Stop()
		r.advanceTimer = nil
	}
}

// advanceLocked issues the next round, or finalizes the match once the
// round budget is exhausted.
func (r *Room) advanceLocked() {
	if r.currentRound >= r.maxRounds || len(r.questions) == 0 {
		r.finishLocked()
		return
	}

	r.currentRound++
	if len(r.pool) == 0 {
		r.resetPoolLocked()
	}
	idx := r.pool[len(r.pool)-1]
	r.pool = r.pool[:len(r.pool)-1]
	q := r.questions[idx]
	r.question = &q
	r.answered = make(map[string]struct{})
	r.touchLocked()

	r.broadcastLocked(domain.Event{Type: domain.EventNewRound, Payload: r.roundInfoLocked()})
}

func (r *Room) finishLocked() {
	r.state = domain.StateFinished
	r.question = nil
	r.stopAdvanceTimerLocked()
	r.broadcastLocked(domain.Event{Type: domain.EventGameOver, Payload: domain.GameOver{
		Scoreboard: r.scoreboardLocked(),
	}})
	r.mirrorLocked()
}

// resetPoolLocked draws a fresh permutation of all question indices. The
// pool is only refilled when exhausted, so no index repeats within one
// unused-pool cycle.
func (r *Room) resetPoolLocked() {
	r.pool = r.rnd.Perm(len(r.questions))
}

func (r *Room) roundInfoLocked() domain.RoundInfo {
	mediaType := r.question.MediaType
	if r.question.MediaRef == "" {
		mediaType = domain.MediaText
	}
	return domain.RoundInfo{
		RoundIndex: r.currentRound,
		MaxRounds:  r.maxRounds,
		Prompt:     r.question.Prompt,
		MediaRef:   r.question.MediaRef,
		MediaType:  mediaType,
		Players:    r.playersLocked(),
	}
}

func (r *Room) scoreboardLocked() []domain.PlayerInfo {
	entries := r.playersLocked()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
