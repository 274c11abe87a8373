package app

import (
	"context"
	"testing"
	"time"

	"trivia-room-service/internal/domain"
)

func startedRoom(t *testing.T, questions []domain.Question, maxRounds int, delay time.Duration) *Room {
	t.Helper()
	cfg := Config{MaxRounds: maxRounds, AdvanceDelay: delay, IdleThreshold: 300 * time.Second}
	room := newRoom("room-1", cfg, &staticSource{questions: questions}, NopMirror{})
	mustJoinPair(t, room)
	if err := room.StartMatch(context.Background(), "alice"); err != nil {
		t.Fatalf("start match: %v", err)
	}
	return room
}

func correctAnswer(t *testing.T, room *Room) string {
	t.Helper()
	q, ok := room.CurrentQuestion()
	if !ok {
		t.Fatalf("expected an active question")
	}
	return q.Answer
}

func TestStartMatchRequiresHost(t *testing.T) {
	room := testRoom(questionFixture(3))
	mustJoinPair(t, room)

	if err := room.StartMatch(context.Background(), "bob"); err != domain.ErrNotHost {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if state := room.State(); state != domain.StateLobby {
		t.Fatalf("expected room still in lobby, got %s", state)
	}
}

func TestStartMatchRequiresTwoPlayers(t *testing.T) {
	room := testRoom(questionFixture(3))
	if _, err := room.Join("alice", "Alice", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := room.StartMatch(context.Background(), "alice"); err != domain.ErrInsufficientPlayers {
		t.Fatalf("expected ErrInsufficientPlayers, got %v", err)
	}
}

func TestStartMatchIssuesFirstRound(t *testing.T) {
	room := testRoom(questionFixture(3))
	mustJoinPair(t, room)

	events, cancel := room.Subscribe()
	defer cancel()

	if err := room.StartMatch(context.Background(), "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if state := room.State(); state != domain.StateInRound {
		t.Fatalf("expected in_round, got %s", state)
	}

	evt := waitEvent(t, events, domain.EventNewRound)
	round := evt.Payload.(domain.RoundInfo)
	if round.RoundIndex != 1 || round.MaxRounds != 10 {
		t.Fatalf("unexpected first round %+v", round)
	}
	if len(round.Players) != 2 || round.Players[0].Score != 0 {
		t.Fatalf("expected reset roster in round payload, got %+v", round.Players)
	}

	// second start is a silent no-op
	if err := room.StartMatch(context.Background(), "alice"); err != nil {
		t.Fatalf("double start should be ignored, got %v", err)
	}
	if got := room.CurrentRound(); got != 1 {
		t.Fatalf("double start advanced the round to %d", got)
	}
}

func TestStartMatchWithEmptySourceFinishesImmediately(t *testing.T) {
	room := testRoom(nil)
	mustJoinPair(t, room)

	events, cancel := room.Subscribe()
	defer cancel()

	if err := room.StartMatch(context.Background(), "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if state := room.State(); state != domain.StateFinished {
		t.Fatalf("expected finished with empty source, got %s", state)
	}
	evt := waitEvent(t, events, domain.EventGameOver)
	over := evt.Payload.(domain.GameOver)
	if len(over.Scoreboard) != 0 {
		t.Fatalf("expected empty scoreboard, got %+v", over.Scoreboard)
	}
}

func TestFirstCorrectWins(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, time.Hour)
	answer := correctAnswer(t, room)

	result, err := room.SubmitAnswer("c1", answer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.AnswerCorrectFirst {
		t.Fatalf("expected correct_first, got %s", result.Status)
	}
	if result.Scores[0].Identity != "alice" || result.Scores[0].Score != 1 {
		t.Fatalf("expected alice leading with 1, got %+v", result.Scores)
	}

	second, err := room.SubmitAnswer("c2", answer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.Status != domain.AnswerCorrect {
		t.Fatalf("expected correct (no score), got %s", second.Status)
	}
	for _, p := range room.Players() {
		if p.Identity == "bob" && p.Score != 0 {
			t.Fatalf("only the first correct responder scores, bob has %d", p.Score)
		}
	}
}

func TestDuplicateSubmissionNotScoredTwice(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, time.Hour)
	answer := correctAnswer(t, room)

	if _, err := room.SubmitAnswer("c1", answer); err != nil {
		t.Fatalf("submit: %v", err)
	}
	result, err := room.SubmitAnswer("c1", answer)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.Status != domain.AnswerAlreadyAnswered {
		t.Fatalf("expected already_answered, got %s", result.Status)
	}
	if players := room.Players(); players[0].Score != 1 {
		t.Fatalf("expected score to stay at 1, got %d", players[0].Score)
	}
}

func TestAnswerComparisonTrimsAndIgnoresCase(t *testing.T) {
	questions := []domain.Question{{ID: 1, Prompt: "capital?", Answer: " Paris ", MediaType: domain.MediaText}}
	room := startedRoom(t, questions, 10, time.Hour)

	result, err := room.SubmitAnswer("c1", "  pArIs")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.AnswerCorrectFirst {
		t.Fatalf("expected trimmed case-insensitive match, got %s", result.Status)
	}
}

func TestIncorrectAnswersRecordedInHistory(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, time.Hour)

	result, err := room.SubmitAnswer("c2", "definitely wrong")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.AnswerIncorrect {
		t.Fatalf("expected incorrect, got %s", result.Status)
	}
	if _, err := room.SubmitAnswer("c1", correctAnswer(t, room)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	history := room.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(history))
	}
	if history[0].Correct || history[0].Identity != "bob" || history[0].Answer != "definitely wrong" {
		t.Fatalf("unexpected first record %+v", history[0])
	}
	if !history[1].Correct || history[1].Identity != "alice" {
		t.Fatalf("unexpected second record %+v", history[1])
	}
}

func TestSubmitIgnoredOutsideRound(t *testing.T) {
	room := testRoom(questionFixture(3))
	mustJoinPair(t, room)

	result, err := room.SubmitAnswer("c1", "anything")
	if err != nil || result != nil {
		t.Fatalf("expected silent ignore before match start, got %v %v", result, err)
	}
	if _, err := room.SubmitAnswer("c99", "anything"); err != domain.ErrUnknownPlayer {
		t.Fatalf("expected ErrUnknownPlayer for unresolvable handle, got %v", err)
	}
}

func TestRoundExhaustionFinishesMatch(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, time.Hour)

	room.mu.Lock()
	room.players["bob"].score = 2
	room.mu.Unlock()

	for i := 0; i < 9; i++ {
		room.AdvanceRound()
	}
	if got := room.CurrentRound(); got != 10 {
		t.Fatalf("expected round 10, got %d", got)
	}
	room.AdvanceRound()

	if state := room.State(); state != domain.StateFinished {
		t.Fatalf("expected finished after round budget, got %s", state)
	}
	board := room.Scoreboard()
	if board[0].Identity != "bob" || board[1].Identity != "alice" {
		t.Fatalf("expected scoreboard sorted by score desc, got %+v", board)
	}
	// finished is terminal
	room.AdvanceRound()
	if state := room.State(); state != domain.StateFinished {
		t.Fatalf("advance after finish changed state to %s", state)
	}
}

func TestPoolHasNoRepeatsWithinOneCycle(t *testing.T) {
	room := startedRoom(t, questionFixture(5), 5, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		q, ok := room.CurrentQuestion()
		if !ok {
			t.Fatalf("round %d: no question", i+1)
		}
		if seen[q.Prompt] {
			t.Fatalf("question %q repeated within one pool cycle", q.Prompt)
		}
		seen[q.Prompt] = true
		room.AdvanceRound()
	}
}

func TestPoolRefillsWhenExhausted(t *testing.T) {
	// 2 questions, 6 rounds: the pool must reshuffle twice without stalling
	room := startedRoom(t, questionFixture(2), 6, time.Hour)

	for i := 0; i < 5; i++ {
		if _, ok := room.CurrentQuestion(); !ok {
			t.Fatalf("round %d: no question after refill", i+1)
		}
		room.AdvanceRound()
	}
	if state := room.State(); state != domain.StateInRound {
		t.Fatalf("expected match still running, got %s", state)
	}
}

func TestDeferredAdvanceFires(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, 20*time.Millisecond)

	events, cancel := room.Subscribe()
	defer cancel()

	if _, err := room.SubmitAnswer("c1", correctAnswer(t, room)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	evt := waitEvent(t, events, domain.EventNewRound)
	round := evt.Payload.(domain.RoundInfo)
	if round.RoundIndex != 2 {
		t.Fatalf("expected deferred advance to issue round 2, got %d", round.RoundIndex)
	}
}

func TestStaleDeferredAdvanceIsSuppressed(t *testing.T) {
	room := startedRoom(t, questionFixture(5), 10, 30*time.Millisecond)

	if _, err := room.SubmitAnswer("c1", correctAnswer(t, room)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// manual advance beats the timer; the timer firing later must not
	// double-skip
	room.AdvanceRound()
	if got := room.CurrentRound(); got != 2 {
		t.Fatalf("expected round 2 after manual advance, got %d", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := room.CurrentRound(); got != 2 {
		t.Fatalf("stale timer fired: round moved to %d", got)
	}
}

func TestDeferredAdvanceSuppressedAfterClose(t *testing.T) {
	room := startedRoom(t, questionFixture(3), 10, 20*time.Millisecond)

	if _, err := room.SubmitAnswer("c1", correctAnswer(t, room)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	room.close()

	time.Sleep(80 * time.Millisecond)
	if got := room.CurrentRound(); got != 1 {
		t.Fatalf("timer fired on closed room: round %d", got)
	}
}

func TestFullMatchScenario(t *testing.T) {
	// create room, alice and bob join, alice starts with maxRounds=2 and a
	// 2-question pool; bob takes round 1, alice takes round 2, tie broken
	// by join order.
	room := startedRoom(t, questionFixture(2), 2, 20*time.Millisecond)

	events, cancel := room.Subscribe()
	defer cancel()

	result, err := room.SubmitAnswer("c2", correctAnswer(t, room))
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if result.Status != domain.AnswerCorrectFirst {
		t.Fatalf("expected bob correct_first, got %s", result.Status)
	}

	round := waitEvent(t, events, domain.EventNewRound).Payload.(domain.RoundInfo)
	if round.RoundIndex != 2 {
		t.Fatalf("expected round 2, got %d", round.RoundIndex)
	}

	result, err = room.SubmitAnswer("c1", correctAnswer(t, room))
	if err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if result.Status != domain.AnswerCorrectFirst {
		t.Fatalf("expected alice correct_first, got %s", result.Status)
	}

	over := waitEvent(t, events, domain.EventGameOver).Payload.(domain.GameOver)
	want := []struct {
		identity string
		score    int
	}{{"alice", 1}, {"bob", 1}}
	if len(over.Scoreboard) != 2 {
		t.Fatalf("expected 2 scoreboard entries, got %+v", over.Scoreboard)
	}
	for i, w := range want {
		got := over.Scoreboard[i]
		if got.Identity != w.identity || got.Score != w.score {
			t.Fatalf("scoreboard[%d] = %+v, want %s=%d", i, got, w.identity, w.score)
		}
	}
}
