package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-room-service/internal/domain"
)

// QuestionLoader reads and appends trivia questions in Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, prompt, answer, media_ref, media_type FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var mediaType string
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Answer, &q.MediaRef, &mediaType); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.MediaType = domain.MediaType(mediaType)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

// AppendQuestion inserts the question and returns it with its assigned id.
func (l *QuestionLoader) AppendQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.MediaRef == "" {
		q.MediaType = domain.MediaText
	} else if q.MediaType == "" {
		q.MediaType = domain.MediaImage
	}

	err := l.pool.QueryRow(ctx,
		`INSERT INTO questions (prompt, answer, media_ref, media_type) VALUES ($1, $2, $3, $4) RETURNING id`,
		q.Prompt, q.Answer, q.MediaRef, string(q.MediaType),
	).Scan(&q.ID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("append question: %w", err)
	}
	return q, nil
}
