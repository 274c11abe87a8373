package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// QuestionLoader fetches the ordered question collection from a backing
// store (Postgres, a CSV export, etc) and appends new entries to it.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
	AppendQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
}

const catalogKey = "questions"

// Catalog caches the question collection with a TTL to avoid repeated
// backing-store hits; rooms draw their per-match pools from it.
type Catalog struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Question
	expiresAt time.Time
}

func NewCatalog(loader QuestionLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions returns the cached collection, reloading it once per TTL window.
func (c *Catalog) Questions(ctx context.Context) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if c.cached != nil && c.expiresAt.After(now) {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.cached != nil && c.expiresAt.After(now) {
			cached := c.cached
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = questions
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Append forwards a new question to the backing store and invalidates the
// cache so the next match sees it.
func (c *Catalog) Append(ctx context.Context, q domain.Question) (domain.Question, error) {
	stored, err := c.loader.AppendQuestion(ctx, q)
	if err != nil {
		return domain.Question{}, err
	}

	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
	return stored, nil
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticLoader is a QuestionLoader backed by an in-memory slice (useful for
// tests/demos and for running without Postgres).
type StaticLoader struct {
	mu        sync.Mutex
	questions []domain.Question
}

func NewStaticLoader(questions []domain.Question) *StaticLoader {
	return &StaticLoader{questions: questions}
}

func (l *StaticLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}

// AppendQuestion assigns the next monotonic id and stores the question.
func (l *StaticLoader) AppendQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var maxID int64
	for _, existing := range l.questions {
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}
	q.ID = maxID + 1
	if q.MediaRef == "" {
		q.MediaType = domain.MediaText
	} else if q.MediaType == "" {
		q.MediaType = domain.MediaImage
	}
	l.questions = append(l.questions, q)
	return q, nil
}
