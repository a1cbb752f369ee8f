package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"faniq-realtime-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a quiz's question sheet from a backing store.
type QuestionLoader interface {
	QuestionsByQuiz(ctx context.Context, quizID string) ([]domain.QuizQuestion, error)
}

// QuestionCache caches a quiz's full question sheet as a JSON value:
//
//	SET quiz:{quizID}:questions {json} EX ttl
//
// The sheet includes correct answers, so it must never be handed to a
// client unfiltered. Misses fall through to the loader under singleflight.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	if questions, ok := c.fromCache(ctx, quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if questions, ok := c.fromCache(ctx, quizID); ok {
			return questions, nil
		}

		questions, err := c.loader.QuestionsByQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, c.key(quizID), data, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (c *QuestionCache) fromCache(ctx context.Context, quizID string) ([]domain.QuizQuestion, bool) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.QuizQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
