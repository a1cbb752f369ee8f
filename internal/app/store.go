package app

import (
	"context"

	"faniq-realtime-service/internal/domain"
)

// UserStore resolves and mutates persisted accounts.
type UserStore interface {
	UserByID(ctx context.Context, id string) (domain.User, error)
	UserByExternalID(ctx context.Context, externalID string) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	// AddFandomScore atomically increments a user's cumulative fandom score.
	AddFandomScore(ctx context.Context, userID string, delta int) error
}

// PostStore owns posts and their denormalized counters.
type PostStore interface {
	CreatePost(ctx context.Context, post domain.Post) (domain.Post, error)
	PostByID(ctx context.Context, id string) (domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	// ListPosts returns a community's newest posts first, at most limit.
	ListPosts(ctx context.Context, communityID string, limit int) ([]domain.Post, error)
	// AdjustPostVotes applies a delta pair through the store's atomic
	// increment primitive and returns the resulting absolute counters.
	AdjustPostVotes(ctx context.Context, postID string, dUp, dDown int) (int, int, error)
	// IncrementCommentCount bumps the denormalized comment counter and
	// returns the new value.
	IncrementCommentCount(ctx context.Context, postID string) (int, error)
}

// CommentStore owns comments and their vote counters.
type CommentStore interface {
	CreateComment(ctx context.Context, comment domain.Comment) (domain.Comment, error)
	AdjustCommentVotes(ctx context.Context, commentID string, dUp, dDown int) (int, int, error)
}

// VoteStore keeps at most one live vote row per (target, user). Swap
// removes the existing row and inserts the new direction (none inserts
// nothing) in a single transaction scoped to that pair, returning the
// prior direction.
type VoteStore interface {
	SwapPostVote(ctx context.Context, postID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error)
	SwapCommentVote(ctx context.Context, commentID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error)
}

// QuizStore owns questions, attempts, and responses.
type QuizStore interface {
	// QuestionsByQuiz returns a quiz's questions ordered by orderIndex.
	QuestionsByQuiz(ctx context.Context, quizID string) ([]domain.QuizQuestion, error)
	AttemptByID(ctx context.Context, attemptID string) (domain.QuizAttempt, error)
	CreateResponse(ctx context.Context, response domain.QuizResponse) error
	ResponsesByAttempt(ctx context.Context, attemptID string) ([]domain.QuizResponse, error)
	UpdateAttemptCounters(ctx context.Context, attemptID string, correctAnswers, streak, maxStreak int) error
	// CompleteAttempt persists the write-once scoring fields and flips the
	// attempt to completed.
	CompleteAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	SetAttemptRank(ctx context.Context, attemptID string, rank int) error
	// CountBetterAttempts counts completed attempts of the quiz with a
	// strictly greater final score.
	CountBetterAttempts(ctx context.Context, quizID string, finalScore float64) (int, error)
	// TopAttempts returns the quiz's best completed attempts joined with
	// user identity, ordered by final score descending. Rank and score
	// rounding are left to the caller.
	TopAttempts(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error)
}

// QuestionSource serves question sheets to the quiz flow, typically
// through a TTL cache in front of QuizStore.QuestionsByQuiz.
type QuestionSource interface {
	Questions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error)
}

// Store is the full persistence surface the server wires at startup.
type Store interface {
	UserStore
	PostStore
	CommentStore
	VoteStore
	QuizStore
}
