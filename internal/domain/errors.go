package domain

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the lookup chain.
	ErrUserNotFound = errors.New("user not found")
	// ErrPostNotFound indicates the vote/comment target post is absent.
	ErrPostNotFound = errors.New("post not found")
	// ErrCommentNotFound indicates a vote target comment is absent.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound indicates a submitted attempt ID is invalid.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptCompleted is returned for answers or completions racing a
	// finished attempt; callers treat it as a no-op, not a failure.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrNotAuthorized is returned when a caller acts on content they do not own.
	ErrNotAuthorized = errors.New("not authorized")
)
