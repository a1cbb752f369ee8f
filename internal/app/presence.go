package app

import "context"

// PresenceRegistry tracks who is in which room. Community rooms count
// connection ids (unauthenticated viewers count toward presence); quiz
// rooms and typing sets are keyed by user id. Implementations are
// in-process (single instance) or Redis-backed (shared across instances).
type PresenceRegistry interface {
	// AddCommunityConn adds a connection to a community room and returns
	// the room's new connection count.
	AddCommunityConn(ctx context.Context, communityID, connID string) int
	// RemoveCommunityConn removes a connection and returns the new count.
	RemoveCommunityConn(ctx context.Context, communityID, connID string) int

	// AddTyping marks a user as typing on a post and returns the post's
	// full typing set.
	AddTyping(ctx context.Context, postID, userID string) []string
	// RemoveTyping clears a user's typing state on a post and returns the
	// post's remaining typing set.
	RemoveTyping(ctx context.Context, postID, userID string) []string
	// PurgeTyping clears a user's typing state everywhere; the result maps
	// each affected post to its remaining typing set. Used on disconnect,
	// where typing is the one registry that must be swept by user id.
	PurgeTyping(ctx context.Context, userID string) map[string][]string

	// AddQuizUser adds a user to a quiz's participant set and returns the
	// new participant count.
	AddQuizUser(ctx context.Context, quizID, userID string) int
	// RemoveQuizUser removes a user and returns the new count.
	RemoveQuizUser(ctx context.Context, quizID, userID string) int
	// QuizCount returns a quiz's current participant count.
	QuizCount(ctx context.Context, quizID string) int
}
