package app

// Outbound event names. Room-scoped unless a handler unicasts them.
const (
	EventOnlineCount      = "online:count"
	EventPostNew          = "post:new"
	EventPostVoteUpdate   = "post:vote:update"
	EventPostDeleted      = "post:deleted"
	EventPostCommentCount = "post:comment:count"
	EventPostsList        = "posts:list"
	EventCommentNew       = "comment:new"
	EventCommentVote      = "comment:vote:update"
	EventTypingUpdate     = "typing:update"
	EventParticipantCount = "quiz:participant:count"
	EventAnswerResult     = "quiz:answer:result"
	EventQuestion         = "quiz:question"
	EventCompleteResult   = "quiz:complete:result"
	EventLeaderboard      = "quiz:leaderboard:update"
	EventError            = "error"
)

// Event is a single outbound frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// OnlineCount reports a community room's live connection count.
type OnlineCount struct {
	CommunityID string `json:"communityId"`
	Count       int    `json:"count"`
}

// TypingUpdate carries the full set of users typing on a post; order is
// not guaranteed.
type TypingUpdate struct {
	PostID string   `json:"postId"`
	Users  []string `json:"users"`
}

// PostVoteUpdate carries absolute counters, never deltas.
type PostVoteUpdate struct {
	PostID    string `json:"postId"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// CommentVoteUpdate carries absolute counters for a comment.
type CommentVoteUpdate struct {
	CommentID string `json:"commentId"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// PostCommentCount refreshes the denormalized comment count shown in
// community feeds that do not subscribe to individual post rooms.
type PostCommentCount struct {
	PostID string `json:"postId"`
	Count  int    `json:"count"`
}

// PostDeleted notifies a community room that a post is gone.
type PostDeleted struct {
	PostID string `json:"postId"`
}

// ParticipantCount reports a quiz room's participant total.
type ParticipantCount struct {
	QuizID string `json:"quizId"`
	Count  int    `json:"count"`
}

// ErrorPayload is the scoped error event; it never closes the connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Room topic names. One namespace per room kind.
func CommunityRoom(id string) string { return "community:" + id }
func PostRoom(id string) string      { return "post:" + id }
func QuizRoom(id string) string      { return "quiz:" + id }
