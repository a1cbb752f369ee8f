package domain

import "time"

// Identity is the already-verified caller handed to a connection by the
// transport's auth message. The core never checks credentials itself.
type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	FandomScore int    `json:"fandomScore"`
}

// User is the persisted account a post, comment, or attempt belongs to.
type User struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"externalId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	FandomScore int       `json:"fandomScore"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Post carries denormalized vote and comment counters kept in sync by
// writers; readers never recount rows.
type Post struct {
	ID           string    `json:"id"`
	CommunityID  string    `json:"communityId"`
	AuthorID     string    `json:"authorId"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Type         string    `json:"type"`
	Images       []string  `json:"images,omitempty"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
	Author       *User     `json:"author,omitempty"`
}

// Comment is a post reply; ParentID is set for one-level threading.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	ParentID  string    `json:"parentId,omitempty"`
	Content   string    `json:"content"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *User     `json:"author,omitempty"`
}

// VoteDirection is a user's stance on a target. VoteNone clears the vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
	VoteNone VoteDirection = ""
)

// Vote is composite-keyed by (TargetID, UserID); at most one live row per
// user per target.
type Vote struct {
	TargetID string        `json:"targetId"`
	UserID   string        `json:"userId"`
	Type     VoteDirection `json:"type"`
}

// QuizQuestion holds the correct answer; it must never cross the wire.
type QuizQuestion struct {
	ID            string   `json:"id"`
	QuizID        string   `json:"quizId"`
	Prompt        string   `json:"question"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit"`
	OrderIndex    int      `json:"orderIndex"`
	Difficulty    string   `json:"difficulty"`
}

// QuestionView is the client-safe projection served by quiz:next.
type QuestionView struct {
	ID             string   `json:"id"`
	Prompt         string   `json:"question"`
	Type           string   `json:"type"`
	Options        []string `json:"options"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	TimeLimit      int      `json:"timeLimit"`
	Difficulty     string   `json:"difficulty"`
	QuestionNumber int      `json:"questionNumber"`
	TotalQuestions int      `json:"totalQuestions"`
}

// AttemptStatus is the lifecycle state of a quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// QuizAttempt accumulates per-answer counters while in progress; the
// scoring fields are written exactly once at completion.
type QuizAttempt struct {
	ID                 string        `json:"id"`
	QuizID             string        `json:"quizId"`
	UserID             string        `json:"userId"`
	TotalQuestions     int           `json:"totalQuestions"`
	CorrectAnswers     int           `json:"correctAnswers"`
	Streak             int           `json:"streak"`
	MaxStreak          int           `json:"maxStreak"`
	Status             AttemptStatus `json:"status"`
	AvgResponseTime    float64       `json:"avgResponseTime"`
	ResponseTimeStdDev float64       `json:"responseTimeStdDev"`
	AccuracyScore      float64       `json:"accuracyScore"`
	SpeedScore         float64       `json:"speedScore"`
	ConsistencyScore   float64       `json:"consistencyScore"`
	FinalScore         float64       `json:"finalScore"`
	Rank               int           `json:"rank"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
}

// QuizResponse is append-only; one row per (attempt, question).
type QuizResponse struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attemptId"`
	QuestionID   string    `json:"questionId"`
	Answer       string    `json:"answer"`
	IsCorrect    bool      `json:"isCorrect"`
	ResponseTime int       `json:"responseTime"` // milliseconds
	CreatedAt    time.Time `json:"createdAt"`
}

// AnswerResult goes back to the submitting connection only.
type AnswerResult struct {
	IsCorrect      bool `json:"isCorrect"`
	Streak         int  `json:"streak"`
	CorrectAnswers int  `json:"correctAnswers"`
}

// CompletionResult is the unicast payload of quiz:complete:result.
// Score fields are rounded for display; ranking uses full precision.
type CompletionResult struct {
	Attempt          QuizAttempt `json:"attempt"`
	FinalScore       float64     `json:"finalScore"`
	AccuracyScore    float64     `json:"accuracyScore"`
	SpeedScore       float64     `json:"speedScore"`
	ConsistencyScore float64     `json:"consistencyScore"`
	FandomBonus      int         `json:"fandomBonus"`
	Rank             int         `json:"rank"`
}

// LeaderboardEntry is one row of the top-N snapshot; Rank is the 1-based
// position in the snapshot, independent of the attempt's stored rank.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	UserID         string  `json:"userId"`
	UserName       string  `json:"userName"`
	UserAvatar     string  `json:"userAvatar"`
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	MaxStreak      int     `json:"maxStreak"`
}
