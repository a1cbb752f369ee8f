package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"faniq-realtime-service/internal/domain"
	"github.com/google/uuid"
)

// Store is a mutex-guarded in-memory implementation of the full app.Store
// surface. It backs tests and the standalone demo mode; counter updates
// hold the store lock, giving the same atomicity the SQL increments do.
type Store struct {
	mu           sync.RWMutex
	clock        func() time.Time
	users        map[string]domain.User           // by internal id
	usersByExt   map[string]string                // external id -> internal id
	posts        map[string]domain.Post           // by id
	comments     map[string]domain.Comment        // by id
	postVotes    map[voteKey]domain.VoteDirection // (post, user)
	commentVotes map[voteKey]domain.VoteDirection // (comment, user)
	questions    map[string][]domain.QuizQuestion // by quiz id, ordered
	attempts     map[string]domain.QuizAttempt    // by id
	responses    map[string][]domain.QuizResponse // by attempt id
}

type voteKey struct {
	targetID string
	userID   string
}

func NewStore() *Store {
	return &Store{
		clock:        time.Now,
		users:        make(map[string]domain.User),
		usersByExt:   make(map[string]string),
		posts:        make(map[string]domain.Post),
		comments:     make(map[string]domain.Comment),
		postVotes:    make(map[voteKey]domain.VoteDirection),
		commentVotes: make(map[voteKey]domain.VoteDirection),
		questions:    make(map[string][]domain.QuizQuestion),
		attempts:     make(map[string]domain.QuizAttempt),
		responses:    make(map[string][]domain.QuizResponse),
	}
}

func (s *Store) UserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) UserByExternalID(_ context.Context, externalID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByExt[externalID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = s.clock()
	s.users[user.ID] = user
	if user.ExternalID != "" {
		s.usersByExt[user.ExternalID] = user.ID
	}
	return user, nil
}

func (s *Store) AddFandomScore(_ context.Context, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.FandomScore += delta
	s.users[userID] = user
	return nil
}

func (s *Store) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.CreatedAt = s.clock()
	post.Author = nil
	s.posts[post.ID] = post
	return post, nil
}

func (s *Store) PostByID(_ context.Context, id string) (domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return domain.ErrPostNotFound
	}
	delete(s.posts, id)
	for key := range s.postVotes {
		if key.targetID == id {
			delete(s.postVotes, key)
		}
	}
	return nil
}

func (s *Store) ListPosts(_ context.Context, communityID string, limit int) ([]domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]domain.Post, 0)
	for _, post := range s.posts {
		if post.CommunityID == communityID {
			if author, ok := s.users[post.AuthorID]; ok {
				a := author
				post.Author = &a
			}
			posts = append(posts, post)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *Store) AdjustPostVotes(_ context.Context, postID string, dUp, dDown int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return 0, 0, domain.ErrPostNotFound
	}
	post.Upvotes += dUp
	post.Downvotes += dDown
	s.posts[postID] = post
	return post.Upvotes, post.Downvotes, nil
}

func (s *Store) IncrementCommentCount(_ context.Context, postID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return 0, domain.ErrPostNotFound
	}
	post.CommentCount++
	s.posts[postID] = post
	return post.CommentCount, nil
}

func (s *Store) CreateComment(_ context.Context, comment domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = s.clock()
	comment.Author = nil
	s.comments[comment.ID] = comment
	return comment, nil
}

func (s *Store) AdjustCommentVotes(_ context.Context, commentID string, dUp, dDown int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok {
		return 0, 0, domain.ErrCommentNotFound
	}
	comment.Upvotes += dUp
	comment.Downvotes += dDown
	s.comments[commentID] = comment
	return comment.Upvotes, comment.Downvotes, nil
}

func (s *Store) SwapPostVote(_ context.Context, postID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error) {
	return s.swapVote(s.postVotes, postID, userID, direction), nil
}

func (s *Store) SwapCommentVote(_ context.Context, commentID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error) {
	return s.swapVote(s.commentVotes, commentID, userID, direction), nil
}

func (s *Store) swapVote(votes map[voteKey]domain.VoteDirection, targetID, userID string, direction domain.VoteDirection) domain.VoteDirection {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{targetID: targetID, userID: userID}
	prev := votes[key]
	if direction == domain.VoteNone {
		delete(votes, key)
	} else {
		votes[key] = direction
	}
	return prev
}

func (s *Store) QuestionsByQuiz(_ context.Context, quizID string) ([]domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := make([]domain.QuizQuestion, len(questions))
	copy(out, questions)
	return out, nil
}

// SeedQuestions loads a quiz's question sheet, ordered by OrderIndex.
func (s *Store) SeedQuestions(quizID string, questions []domain.QuizQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]domain.QuizQuestion, len(questions))
	copy(sorted, questions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	s.questions[quizID] = sorted
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.QuizAttempt) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Status == "" {
		attempt.Status = domain.AttemptInProgress
	}
	s.attempts[attempt.ID] = attempt
	return attempt, nil
}

func (s *Store) AttemptByID(_ context.Context, attemptID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) CreateResponse(_ context.Context, response domain.QuizResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	response.CreatedAt = s.clock()
	s.responses[response.AttemptID] = append(s.responses[response.AttemptID], response)
	return nil
}

func (s *Store) ResponsesByAttempt(_ context.Context, attemptID string) ([]domain.QuizResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	responses := s.responses[attemptID]
	out := make([]domain.QuizResponse, len(responses))
	copy(out, responses)
	return out, nil
}

func (s *Store) UpdateAttemptCounters(_ context.Context, attemptID string, correctAnswers, streak, maxStreak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.CorrectAnswers = correctAnswers
	attempt.Streak = streak
	attempt.MaxStreak = maxStreak
	s.attempts[attemptID] = attempt
	return nil
}

func (s *Store) CompleteAttempt(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *Store) SetAttemptRank(_ context.Context, attemptID string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.Rank = rank
	s.attempts[attemptID] = attempt
	return nil
}

func (s *Store) CountBetterAttempts(_ context.Context, quizID string, finalScore float64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.Status == domain.AttemptCompleted && attempt.FinalScore > finalScore {
			count++
		}
	}
	return count, nil
}

func (s *Store) TopAttempts(_ context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completed := make([]domain.QuizAttempt, 0)
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.Status == domain.AttemptCompleted {
			completed = append(completed, attempt)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].FinalScore > completed[j].FinalScore
	})
	if len(completed) > limit {
		completed = completed[:limit]
	}
	entries := make([]domain.LeaderboardEntry, 0, len(completed))
	for _, attempt := range completed {
		user := s.users[attempt.UserID]
		entries = append(entries, domain.LeaderboardEntry{
			UserID:         attempt.UserID,
			UserName:       user.Name,
			UserAvatar:     user.Avatar,
			Score:          attempt.FinalScore,
			CorrectAnswers: attempt.CorrectAnswers,
			MaxStreak:      attempt.MaxStreak,
		})
	}
	return entries, nil
}
