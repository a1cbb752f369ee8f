package app

import (
	"context"
	"time"

	"faniq-realtime-service/internal/domain"
)

// LeaderboardSize caps the quiz:leaderboard:update snapshot.
const LeaderboardSize = 10

// QuizService runs the per-attempt state machine: join, answer, question
// pull, and idempotent completion with scoring and ranking.
type QuizService struct {
	store     QuizStore
	users     UserStore
	questions QuestionSource
	presence  PresenceRegistry
	hub       *Hub
	now       func() time.Time
}

func NewQuizService(store QuizStore, users UserStore, questions QuestionSource, presence PresenceRegistry, hub *Hub) *QuizService {
	return &QuizService{
		store:     store,
		users:     users,
		questions: questions,
		presence:  presence,
		hub:       hub,
		now:       time.Now,
	}
}

// Join moves a connection into a quiz room, leaving any previous quiz
// first (single active quiz per user, mirroring community semantics).
// Only authenticated users populate the participant set, but the count is
// broadcast either way.
func (s *QuizService) Join(ctx context.Context, sub *Subscriber, prevQuizID, quizID, userID string) {
	if prevQuizID != "" && prevQuizID != quizID {
		s.Leave(ctx, sub, prevQuizID, userID)
	}
	s.hub.Join(sub, QuizRoom(quizID))

	count := 0
	if userID != "" {
		count = s.presence.AddQuizUser(ctx, quizID, userID)
	} else {
		count = s.presence.QuizCount(ctx, quizID)
	}
	s.broadcastCount(quizID, count)
}

// Leave removes a connection from a quiz room and rebroadcasts the count.
func (s *QuizService) Leave(ctx context.Context, sub *Subscriber, quizID, userID string) {
	s.hub.Leave(sub, QuizRoom(quizID))
	count := 0
	if userID != "" {
		count = s.presence.RemoveQuizUser(ctx, quizID, userID)
	} else {
		count = s.presence.QuizCount(ctx, quizID)
	}
	s.broadcastCount(quizID, count)
}

func (s *QuizService) broadcastCount(quizID string, count int) {
	s.hub.Broadcast(QuizRoom(quizID), Event{
		Type:    EventParticipantCount,
		Payload: ParticipantCount{QuizID: quizID, Count: count},
	})
}

// AnswerInput is the quiz:answer payload.
type AnswerInput struct {
	QuizID       string `json:"quizId"`
	AttemptID    string `json:"attemptId"`
	QuestionID   string `json:"questionId"`
	Answer       string `json:"answer"`
	ResponseTime int    `json:"responseTime"`
}

// Answer grades a submission against the stored correct answer, appends
// the response row, and advances the attempt's running counters. The
// result goes only to the submitting connection; other participants never
// learn it. Answers against a completed attempt return
// domain.ErrAttemptCompleted, which callers treat as a no-op.
func (s *QuizService) Answer(ctx context.Context, in AnswerInput) (domain.AnswerResult, error) {
	attempt, err := s.store.AttemptByID(ctx, in.AttemptID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if attempt.Status == domain.AttemptCompleted {
		return domain.AnswerResult{}, domain.ErrAttemptCompleted
	}

	question, err := s.questionByID(ctx, in.QuizID, in.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	isCorrect := in.Answer == question.CorrectAnswer

	if err := s.store.CreateResponse(ctx, domain.QuizResponse{
		AttemptID:    in.AttemptID,
		QuestionID:   in.QuestionID,
		Answer:       in.Answer,
		IsCorrect:    isCorrect,
		ResponseTime: in.ResponseTime,
	}); err != nil {
		return domain.AnswerResult{}, err
	}

	streak := 0
	correct := attempt.CorrectAnswers
	if isCorrect {
		streak = attempt.Streak + 1
		correct++
	}
	maxStreak := attempt.MaxStreak
	if streak > maxStreak {
		maxStreak = streak
	}
	if err := s.store.UpdateAttemptCounters(ctx, in.AttemptID, correct, streak, maxStreak); err != nil {
		return domain.AnswerResult{}, err
	}

	return domain.AnswerResult{
		IsCorrect:      isCorrect,
		Streak:         streak,
		CorrectAnswers: correct,
	}, nil
}

// Question serves question N of a quiz to the requesting connection with
// the correct answer stripped. Pull model: the client asks for the index
// it wants; time limits ride along as metadata only.
func (s *QuizService) Question(ctx context.Context, quizID string, index int) (domain.QuestionView, error) {
	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	if index < 0 || index >= len(questions) {
		return domain.QuestionView{}, domain.ErrQuestionNotFound
	}
	q := questions[index]
	return domain.QuestionView{
		ID:             q.ID,
		Prompt:         q.Prompt,
		Type:           q.Type,
		Options:        q.Options,
		ImageURL:       q.ImageURL,
		TimeLimit:      q.TimeLimit,
		Difficulty:     q.Difficulty,
		QuestionNumber: index + 1,
		TotalQuestions: len(questions),
	}, nil
}

// Complete is the terminal transition. The first call scores the attempt,
// persists the write-once fields, credits the fandom bonus, computes the
// rank, and broadcasts a refreshed leaderboard to the quiz room; any later
// call returns domain.ErrAttemptCompleted and changes nothing.
func (s *QuizService) Complete(ctx context.Context, attemptID string) (domain.CompletionResult, error) {
	attempt, err := s.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	if attempt.Status == domain.AttemptCompleted {
		return domain.CompletionResult{}, domain.ErrAttemptCompleted
	}

	responses, err := s.store.ResponsesByAttempt(ctx, attemptID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	times := make([]int, 0, len(responses))
	for _, r := range responses {
		times = append(times, r.ResponseTime)
	}

	score := ComputeScore(times, attempt.CorrectAnswers, attempt.TotalQuestions, attempt.MaxStreak)

	completedAt := s.now()
	attempt.Status = domain.AttemptCompleted
	attempt.CompletedAt = &completedAt
	attempt.AvgResponseTime = score.AvgResponseTime
	attempt.ResponseTimeStdDev = score.StdDev
	attempt.AccuracyScore = score.Accuracy
	attempt.SpeedScore = score.Speed
	attempt.ConsistencyScore = score.Consistency
	attempt.FinalScore = score.Final
	if err := s.store.CompleteAttempt(ctx, attempt); err != nil {
		return domain.CompletionResult{}, err
	}

	if score.FandomBonus > 0 {
		if err := s.users.AddFandomScore(ctx, attempt.UserID, score.FandomBonus); err != nil {
			return domain.CompletionResult{}, err
		}
	}

	better, err := s.store.CountBetterAttempts(ctx, attempt.QuizID, attempt.FinalScore)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	rank := better + 1
	attempt.Rank = rank
	if err := s.store.SetAttemptRank(ctx, attemptID, rank); err != nil {
		return domain.CompletionResult{}, err
	}

	entries, err := s.Leaderboard(ctx, attempt.QuizID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	s.hub.Broadcast(QuizRoom(attempt.QuizID), Event{Type: EventLeaderboard, Payload: entries})

	return domain.CompletionResult{
		Attempt:          attempt,
		FinalScore:       Round2(score.Final),
		AccuracyScore:    Round2(score.Accuracy),
		SpeedScore:       Round2(score.Speed),
		ConsistencyScore: Round2(score.Consistency),
		FandomBonus:      score.FandomBonus,
		Rank:             rank,
	}, nil
}

// Leaderboard builds the top-N snapshot; positions are 1-based slice
// indices, independent of each attempt's stored rank.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.TopAttempts(ctx, quizID, LeaderboardSize)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Score = Round2(entries[i].Score)
	}
	return entries, nil
}

func (s *QuizService) questionByID(ctx context.Context, quizID, questionID string) (domain.QuizQuestion, error) {
	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return domain.QuizQuestion{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.QuizQuestion{}, domain.ErrQuestionNotFound
}
