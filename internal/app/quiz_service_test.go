package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"faniq-realtime-service/internal/domain"
	"faniq-realtime-service/internal/infra/memory"
)

type quizFixture struct {
	quiz  *QuizService
	store *memory.Store
	hub   *Hub
}

func newQuizFixture() *quizFixture {
	store := memory.NewStore()
	hub := NewHub()
	cache := memory.NewQuestionCache(store, time.Minute)
	return &quizFixture{
		quiz:  NewQuizService(store, store, cache, memory.NewPresenceRegistry(), hub),
		store: store,
		hub:   hub,
	}
}

func (f *quizFixture) observer(room string) *Subscriber {
	sub := f.hub.Subscribe()
	f.hub.Join(sub, room)
	return sub
}

// seedQuiz loads n questions whose correct answer is always "a", plus a
// user and an in-progress attempt for them.
func (f *quizFixture) seedQuiz(t *testing.T, quizID string, n int) domain.QuizAttempt {
	t.Helper()
	questions := make([]domain.QuizQuestion, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.QuizQuestion{
			ID:            fmt.Sprintf("%s-q%d", quizID, i+1),
			QuizID:        quizID,
			Prompt:        fmt.Sprintf("question %d", i+1),
			Type:          "multiple_choice",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			TimeLimit:     15,
			OrderIndex:    i,
		})
	}
	f.store.SeedQuestions(quizID, questions)

	user, err := f.store.CreateUser(context.Background(), domain.User{ID: "u1", Name: "Ann"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	attempt, err := f.store.CreateAttempt(context.Background(), domain.QuizAttempt{
		QuizID:         quizID,
		UserID:         user.ID,
		TotalQuestions: n,
	})
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return attempt
}

func (f *quizFixture) answer(t *testing.T, attempt domain.QuizAttempt, questionID, answer string, ms int) domain.AnswerResult {
	t.Helper()
	result, err := f.quiz.Answer(context.Background(), AnswerInput{
		QuizID:       attempt.QuizID,
		AttemptID:    attempt.ID,
		QuestionID:   questionID,
		Answer:       answer,
		ResponseTime: ms,
	})
	if err != nil {
		t.Fatalf("answer %s: %v", questionID, err)
	}
	return result
}

func TestAnswerStreakAndCounters(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 4)

	r := f.answer(t, attempt, "quiz1-q1", "a", 2500)
	if !r.IsCorrect || r.Streak != 1 || r.CorrectAnswers != 1 {
		t.Fatalf("q1: %+v", r)
	}
	r = f.answer(t, attempt, "quiz1-q2", "a", 2500)
	if r.Streak != 2 || r.CorrectAnswers != 2 {
		t.Fatalf("q2: %+v", r)
	}
	r = f.answer(t, attempt, "quiz1-q3", "b", 2500)
	if r.IsCorrect || r.Streak != 0 || r.CorrectAnswers != 2 {
		t.Fatalf("q3 must reset the streak: %+v", r)
	}
	r = f.answer(t, attempt, "quiz1-q4", "a", 2500)
	if r.Streak != 1 || r.CorrectAnswers != 3 {
		t.Fatalf("q4: %+v", r)
	}

	stored, err := f.store.AttemptByID(context.Background(), attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.MaxStreak != 2 || stored.Streak != 1 || stored.CorrectAnswers != 3 {
		t.Fatalf("stored counters: %+v", stored)
	}
}

func TestAnswerUnknownQuestion(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 2)

	_, err := f.quiz.Answer(context.Background(), AnswerInput{
		QuizID:     attempt.QuizID,
		AttemptID:  attempt.ID,
		QuestionID: "nope",
		Answer:     "a",
	})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("want ErrQuestionNotFound, got %v", err)
	}
}

func TestAnswerAfterCompleteRejected(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 2)
	ctx := context.Background()

	f.answer(t, attempt, "quiz1-q1", "a", 2000)
	if _, err := f.quiz.Complete(ctx, attempt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := f.quiz.Answer(ctx, AnswerInput{
		QuizID:     attempt.QuizID,
		AttemptID:  attempt.ID,
		QuestionID: "quiz1-q2",
		Answer:     "a",
	})
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("want ErrAttemptCompleted, got %v", err)
	}

	responses, _ := f.store.ResponsesByAttempt(ctx, attempt.ID)
	if len(responses) != 1 {
		t.Fatalf("late answer must not append a response: got %d", len(responses))
	}
}

func TestQuestionStripsAnswerAndNumbers(t *testing.T) {
	f := newQuizFixture()
	f.seedQuiz(t, "quiz1", 3)
	ctx := context.Background()

	view, err := f.quiz.Question(ctx, "quiz1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.ID != "quiz1-q2" || view.QuestionNumber != 2 || view.TotalQuestions != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := f.quiz.Question(ctx, "quiz1", 3); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("out of range: want ErrQuestionNotFound, got %v", err)
	}
	if _, err := f.quiz.Question(ctx, "quiz1", -1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("negative index: want ErrQuestionNotFound, got %v", err)
	}
}

func TestCompleteScoresAttempt(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 10)
	ctx := context.Background()
	watcher := f.observer(QuizRoom("quiz1"))

	// 8 correct then 2 wrong, every answer at exactly 2s: accuracy 80,
	// speed 100 (at the floor), consistency 60 (zero variance), final 82.
	for i := 1; i <= 8; i++ {
		f.answer(t, attempt, fmt.Sprintf("quiz1-q%d", i), "a", 2000)
	}
	f.answer(t, attempt, "quiz1-q9", "b", 2000)
	f.answer(t, attempt, "quiz1-q10", "b", 2000)

	result, err := f.quiz.Complete(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.AccuracyScore != 80 || result.SpeedScore != 100 || result.ConsistencyScore != 60 || result.FinalScore != 82 {
		t.Fatalf("scores: %+v", result)
	}
	// streak 8 gives a 1.8x multiplier: 8*5*1.8 = 72, capped at 50.
	if result.FandomBonus != 50 {
		t.Fatalf("fandom bonus: want 50, got %d", result.FandomBonus)
	}
	if result.Rank != 1 {
		t.Fatalf("rank: want 1, got %d", result.Rank)
	}

	stored, _ := f.store.AttemptByID(ctx, attempt.ID)
	if stored.Status != domain.AttemptCompleted || stored.CompletedAt == nil {
		t.Fatalf("attempt not completed: %+v", stored)
	}
	if stored.FinalScore != 82 || stored.Rank != 1 {
		t.Fatalf("persisted score/rank: %v/%d", stored.FinalScore, stored.Rank)
	}

	user, _ := f.store.UserByID(ctx, "u1")
	if user.FandomScore != 50 {
		t.Fatalf("fandom score: want 50, got %d", user.FandomScore)
	}

	ev := recvEvent(t, watcher)
	if ev.Type != EventLeaderboard {
		t.Fatalf("want %q, got %q", EventLeaderboard, ev.Type)
	}
	entries := ev.Payload.([]domain.LeaderboardEntry)
	if len(entries) != 1 || entries[0].Rank != 1 || entries[0].Score != 82 || entries[0].UserName != "Ann" {
		t.Fatalf("leaderboard: %+v", entries)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 2)
	ctx := context.Background()

	f.answer(t, attempt, "quiz1-q1", "a", 2000)
	first, err := f.quiz.Complete(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}

	if _, err := f.quiz.Complete(ctx, attempt.ID); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("want ErrAttemptCompleted, got %v", err)
	}

	// Nothing moved: no double fandom credit, score and rank untouched.
	user, _ := f.store.UserByID(ctx, "u1")
	if user.FandomScore != first.FandomBonus {
		t.Fatalf("fandom credited twice: %d vs %d", user.FandomScore, first.FandomBonus)
	}
	stored, _ := f.store.AttemptByID(ctx, attempt.ID)
	if stored.FinalScore != first.Attempt.FinalScore || stored.Rank != first.Rank {
		t.Fatalf("write-once fields changed: %+v", stored)
	}
}

func TestCompleteRankSkipsAfterTie(t *testing.T) {
	f := newQuizFixture()
	attempt := f.seedQuiz(t, "quiz1", 10)
	ctx := context.Background()

	// Two finished attempts already on the board: one above the incoming
	// score, one tied with it. The tie shares rank 2 and rank 3 is skipped.
	for i, score := range []float64{90, 82} {
		if _, err := f.store.CreateAttempt(ctx, domain.QuizAttempt{
			ID:         fmt.Sprintf("prev-%d", i),
			QuizID:     "quiz1",
			UserID:     "u1",
			Status:     domain.AttemptCompleted,
			FinalScore: score,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Same shape as TestCompleteScoresAttempt: final lands on exactly 82.
	for i := 1; i <= 8; i++ {
		f.answer(t, attempt, fmt.Sprintf("quiz1-q%d", i), "a", 2000)
	}
	f.answer(t, attempt, "quiz1-q9", "b", 2000)
	f.answer(t, attempt, "quiz1-q10", "b", 2000)

	result, err := f.quiz.Complete(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Rank != 2 {
		t.Fatalf("tie with 82 must share rank 2, got %d", result.Rank)
	}
}

func TestLeaderboardTopTen(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()

	for i := 0; i < LeaderboardSize+3; i++ {
		if _, err := f.store.CreateAttempt(ctx, domain.QuizAttempt{
			ID:         fmt.Sprintf("a-%d", i),
			QuizID:     "quiz1",
			UserID:     fmt.Sprintf("u-%d", i),
			Status:     domain.AttemptCompleted,
			FinalScore: float64(50 + i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	// An unfinished attempt with a stale high score must not appear.
	if _, err := f.store.CreateAttempt(ctx, domain.QuizAttempt{
		ID: "open", QuizID: "quiz1", UserID: "u-open", FinalScore: 99,
	}); err != nil {
		t.Fatal(err)
	}

	entries, err := f.quiz.Leaderboard(ctx, "quiz1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != LeaderboardSize {
		t.Fatalf("want %d entries, got %d", LeaderboardSize, len(entries))
	}
	if entries[0].Score != 62 || entries[0].Rank != 1 {
		t.Fatalf("top entry: %+v", entries[0])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			t.Fatalf("not sorted at %d: %v > %v", i, entries[i].Score, entries[i-1].Score)
		}
		if entries[i].Rank != i+1 {
			t.Fatalf("positions must be 1-based: entry %d has rank %d", i, entries[i].Rank)
		}
	}
}

func TestQuizJoinLeaveCounts(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	watcher := f.observer(QuizRoom("quiz1"))

	a := f.hub.Subscribe()
	f.quiz.Join(ctx, a, "", "quiz1", "u1")
	if got := recvEvent(t, watcher).Payload.(ParticipantCount); got.Count != 1 {
		t.Fatalf("want 1, got %d", got.Count)
	}

	b := f.hub.Subscribe()
	f.quiz.Join(ctx, b, "", "quiz1", "u2")
	if got := recvEvent(t, watcher).Payload.(ParticipantCount); got.Count != 2 {
		t.Fatalf("want 2, got %d", got.Count)
	}

	// Anonymous connections watch without counting.
	c := f.hub.Subscribe()
	f.quiz.Join(ctx, c, "", "quiz1", "")
	if got := recvEvent(t, watcher).Payload.(ParticipantCount); got.Count != 2 {
		t.Fatalf("anonymous join must not count: got %d", got.Count)
	}

	f.quiz.Leave(ctx, a, "quiz1", "u1")
	if got := recvEvent(t, watcher).Payload.(ParticipantCount); got.Count != 1 {
		t.Fatalf("want 1 after leave, got %d", got.Count)
	}
}

func TestQuizJoinSwitchesQuiz(t *testing.T) {
	f := newQuizFixture()
	ctx := context.Background()
	w1 := f.observer(QuizRoom("quiz1"))

	sub := f.hub.Subscribe()
	f.quiz.Join(ctx, sub, "", "quiz1", "u1")
	recvEvent(t, w1) // count 1

	f.quiz.Join(ctx, sub, "quiz1", "quiz2", "u1")
	if got := recvEvent(t, w1).Payload.(ParticipantCount); got.Count != 0 {
		t.Fatalf("old quiz must drop to 0, got %d", got.Count)
	}

	drain(sub)
	f.hub.Broadcast(QuizRoom("quiz1"), Event{Type: EventLeaderboard})
	requireNoEvent(t, sub)
}
