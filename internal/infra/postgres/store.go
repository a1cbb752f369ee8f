package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"faniq-realtime-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store implements the full app.Store surface over a pgx pool. Counter
// updates are single-statement atomic increments; vote row swaps run in a
// transaction scoped to the (target, user) pair.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UserByID(ctx context.Context, id string) (domain.User, error) {
	// The author chain probes this with ids that may not be UUIDs at all
	// (external auth subjects); compare as text so those miss instead of
	// failing the cast.
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(external_id,''), email, name, COALESCE(avatar,''), fandom_score, created_at
		 FROM users WHERE id::text=$1`, id))
}

func (s *Store) UserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(external_id,''), email, name, COALESCE(avatar,''), fandom_score, created_at
		 FROM users WHERE external_id=$1`, externalID))
}

func (s *Store) scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Avatar, &u.FandomScore, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (external_id, email, name, avatar, fandom_score)
		 VALUES (NULLIF($1,''), $2, $3, $4, $5)
		 RETURNING id, created_at`,
		user.ExternalID, user.Email, user.Name, user.Avatar, user.FandomScore,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Store) AddFandomScore(ctx context.Context, userID string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET fandom_score = fandom_score + $2 WHERE id=$1`, userID, delta)
	if err != nil {
		return fmt.Errorf("add fandom score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	images, err := json.Marshal(post.Images)
	if err != nil {
		return domain.Post{}, fmt.Errorf("marshal images: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO community_posts (community_id, author_id, title, content, type, images, upvotes, downvotes, comment_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		post.CommunityID, post.AuthorID, post.Title, post.Content, post.Type,
		images, post.Upvotes, post.Downvotes, post.CommentCount,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *Store) PostByID(ctx context.Context, id string) (domain.Post, error) {
	var p domain.Post
	var images []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, community_id, author_id, title, content, type, images, upvotes, downvotes, comment_count, created_at
		 FROM community_posts WHERE id=$1`, id,
	).Scan(&p.ID, &p.CommunityID, &p.AuthorID, &p.Title, &p.Content, &p.Type,
		&images, &p.Upvotes, &p.Downvotes, &p.CommentCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("load post: %w", err)
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return domain.Post{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM community_posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (s *Store) ListPosts(ctx context.Context, communityID string, limit int) ([]domain.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.community_id, p.author_id, p.title, p.content, p.type, p.images,
		        p.upvotes, p.downvotes, p.comment_count, p.created_at,
		        u.id, COALESCE(u.external_id,''), u.email, u.name, COALESCE(u.avatar,''), u.fandom_score, u.created_at
		 FROM community_posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE p.community_id=$1
		 ORDER BY p.created_at DESC
		 LIMIT $2`, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]domain.Post, 0)
	for rows.Next() {
		var p domain.Post
		var u domain.User
		var images []byte
		if err := rows.Scan(&p.ID, &p.CommunityID, &p.AuthorID, &p.Title, &p.Content, &p.Type, &images,
			&p.Upvotes, &p.Downvotes, &p.CommentCount, &p.CreatedAt,
			&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Avatar, &u.FandomScore, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.Images); err != nil {
				return nil, fmt.Errorf("unmarshal images: %w", err)
			}
		}
		p.Author = &u
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) AdjustPostVotes(ctx context.Context, postID string, dUp, dDown int) (int, int, error) {
	var up, down int
	err := s.pool.QueryRow(ctx,
		`UPDATE community_posts SET upvotes = upvotes + $2, downvotes = downvotes + $3
		 WHERE id=$1 RETURNING upvotes, downvotes`,
		postID, dUp, dDown,
	).Scan(&up, &down)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.ErrPostNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("adjust post votes: %w", err)
	}
	return up, down, nil
}

func (s *Store) IncrementCommentCount(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE community_posts SET comment_count = comment_count + 1
		 WHERE id=$1 RETURNING comment_count`, postID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment comment count: %w", err)
	}
	return count, nil
}

func (s *Store) CreateComment(ctx context.Context, comment domain.Comment) (domain.Comment, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, author_id, parent_id, content, upvotes, downvotes)
		 VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)
		 RETURNING id, created_at`,
		comment.PostID, comment.AuthorID, comment.ParentID, comment.Content,
		comment.Upvotes, comment.Downvotes,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

func (s *Store) AdjustCommentVotes(ctx context.Context, commentID string, dUp, dDown int) (int, int, error) {
	var up, down int
	err := s.pool.QueryRow(ctx,
		`UPDATE comments SET upvotes = upvotes + $2, downvotes = downvotes + $3
		 WHERE id=$1 RETURNING upvotes, downvotes`,
		commentID, dUp, dDown,
	).Scan(&up, &down)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.ErrCommentNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("adjust comment votes: %w", err)
	}
	return up, down, nil
}

func (s *Store) SwapPostVote(ctx context.Context, postID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error) {
	return s.swapVote(ctx, "post_votes", "post_id", postID, userID, direction)
}

func (s *Store) SwapCommentVote(ctx context.Context, commentID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error) {
	return s.swapVote(ctx, "comment_votes", "comment_id", commentID, userID, direction)
}

// swapVote deletes the (target, user) row and inserts the new direction
// inside one transaction, returning the prior direction. The row lock on
// the delete serializes a user's rapid vote toggles on the same target.
func (s *Store) swapVote(ctx context.Context, table, targetCol, targetID, userID string, direction domain.VoteDirection) (domain.VoteDirection, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.VoteNone, fmt.Errorf("begin vote swap: %w", err)
	}
	defer tx.Rollback(ctx)

	prev := domain.VoteNone
	var prevType string
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT type FROM %s WHERE %s=$1 AND user_id=$2 FOR UPDATE`, table, targetCol),
		targetID, userID,
	).Scan(&prevType)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.VoteNone, fmt.Errorf("load vote: %w", err)
	default:
		prev = domain.VoteDirection(prevType)
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s=$1 AND user_id=$2`, table, targetCol),
			targetID, userID); err != nil {
			return domain.VoteNone, fmt.Errorf("delete vote: %w", err)
		}
	}

	if direction != domain.VoteNone {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, user_id, type) VALUES ($1, $2, $3)`, table, targetCol),
			targetID, userID, string(direction)); err != nil {
			return domain.VoteNone, fmt.Errorf("insert vote: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.VoteNone, fmt.Errorf("commit vote swap: %w", err)
	}
	return prev, nil
}

func (s *Store) QuestionsByQuiz(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, question, type, options, COALESCE(image_url,''), correct_answer, time_limit, order_index, difficulty
		 FROM quiz_questions WHERE quiz_id=$1 ORDER BY order_index ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.QuizQuestion, 0)
	for rows.Next() {
		var q domain.QuizQuestion
		var options []byte
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Prompt, &q.Type, &options, &q.ImageURL,
			&q.CorrectAnswer, &q.TimeLimit, &q.OrderIndex, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options: %w", err)
			}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}
	return questions, nil
}

// CreateQuestion seeds quiz content; used by fixtures and tests.
func (s *Store) CreateQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("marshal options: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO quiz_questions (quiz_id, question, type, options, image_url, correct_answer, time_limit, order_index, difficulty)
		 VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8, $9)
		 RETURNING id`,
		q.QuizID, q.Prompt, q.Type, options, q.ImageURL, q.CorrectAnswer,
		q.TimeLimit, q.OrderIndex, q.Difficulty,
	).Scan(&q.ID)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// CreateAttempt opens a new in-progress attempt.
func (s *Store) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizAttempt, error) {
	if attempt.Status == "" {
		attempt.Status = domain.AttemptInProgress
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (quiz_id, user_id, total_questions, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		attempt.QuizID, attempt.UserID, attempt.TotalQuestions, string(attempt.Status),
	).Scan(&attempt.ID)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

func (s *Store) AttemptByID(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	var a domain.QuizAttempt
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, user_id, total_questions, correct_answers, streak, max_streak, status,
		        avg_response_time, response_time_std_dev, accuracy_score, speed_score,
		        consistency_score, final_score, rank, completed_at
		 FROM quiz_attempts WHERE id=$1`, attemptID,
	).Scan(&a.ID, &a.QuizID, &a.UserID, &a.TotalQuestions, &a.CorrectAnswers, &a.Streak, &a.MaxStreak,
		&status, &a.AvgResponseTime, &a.ResponseTimeStdDev, &a.AccuracyScore, &a.SpeedScore,
		&a.ConsistencyScore, &a.FinalScore, &a.Rank, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	a.Status = domain.AttemptStatus(status)
	return a, nil
}

func (s *Store) CreateResponse(ctx context.Context, response domain.QuizResponse) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_responses (attempt_id, question_id, answer, is_correct, response_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		response.AttemptID, response.QuestionID, response.Answer, response.IsCorrect, response.ResponseTime)
	if err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

func (s *Store) ResponsesByAttempt(ctx context.Context, attemptID string) ([]domain.QuizResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, answer, is_correct, response_time, created_at
		 FROM quiz_responses WHERE attempt_id=$1 ORDER BY created_at ASC`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := make([]domain.QuizResponse, 0)
	for rows.Next() {
		var r domain.QuizResponse
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &r.Answer, &r.IsCorrect, &r.ResponseTime, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

func (s *Store) UpdateAttemptCounters(ctx context.Context, attemptID string, correctAnswers, streak, maxStreak int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_attempts SET correct_answers=$2, streak=$3, max_streak=$4 WHERE id=$1`,
		attemptID, correctAnswers, streak, maxStreak)
	if err != nil {
		return fmt.Errorf("update attempt counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) CompleteAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_attempts
		 SET status=$2, avg_response_time=$3, response_time_std_dev=$4, accuracy_score=$5,
		     speed_score=$6, consistency_score=$7, final_score=$8, completed_at=$9
		 WHERE id=$1`,
		attempt.ID, string(attempt.Status), attempt.AvgResponseTime, attempt.ResponseTimeStdDev,
		attempt.AccuracyScore, attempt.SpeedScore, attempt.ConsistencyScore, attempt.FinalScore,
		attempt.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) SetAttemptRank(ctx context.Context, attemptID string, rank int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_attempts SET rank=$2 WHERE id=$1`, attemptID, rank)
	if err != nil {
		return fmt.Errorf("set attempt rank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) CountBetterAttempts(ctx context.Context, quizID string, finalScore float64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts
		 WHERE quiz_id=$1 AND status='completed' AND final_score > $2`,
		quizID, finalScore,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count better attempts: %w", err)
	}
	return count, nil
}

func (s *Store) TopAttempts(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.user_id, u.name, COALESCE(u.avatar,''), a.final_score, a.correct_answers, a.max_streak
		 FROM quiz_attempts a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.quiz_id=$1 AND a.status='completed'
		 ORDER BY a.final_score DESC
		 LIMIT $2`, quizID, limit)
	if err != nil {
		return nil, fmt.Errorf("top attempts: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.UserName, &e.UserAvatar, &e.Score, &e.CorrectAnswers, &e.MaxStreak); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
