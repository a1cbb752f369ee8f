package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"faniq-realtime-service/internal/app"
	"faniq-realtime-service/internal/domain"
	"faniq-realtime-service/internal/infra/memory"
)

type wsFixture struct {
	store  *memory.Store
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	store := memory.NewStore()
	hub := app.NewHub()
	presence := memory.NewPresenceRegistry()
	feed := app.NewFeedService(store, presence, hub)
	quiz := app.NewQuizService(store, store, memory.NewQuestionCache(store, time.Minute), presence, hub)
	handler := NewWSHandler(feed, quiz, hub)

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return &wsFixture{store: store, server: server}
}

func (f *wsFixture) dial(t *testing.T) *wsConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsConn{conn: conn}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) send(t *testing.T, msgType string, payload any) {
	t.Helper()
	if err := c.conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

type outbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips unrelated frames until the wanted event type arrives.
func (c *wsConn) readUntil(t *testing.T, eventType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var ev outbound
		if err := c.conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %q: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev.Payload
		}
	}
}

func (c *wsConn) auth(t *testing.T, id, name string) {
	t.Helper()
	c.send(t, "auth", domain.Identity{ID: id, Name: name})
}

func TestServeWSCommunityPresence(t *testing.T) {
	f := newWSFixture(t)

	a := f.dial(t)
	a.send(t, "join:community", "c1")
	var count app.OnlineCount
	mustUnmarshal(t, a.readUntil(t, app.EventOnlineCount), &count)
	if count.Count != 1 {
		t.Fatalf("want 1, got %d", count.Count)
	}

	b := f.dial(t)
	b.send(t, "join:community", "c1")
	mustUnmarshal(t, a.readUntil(t, app.EventOnlineCount), &count)
	if count.Count != 2 {
		t.Fatalf("want 2, got %d", count.Count)
	}

	// Disconnect, not an explicit leave, must still shrink the room.
	_ = b.conn.Close()
	mustUnmarshal(t, a.readUntil(t, app.EventOnlineCount), &count)
	if count.Count != 1 {
		t.Fatalf("want 1 after disconnect, got %d", count.Count)
	}
}

func TestServeWSPostLifecycle(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	author, _ := f.store.CreateUser(ctx, domain.User{ID: "u1", Name: "Ann"})
	if _, err := f.store.CreateUser(ctx, domain.User{ID: "u2", Name: "Bob"}); err != nil {
		t.Fatal(err)
	}

	c := f.dial(t)
	c.auth(t, author.ID, author.Name)
	c.send(t, "join:community", "c1")
	c.readUntil(t, app.EventOnlineCount)

	c.send(t, "post:create", app.CreatePostInput{
		CommunityID: "c1", AuthorID: author.ID, Title: "hello", Content: "first", Type: "text",
	})
	var post domain.Post
	mustUnmarshal(t, c.readUntil(t, app.EventPostNew), &post)
	if post.Upvotes != 1 || post.AuthorID != author.ID {
		t.Fatalf("post: %+v", post)
	}

	c.send(t, "post:vote", map[string]any{"postId": post.ID, "direction": "up"})
	var vote app.PostVoteUpdate
	mustUnmarshal(t, c.readUntil(t, app.EventPostVoteUpdate), &vote)
	if vote.Upvotes != 2 || vote.Downvotes != 0 {
		t.Fatalf("vote up: %+v", vote)
	}

	// A null direction clears the vote.
	c.send(t, "post:vote", map[string]any{"postId": post.ID, "direction": nil})
	mustUnmarshal(t, c.readUntil(t, app.EventPostVoteUpdate), &vote)
	if vote.Upvotes != 1 {
		t.Fatalf("vote cleared: %+v", vote)
	}

	c.send(t, "post:delete", map[string]any{"postId": post.ID, "authorId": "u2"})
	var errPayload app.ErrorPayload
	mustUnmarshal(t, c.readUntil(t, app.EventError), &errPayload)
	if errPayload.Message != "Not authorized to delete this post" {
		t.Fatalf("error message: %q", errPayload.Message)
	}

	c.send(t, "post:delete", map[string]any{"postId": post.ID, "authorId": author.ID})
	var deleted app.PostDeleted
	mustUnmarshal(t, c.readUntil(t, app.EventPostDeleted), &deleted)
	if deleted.PostID != post.ID {
		t.Fatalf("deleted: %+v", deleted)
	}
}

func TestServeWSCommentsAndTyping(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	author, _ := f.store.CreateUser(ctx, domain.User{ID: "u1", Name: "Ann"})
	post, _ := f.store.CreatePost(ctx, domain.Post{CommunityID: "c1", AuthorID: author.ID})

	c := f.dial(t)
	c.auth(t, author.ID, author.Name)
	c.send(t, "join:post", post.ID)

	c.send(t, "typing:start", post.ID)
	var typing app.TypingUpdate
	mustUnmarshal(t, c.readUntil(t, app.EventTypingUpdate), &typing)
	if len(typing.Users) != 1 || typing.Users[0] != author.ID {
		t.Fatalf("typing: %+v", typing)
	}

	c.send(t, "comment:create", app.CreateCommentInput{PostID: post.ID, Content: "nice"})
	var comment domain.Comment
	mustUnmarshal(t, c.readUntil(t, app.EventCommentNew), &comment)
	if comment.Content != "nice" || comment.AuthorID != author.ID {
		t.Fatalf("comment: %+v", comment)
	}
}

func TestServeWSUnauthenticatedCommentRejected(t *testing.T) {
	f := newWSFixture(t)

	c := f.dial(t)
	c.send(t, "comment:create", app.CreateCommentInput{PostID: "p1", Content: "hi"})
	var errPayload app.ErrorPayload
	mustUnmarshal(t, c.readUntil(t, app.EventError), &errPayload)
	if errPayload.Message != "You must be logged in to comment" {
		t.Fatalf("error message: %q", errPayload.Message)
	}
}

func TestServeWSQuizFlow(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	user, _ := f.store.CreateUser(ctx, domain.User{ID: "u1", Name: "Ann"})
	f.store.SeedQuestions("quiz1", []domain.QuizQuestion{
		{ID: "q1", QuizID: "quiz1", Prompt: "first?", CorrectAnswer: "a", OrderIndex: 0},
		{ID: "q2", QuizID: "quiz1", Prompt: "second?", CorrectAnswer: "b", OrderIndex: 1},
	})
	attempt, _ := f.store.CreateAttempt(ctx, domain.QuizAttempt{
		QuizID: "quiz1", UserID: user.ID, TotalQuestions: 2,
	})

	c := f.dial(t)
	c.auth(t, user.ID, user.Name)
	c.send(t, "quiz:join", "quiz1")
	var participants app.ParticipantCount
	mustUnmarshal(t, c.readUntil(t, app.EventParticipantCount), &participants)
	if participants.Count != 1 {
		t.Fatalf("participants: %d", participants.Count)
	}

	c.send(t, "quiz:next", map[string]any{"quizId": "quiz1", "questionIndex": 0})
	raw := c.readUntil(t, app.EventQuestion)
	if strings.Contains(string(raw), "correctAnswer") {
		t.Fatalf("question payload leaks the answer: %s", raw)
	}
	var view domain.QuestionView
	mustUnmarshal(t, raw, &view)
	if view.ID != "q1" || view.QuestionNumber != 1 || view.TotalQuestions != 2 {
		t.Fatalf("question view: %+v", view)
	}

	c.send(t, "quiz:answer", app.AnswerInput{
		QuizID: "quiz1", AttemptID: attempt.ID, QuestionID: "q1", Answer: "a", ResponseTime: 2500,
	})
	var result domain.AnswerResult
	mustUnmarshal(t, c.readUntil(t, app.EventAnswerResult), &result)
	if !result.IsCorrect || result.Streak != 1 {
		t.Fatalf("answer result: %+v", result)
	}

	c.send(t, "quiz:complete", map[string]any{"attemptId": attempt.ID})
	var completion domain.CompletionResult
	mustUnmarshal(t, c.readUntil(t, app.EventCompleteResult), &completion)
	if completion.Rank != 1 || completion.Attempt.Status != domain.AttemptCompleted {
		t.Fatalf("completion: %+v", completion)
	}

	var entries []domain.LeaderboardEntry
	mustUnmarshal(t, c.readUntil(t, app.EventLeaderboard), &entries)
	if len(entries) != 1 || entries[0].UserName != "Ann" {
		t.Fatalf("leaderboard: %+v", entries)
	}

	// Completing again changes nothing and sends nothing back.
	c.send(t, "quiz:complete", map[string]any{"attemptId": attempt.ID})
	c.send(t, "quiz:next", map[string]any{"quizId": "quiz1", "questionIndex": 1})
	mustUnmarshal(t, c.readUntil(t, app.EventQuestion), &view)
	if view.ID != "q2" {
		t.Fatalf("want q2 after idempotent complete, got %+v", view)
	}
}

func TestServeWSUnknownMessageType(t *testing.T) {
	f := newWSFixture(t)

	c := f.dial(t)
	c.send(t, "no:such:thing", "x")
	var errPayload app.ErrorPayload
	mustUnmarshal(t, c.readUntil(t, app.EventError), &errPayload)
	if errPayload.Message != "unsupported message type" {
		t.Fatalf("error message: %q", errPayload.Message)
	}

	// A bad message never kills the connection.
	c.send(t, "join:community", "c1")
	var count app.OnlineCount
	mustUnmarshal(t, c.readUntil(t, app.EventOnlineCount), &count)
	if count.Count != 1 {
		t.Fatalf("want 1, got %d", count.Count)
	}
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}
