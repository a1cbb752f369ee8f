package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"faniq-realtime-service/internal/app"
	"faniq-realtime-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler owns each connection's lifecycle: identity, room membership,
// inbound routing through a dispatch table, and disconnect cleanup. No
// business logic lives here; handlers decode payloads and delegate.
type WSHandler struct {
	feed     *app.FeedService
	quiz     *app.QuizService
	hub      *app.Hub
	upgrader websocket.Upgrader
	routes   map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, c *client, payload json.RawMessage)

// client is one connection's state. Mutated only by the connection's own
// read loop, so no lock is needed.
type client struct {
	connID    string
	sub       *app.Subscriber
	identity  *domain.Identity
	community string
	quiz      string
	posts     map[string]struct{}
}

func (c *client) userID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.ID
}

func NewWSHandler(feed *app.FeedService, quiz *app.QuizService, hub *app.Hub) *WSHandler {
	h := &WSHandler{
		feed: feed,
		quiz: quiz,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.routes = map[string]handlerFunc{
		"auth":           h.handleAuth,
		"join:community": h.handleJoinCommunity,
		"join:post":      h.handleJoinPost,
		"leave:post":     h.handleLeavePost,
		"post:create":    h.handlePostCreate,
		"post:vote":      h.handlePostVote,
		"post:delete":    h.handlePostDelete,
		"posts:get":      h.handlePostsGet,
		"comment:create": h.handleCommentCreate,
		"comment:vote":   h.handleCommentVote,
		"typing:start":   h.handleTypingStart,
		"typing:stop":    h.handleTypingStop,
		"quiz:join":      h.handleQuizJoin,
		"quiz:leave":     h.handleQuizLeave,
		"quiz:answer":    h.handleQuizAnswer,
		"quiz:next":      h.handleQuizNext,
		"quiz:complete":  h.handleQuizComplete,
	}
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades the request and runs the connection to completion. A
// failed handler never closes the connection; only a read error (client
// gone) ends the loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		connID: uuid.NewString(),
		sub:    h.hub.Subscribe(),
		posts:  make(map[string]struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range c.sub.C() {
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[ws] write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), c, inbound)
	}

	h.cleanup(r.Context(), c)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, msg inboundMessage) {
	handler, ok := h.routes[msg.Type]
	if !ok {
		h.sendError(c, "unsupported message type")
		return
	}
	handler(ctx, c, msg.Payload)
}

// cleanup runs the disconnect path: every room the connection occupies is
// left with a presence rebroadcast, and the user's typing state is purged
// across all posts.
func (h *WSHandler) cleanup(ctx context.Context, c *client) {
	if c.community != "" {
		h.feed.LeaveCommunity(ctx, c.sub, c.connID, c.community)
	}
	if c.quiz != "" {
		h.quiz.Leave(ctx, c.sub, c.quiz, c.userID())
	}
	if userID := c.userID(); userID != "" {
		h.feed.PurgeTyping(ctx, userID)
	}
	h.hub.Close(c.sub)
}

func (h *WSHandler) handleAuth(_ context.Context, c *client, payload json.RawMessage) {
	var identity domain.Identity
	if err := json.Unmarshal(payload, &identity); err != nil || identity.ID == "" {
		h.sendError(c, "invalid auth payload")
		return
	}
	c.identity = &identity
	log.Printf("[ws] authenticated: %s", identity.Name)
}

func (h *WSHandler) handleJoinCommunity(ctx context.Context, c *client, payload json.RawMessage) {
	communityID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	h.feed.JoinCommunity(ctx, c.sub, c.connID, c.community, communityID)
	c.community = communityID
}

func (h *WSHandler) handleJoinPost(_ context.Context, c *client, payload json.RawMessage) {
	postID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	h.feed.JoinPost(c.sub, postID)
	c.posts[postID] = struct{}{}
}

func (h *WSHandler) handleLeavePost(ctx context.Context, c *client, payload json.RawMessage) {
	postID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	h.feed.LeavePost(ctx, c.sub, postID, c.userID())
	delete(c.posts, postID)
}

func (h *WSHandler) handlePostCreate(ctx context.Context, c *client, payload json.RawMessage) {
	var in app.CreatePostInput
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid post payload")
		return
	}
	if _, err := h.feed.CreatePost(ctx, in); err != nil {
		log.Printf("[ws] create post: %v", err)
		h.sendError(c, "Failed to create post")
	}
}

type votePayload struct {
	PostID    string  `json:"postId"`
	CommentID string  `json:"commentId"`
	Direction *string `json:"direction"`
}

func (p votePayload) direction() domain.VoteDirection {
	if p.Direction == nil {
		return domain.VoteNone
	}
	return domain.VoteDirection(*p.Direction)
}

func (h *WSHandler) handlePostVote(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	var in votePayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid vote payload")
		return
	}
	if err := h.feed.VotePost(ctx, in.PostID, c.identity.ID, in.direction()); err != nil {
		if !errors.Is(err, domain.ErrPostNotFound) {
			log.Printf("[ws] post vote: %v", err)
		}
	}
}

func (h *WSHandler) handleCommentVote(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	var in votePayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid vote payload")
		return
	}
	if err := h.feed.VoteComment(ctx, in.CommentID, in.PostID, c.identity.ID, in.direction()); err != nil {
		if !errors.Is(err, domain.ErrCommentNotFound) {
			log.Printf("[ws] comment vote: %v", err)
		}
	}
}

func (h *WSHandler) handlePostDelete(ctx context.Context, c *client, payload json.RawMessage) {
	var in struct {
		PostID   string `json:"postId"`
		AuthorID string `json:"authorId"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid delete payload")
		return
	}
	switch err := h.feed.DeletePost(ctx, in.PostID, in.AuthorID); {
	case err == nil:
	case errors.Is(err, domain.ErrPostNotFound):
		h.sendError(c, "Post not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		h.sendError(c, "Not authorized to delete this post")
	default:
		log.Printf("[ws] delete post: %v", err)
		h.sendError(c, "Failed to delete post")
	}
}

func (h *WSHandler) handlePostsGet(ctx context.Context, c *client, payload json.RawMessage) {
	communityID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	posts, err := h.feed.ListPosts(ctx, communityID)
	if err != nil {
		log.Printf("[ws] list posts: %v", err)
		return
	}
	h.hub.Send(c.sub, app.Event{Type: app.EventPostsList, Payload: posts})
}

func (h *WSHandler) handleCommentCreate(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		h.sendError(c, "You must be logged in to comment")
		return
	}
	var in app.CreateCommentInput
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid comment payload")
		return
	}
	if _, err := h.feed.CreateComment(ctx, c.identity.ID, in); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrPostNotFound) {
			return
		}
		log.Printf("[ws] create comment: %v", err)
		h.sendError(c, "Failed to create comment")
	}
}

func (h *WSHandler) handleTypingStart(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	if postID, ok := h.decodeString(c, payload); ok {
		h.feed.StartTyping(ctx, postID, c.identity.ID)
	}
}

func (h *WSHandler) handleTypingStop(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	if postID, ok := h.decodeString(c, payload); ok {
		h.feed.StopTyping(ctx, postID, c.identity.ID)
	}
}

func (h *WSHandler) handleQuizJoin(ctx context.Context, c *client, payload json.RawMessage) {
	quizID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	h.quiz.Join(ctx, c.sub, c.quiz, quizID, c.userID())
	c.quiz = quizID
}

func (h *WSHandler) handleQuizLeave(ctx context.Context, c *client, payload json.RawMessage) {
	quizID, ok := h.decodeString(c, payload)
	if !ok {
		return
	}
	h.quiz.Leave(ctx, c.sub, quizID, c.userID())
	c.quiz = ""
}

func (h *WSHandler) handleQuizAnswer(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	var in app.AnswerInput
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid answer payload")
		return
	}
	result, err := h.quiz.Answer(ctx, in)
	if err != nil {
		// Late answers against a completed attempt and stale ids are
		// expected races, not failures.
		if !errors.Is(err, domain.ErrAttemptCompleted) &&
			!errors.Is(err, domain.ErrAttemptNotFound) &&
			!errors.Is(err, domain.ErrQuestionNotFound) {
			log.Printf("[ws] quiz answer: %v", err)
		}
		return
	}
	h.hub.Send(c.sub, app.Event{Type: app.EventAnswerResult, Payload: result})
}

func (h *WSHandler) handleQuizNext(ctx context.Context, c *client, payload json.RawMessage) {
	var in struct {
		QuizID        string `json:"quizId"`
		QuestionIndex int    `json:"questionIndex"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid question request")
		return
	}
	view, err := h.quiz.Question(ctx, in.QuizID, in.QuestionIndex)
	if err != nil {
		if !errors.Is(err, domain.ErrQuestionNotFound) && !errors.Is(err, domain.ErrQuizNotFound) {
			log.Printf("[ws] quiz next: %v", err)
		}
		return
	}
	h.hub.Send(c.sub, app.Event{Type: app.EventQuestion, Payload: view})
}

func (h *WSHandler) handleQuizComplete(ctx context.Context, c *client, payload json.RawMessage) {
	if c.identity == nil {
		return
	}
	var in struct {
		AttemptID string `json:"attemptId"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(c, "invalid completion payload")
		return
	}
	result, err := h.quiz.Complete(ctx, in.AttemptID)
	if err != nil {
		// Duplicate completions are a no-op by contract.
		if !errors.Is(err, domain.ErrAttemptCompleted) && !errors.Is(err, domain.ErrAttemptNotFound) {
			log.Printf("[ws] quiz complete: %v", err)
		}
		return
	}
	h.hub.Send(c.sub, app.Event{Type: app.EventCompleteResult, Payload: result})
}

func (h *WSHandler) decodeString(c *client, payload json.RawMessage) (string, bool) {
	var value string
	if err := json.Unmarshal(payload, &value); err != nil || value == "" {
		h.sendError(c, "invalid payload")
		return "", false
	}
	return value, true
}

func (h *WSHandler) sendError(c *client, message string) {
	h.hub.Send(c.sub, app.Event{Type: app.EventError, Payload: app.ErrorPayload{Message: message}})
}
