package app

import (
	"context"
	"errors"
	"strings"

	"faniq-realtime-service/internal/domain"
)

// DefaultPostsLimit caps posts:list responses.
const DefaultPostsLimit = 50

// FeedService covers the community side: posts, comments, presence, and
// typing. Room broadcasts happen here; unicast replies are returned to the
// transport.
type FeedService struct {
	users    UserStore
	posts    PostStore
	comments CommentStore
	votes    VoteStore
	presence PresenceRegistry
	hub      *Hub
}

func NewFeedService(store Store, presence PresenceRegistry, hub *Hub) *FeedService {
	return &FeedService{
		users:    store,
		posts:    store,
		comments: store,
		votes:    store,
		presence: presence,
		hub:      hub,
	}
}

// JoinCommunity moves a connection into a community room, leaving the
// previous one first; a connection is in at most one community room. Both
// affected rooms get a fresh online count.
func (s *FeedService) JoinCommunity(ctx context.Context, sub *Subscriber, connID, prevCommunityID, communityID string) {
	if prevCommunityID != "" && prevCommunityID != communityID {
		s.LeaveCommunity(ctx, sub, connID, prevCommunityID)
	}
	s.hub.Join(sub, CommunityRoom(communityID))
	count := s.presence.AddCommunityConn(ctx, communityID, connID)
	s.hub.Broadcast(CommunityRoom(communityID), Event{
		Type:    EventOnlineCount,
		Payload: OnlineCount{CommunityID: communityID, Count: count},
	})
}

// LeaveCommunity removes a connection from a room and rebroadcasts the
// room's count. Used for implicit leave and for disconnect cleanup.
func (s *FeedService) LeaveCommunity(ctx context.Context, sub *Subscriber, connID, communityID string) {
	s.hub.Leave(sub, CommunityRoom(communityID))
	count := s.presence.RemoveCommunityConn(ctx, communityID, connID)
	s.hub.Broadcast(CommunityRoom(communityID), Event{
		Type:    EventOnlineCount,
		Payload: OnlineCount{CommunityID: communityID, Count: count},
	})
}

// JoinPost subscribes the connection to a post's comment topic. No
// broadcast side effect.
func (s *FeedService) JoinPost(sub *Subscriber, postID string) {
	s.hub.Join(sub, PostRoom(postID))
}

// LeavePost unsubscribes and quietly drops any typing state the user left
// behind on that post.
func (s *FeedService) LeavePost(ctx context.Context, sub *Subscriber, postID, userID string) {
	s.hub.Leave(sub, PostRoom(postID))
	if userID != "" {
		s.presence.RemoveTyping(ctx, postID, userID)
	}
}

// StartTyping marks the user as typing and rebroadcasts the post's full
// typing set.
func (s *FeedService) StartTyping(ctx context.Context, postID, userID string) {
	users := s.presence.AddTyping(ctx, postID, userID)
	s.broadcastTyping(postID, users)
}

// StopTyping clears the user's typing state and rebroadcasts.
func (s *FeedService) StopTyping(ctx context.Context, postID, userID string) {
	users := s.presence.RemoveTyping(ctx, postID, userID)
	s.broadcastTyping(postID, users)
}

// PurgeTyping sweeps a user out of every post-typing set on disconnect.
// Typing is keyed by user id rather than connection id, so it cannot ride
// the normal room cleanup.
func (s *FeedService) PurgeTyping(ctx context.Context, userID string) {
	for postID, users := range s.presence.PurgeTyping(ctx, userID) {
		s.broadcastTyping(postID, users)
	}
}

func (s *FeedService) broadcastTyping(postID string, users []string) {
	if users == nil {
		users = []string{}
	}
	s.hub.Broadcast(PostRoom(postID), Event{
		Type:    EventTypingUpdate,
		Payload: TypingUpdate{PostID: postID, Users: users},
	})
}

// CreatePostInput is the post:create payload.
type CreatePostInput struct {
	CommunityID string   `json:"communityId"`
	AuthorID    string   `json:"authorId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Images      []string `json:"images,omitempty"`
}

// CreatePost persists a post and announces it to the community room. The
// author resolves through the three-step chain: external id, then internal
// id, then a guest account created on the spot.
func (s *FeedService) CreatePost(ctx context.Context, in CreatePostInput) (domain.Post, error) {
	author, err := s.resolveOrCreateAuthor(ctx, in.AuthorID)
	if err != nil {
		return domain.Post{}, err
	}

	post, err := s.posts.CreatePost(ctx, domain.Post{
		CommunityID: in.CommunityID,
		AuthorID:    author.ID,
		Title:       in.Title,
		Content:     in.Content,
		Type:        in.Type,
		Images:      in.Images,
		Upvotes:     1, // author's implicit self-vote
		Downvotes:   0,
	})
	if err != nil {
		return domain.Post{}, err
	}
	post.Author = &author

	s.hub.Broadcast(CommunityRoom(in.CommunityID), Event{Type: EventPostNew, Payload: post})
	return post, nil
}

// DeletePost removes a post if the caller resolves to its author and
// announces the deletion to the community room.
func (s *FeedService) DeletePost(ctx context.Context, postID, callerID string) error {
	post, err := s.posts.PostByID(ctx, postID)
	if err != nil {
		return err
	}

	caller, err := s.resolveAuthor(ctx, callerID)
	if err != nil || caller.ID != post.AuthorID {
		return domain.ErrNotAuthorized
	}

	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.hub.Broadcast(CommunityRoom(post.CommunityID), Event{
		Type:    EventPostDeleted,
		Payload: PostDeleted{PostID: postID},
	})
	return nil
}

// ListPosts returns a community's latest posts, newest first.
func (s *FeedService) ListPosts(ctx context.Context, communityID string) ([]domain.Post, error) {
	return s.posts.ListPosts(ctx, communityID, DefaultPostsLimit)
}

// CreateCommentInput is the comment:create payload.
type CreateCommentInput struct {
	PostID   string `json:"postId"`
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

// CreateComment persists a comment, bumps the post's denormalized comment
// count, and fans out comment:new to the post room plus the refreshed
// count to the community room (feed views show counts without subscribing
// to post rooms).
func (s *FeedService) CreateComment(ctx context.Context, userID string, in CreateCommentInput) (domain.Comment, error) {
	author, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return domain.Comment{}, err
	}
	post, err := s.posts.PostByID(ctx, in.PostID)
	if err != nil {
		return domain.Comment{}, err
	}

	comment, err := s.comments.CreateComment(ctx, domain.Comment{
		PostID:   in.PostID,
		AuthorID: author.ID,
		ParentID: in.ParentID,
		Content:  in.Content,
	})
	if err != nil {
		return domain.Comment{}, err
	}
	comment.Author = &author

	count, err := s.posts.IncrementCommentCount(ctx, in.PostID)
	if err != nil {
		return domain.Comment{}, err
	}

	s.hub.Broadcast(PostRoom(in.PostID), Event{Type: EventCommentNew, Payload: comment})
	s.hub.Broadcast(CommunityRoom(post.CommunityID), Event{
		Type:    EventPostCommentCount,
		Payload: PostCommentCount{PostID: in.PostID, Count: count},
	})
	return comment, nil
}

// resolveOrCreateAuthor is the guest-on-demand chain: external id lookup,
// internal id lookup, then guest creation.
func (s *FeedService) resolveOrCreateAuthor(ctx context.Context, authorID string) (domain.User, error) {
	user, err := s.resolveAuthor(ctx, authorID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}
	return s.users.CreateUser(ctx, domain.User{
		ExternalID: authorID,
		Email:      strings.ReplaceAll(authorID, "|", "-") + "@guest.local",
		Name:       "Anonymous User",
	})
}

func (s *FeedService) resolveAuthor(ctx context.Context, authorID string) (domain.User, error) {
	user, err := s.users.UserByExternalID(ctx, authorID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}
	return s.users.UserByID(ctx, authorID)
}
