package app

import (
	"context"

	"faniq-realtime-service/internal/domain"
)

// VotePost applies a user's vote on a post and broadcasts the resulting
// absolute counters to the post's community room.
//
// One code path covers every transition: the existing row's contribution
// is reversed, the new direction (if any) is applied, and the signed delta
// pair goes through the store's atomic increment. A same-direction revote
// therefore nets to zero without being special-cased; VoteNone clears the
// vote.
func (s *FeedService) VotePost(ctx context.Context, postID, userID string, direction domain.VoteDirection) error {
	post, err := s.posts.PostByID(ctx, postID)
	if err != nil {
		return err
	}

	prev, err := s.votes.SwapPostVote(ctx, postID, userID, direction)
	if err != nil {
		return err
	}

	dUp, dDown := voteDelta(prev, direction)
	up, down, err := s.posts.AdjustPostVotes(ctx, postID, dUp, dDown)
	if err != nil {
		return err
	}

	s.hub.Broadcast(CommunityRoom(post.CommunityID), Event{
		Type:    EventPostVoteUpdate,
		Payload: PostVoteUpdate{PostID: postID, Upvotes: up, Downvotes: down},
	})
	return nil
}

// VoteComment is the comment-side twin; counters broadcast to the post
// room that owns the comment.
func (s *FeedService) VoteComment(ctx context.Context, commentID, postID, userID string, direction domain.VoteDirection) error {
	prev, err := s.votes.SwapCommentVote(ctx, commentID, userID, direction)
	if err != nil {
		return err
	}

	dUp, dDown := voteDelta(prev, direction)
	up, down, err := s.comments.AdjustCommentVotes(ctx, commentID, dUp, dDown)
	if err != nil {
		return err
	}

	s.hub.Broadcast(PostRoom(postID), Event{
		Type:    EventCommentVote,
		Payload: CommentVoteUpdate{CommentID: commentID, Upvotes: up, Downvotes: down},
	})
	return nil
}

// voteDelta reverses the previous vote's contribution and applies the next
// one, yielding the (Δup, Δdown) pair for the counter increment.
func voteDelta(prev, next domain.VoteDirection) (int, int) {
	dUp, dDown := 0, 0
	switch prev {
	case domain.VoteUp:
		dUp--
	case domain.VoteDown:
		dDown--
	}
	switch next {
	case domain.VoteUp:
		dUp++
	case domain.VoteDown:
		dDown++
	}
	return dUp, dDown
}
