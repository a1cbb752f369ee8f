package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PresenceRegistry keeps room membership in Redis sets so presence counts
// stay correct when more than one server instance fronts the same rooms.
// Layout:
//
//	presence:community:{communityID}  SET of connection ids
//	presence:typing:{postID}          SET of user ids
//	presence:typing-index:{userID}    SET of post ids (disconnect purge)
//	presence:quiz:{quizID}            SET of user ids
//
// Operations are best-effort like the rest of the Redis layer: a failed
// round trip yields a zero count rather than an error, and the next
// membership change heals the broadcast.
type PresenceRegistry struct {
	client *redis.Client
}

func NewPresenceRegistry(client *redis.Client) *PresenceRegistry {
	return &PresenceRegistry{client: client}
}

func (r *PresenceRegistry) AddCommunityConn(ctx context.Context, communityID, connID string) int {
	key := "presence:community:" + communityID
	_ = r.client.SAdd(ctx, key, connID).Err()
	return r.card(ctx, key)
}

func (r *PresenceRegistry) RemoveCommunityConn(ctx context.Context, communityID, connID string) int {
	key := "presence:community:" + communityID
	_ = r.client.SRem(ctx, key, connID).Err()
	return r.card(ctx, key)
}

func (r *PresenceRegistry) AddTyping(ctx context.Context, postID, userID string) []string {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, typingKey(postID), userID)
	pipe.SAdd(ctx, typingIndexKey(userID), postID)
	_, _ = pipe.Exec(ctx)
	return r.typingSet(ctx, postID)
}

func (r *PresenceRegistry) RemoveTyping(ctx context.Context, postID, userID string) []string {
	pipe := r.client.Pipeline()
	pipe.SRem(ctx, typingKey(postID), userID)
	pipe.SRem(ctx, typingIndexKey(userID), postID)
	_, _ = pipe.Exec(ctx)
	return r.typingSet(ctx, postID)
}

func (r *PresenceRegistry) PurgeTyping(ctx context.Context, userID string) map[string][]string {
	postIDs, err := r.client.SMembers(ctx, typingIndexKey(userID)).Result()
	if err != nil || len(postIDs) == 0 {
		return nil
	}
	affected := make(map[string][]string, len(postIDs))
	for _, postID := range postIDs {
		_ = r.client.SRem(ctx, typingKey(postID), userID).Err()
		affected[postID] = r.typingSet(ctx, postID)
	}
	_ = r.client.Del(ctx, typingIndexKey(userID)).Err()
	return affected
}

func (r *PresenceRegistry) AddQuizUser(ctx context.Context, quizID, userID string) int {
	key := "presence:quiz:" + quizID
	_ = r.client.SAdd(ctx, key, userID).Err()
	return r.card(ctx, key)
}

func (r *PresenceRegistry) RemoveQuizUser(ctx context.Context, quizID, userID string) int {
	key := "presence:quiz:" + quizID
	_ = r.client.SRem(ctx, key, userID).Err()
	return r.card(ctx, key)
}

func (r *PresenceRegistry) QuizCount(ctx context.Context, quizID string) int {
	return r.card(ctx, "presence:quiz:"+quizID)
}

func (r *PresenceRegistry) card(ctx context.Context, key string) int {
	n, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (r *PresenceRegistry) typingSet(ctx context.Context, postID string) []string {
	users, err := r.client.SMembers(ctx, typingKey(postID)).Result()
	if err != nil {
		return nil
	}
	return users
}

func typingKey(postID string) string      { return "presence:typing:" + postID }
func typingIndexKey(userID string) string { return "presence:typing-index:" + userID }
