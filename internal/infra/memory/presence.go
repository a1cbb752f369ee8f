package memory

import (
	"context"
	"sync"
)

// PresenceRegistry is the in-process implementation of app.PresenceRegistry:
// three mutex-guarded set maps, one per room kind. Typing keeps a reverse
// index (user -> posts) so the disconnect purge never scans every post.
type PresenceRegistry struct {
	mu          sync.Mutex
	community   map[string]map[string]struct{} // community id -> conn ids
	typing      map[string]map[string]struct{} // post id -> user ids
	typingIndex map[string]map[string]struct{} // user id -> post ids
	quiz        map[string]map[string]struct{} // quiz id -> user ids
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		community:   make(map[string]map[string]struct{}),
		typing:      make(map[string]map[string]struct{}),
		typingIndex: make(map[string]map[string]struct{}),
		quiz:        make(map[string]map[string]struct{}),
	}
}

func (r *PresenceRegistry) AddCommunityConn(_ context.Context, communityID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	addMember(r.community, communityID, connID)
	return len(r.community[communityID])
}

func (r *PresenceRegistry) RemoveCommunityConn(_ context.Context, communityID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removeMember(r.community, communityID, connID)
	return len(r.community[communityID])
}

func (r *PresenceRegistry) AddTyping(_ context.Context, postID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	addMember(r.typing, postID, userID)
	addMember(r.typingIndex, userID, postID)
	return members(r.typing[postID])
}

func (r *PresenceRegistry) RemoveTyping(_ context.Context, postID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	removeMember(r.typing, postID, userID)
	removeMember(r.typingIndex, userID, postID)
	return members(r.typing[postID])
}

func (r *PresenceRegistry) PurgeTyping(_ context.Context, userID string) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	affected := make(map[string][]string, len(r.typingIndex[userID]))
	for postID := range r.typingIndex[userID] {
		removeMember(r.typing, postID, userID)
		affected[postID] = members(r.typing[postID])
	}
	delete(r.typingIndex, userID)
	return affected
}

func (r *PresenceRegistry) AddQuizUser(_ context.Context, quizID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	addMember(r.quiz, quizID, userID)
	return len(r.quiz[quizID])
}

func (r *PresenceRegistry) RemoveQuizUser(_ context.Context, quizID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removeMember(r.quiz, quizID, userID)
	return len(r.quiz[quizID])
}

func (r *PresenceRegistry) QuizCount(_ context.Context, quizID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quiz[quizID])
}

func addMember(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[member] = struct{}{}
}

func removeMember(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(sets, key)
	}
}

func members(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out
}
