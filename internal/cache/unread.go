package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/isaacparker671/rentago-demo/internal/utils"
)

// UnreadCounter tracks per-user per-conversation unread message counts in
// Redis. Counts are advisory UI state, not source of truth: they are bumped
// as a best-effort trailing write after a message insert and cleared when
// the reader opens the thread.
type UnreadCounter struct {
	rdb *redis.Client
}

func NewUnreadCounter(rdb *redis.Client) *UnreadCounter {
	return &UnreadCounter{rdb: rdb}
}

func unreadKey(userID utils.SixID) string {
	return fmt.Sprintf("unread:%s", userID.String())
}

// Incr bumps the unread count of a conversation for the given reader.
func (u *UnreadCounter) Incr(ctx context.Context, userID, conversationID utils.SixID) error {
	return u.rdb.HIncrBy(ctx, unreadKey(userID), conversationID.String(), 1).Err()
}

// Clear resets the unread count of a conversation for the given reader.
func (u *UnreadCounter) Clear(ctx context.Context, userID, conversationID utils.SixID) error {
	return u.rdb.HDel(ctx, unreadKey(userID), conversationID.String()).Err()
}

// Counts returns the unread counts of all conversations with pending
// messages for the given reader, keyed by conversation ID string.
func (u *UnreadCounter) Counts(ctx context.Context, userID utils.SixID) (map[string]int64, error) {
	raw, err := u.rdb.HGetAll(ctx, unreadKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read unread counts for user %s: %w", userID.String(), err)
	}
	counts := make(map[string]int64, len(raw))
	for conv, val := range raw {
		var n int64
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
			continue // skip malformed entries
		}
		counts[conv] = n
	}
	return counts, nil
}
