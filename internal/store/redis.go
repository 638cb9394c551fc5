package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable marks a membership operation that failed because the
// backing store could not be reached. Callers treat it as non-fatal and
// fall back to registry-only truth.
var ErrUnavailable = errors.New("membership store unavailable")

// removeMember takes the user out of the set and deletes the key when the
// set is empty, in one atomic step on the server side.
var removeMember = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
if redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
end
return 1
`)

// Redis implements Membership on a Redis set per channel.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing client. The caller owns the client's lifecycle.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) AddMember(ctx context.Context, channelID, userID string) error {
	if err := s.rdb.SAdd(ctx, Key(channelID), userID).Err(); err != nil {
		return fmt.Errorf("%w: sadd %s: %v", ErrUnavailable, channelID, err)
	}
	return nil
}

func (s *Redis) RemoveMember(ctx context.Context, channelID, userID string) error {
	if err := removeMember.Run(ctx, s.rdb, []string{Key(channelID)}, userID).Err(); err != nil {
		return fmt.Errorf("%w: srem %s: %v", ErrUnavailable, channelID, err)
	}
	return nil
}

func (s *Redis) ListMembers(ctx context.Context, channelID string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, Key(channelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: smembers %s: %v", ErrUnavailable, channelID, err)
	}
	return members, nil
}
