package signaling

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors room membership into external storage so operators
// and sibling services can observe live rooms. The mirror is advisory: the
// registries remain the authoritative state and the relay never reads room
// membership back from the store.
type PresenceStore interface {
	Reset(ctx context.Context) error
	AddPeer(ctx context.Context, roomID, userID string) error
	RemovePeer(ctx context.Context, roomID, userID string) error
	RoomPeers(ctx context.Context, roomID string) ([]string, error)
}

// RedisPresence implements PresenceStore using one Redis set per room plus an
// index set of live room ids.
type RedisPresence struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPresence builds a PresenceStore backed by Redis. Prefix is optional
// (e.g., "signaling").
func NewRedisPresence(rdb *redis.Client, prefix string) *RedisPresence {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "signaling"
	}
	return &RedisPresence{rdb: rdb, prefix: p}
}

func (s *RedisPresence) roomsKey() string {
	return fmt.Sprintf("%s:rooms", s.prefix)
}

func (s *RedisPresence) peersKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:peers", s.prefix, roomID)
}

// Reset drops all mirrored state. Called at startup because rooms do not
// survive a process restart.
func (s *RedisPresence) Reset(ctx context.Context) error {
	rooms, err := s.rdb.SMembers(ctx, s.roomsKey()).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(rooms)+1)
	for _, id := range rooms {
		keys = append(keys, s.peersKey(id))
	}
	keys = append(keys, s.roomsKey())
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisPresence) AddPeer(ctx context.Context, roomID, userID string) error {
	pipe := s.rdb.TxPipeline()
	_ = pipe.SAdd(ctx, s.roomsKey(), roomID)
	_ = pipe.SAdd(ctx, s.peersKey(roomID), userID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisPresence) RemovePeer(ctx context.Context, roomID, userID string) error {
	if err := s.rdb.SRem(ctx, s.peersKey(roomID), userID).Err(); err != nil {
		return err
	}
	remaining, err := s.rdb.SCard(ctx, s.peersKey(roomID)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		pipe := s.rdb.TxPipeline()
		_ = pipe.SRem(ctx, s.roomsKey(), roomID)
		_ = pipe.Del(ctx, s.peersKey(roomID))
		_, err = pipe.Exec(ctx)
	}
	return err
}

func (s *RedisPresence) RoomPeers(ctx context.Context, roomID string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.peersKey(roomID)).Result()
}

// NopPresence disables mirroring when no Redis is configured.
type NopPresence struct{}

func NewNopPresence() NopPresence { return NopPresence{} }

func (NopPresence) Reset(context.Context) error                         { return nil }
func (NopPresence) AddPeer(context.Context, string, string) error       { return nil }
func (NopPresence) RemovePeer(context.Context, string, string) error    { return nil }
func (NopPresence) RoomPeers(context.Context, string) ([]string, error) { return nil, nil }
