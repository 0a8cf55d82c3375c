// Package rediscache keeps launches in Redis so that every API process can serve any launch.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
)

const (
	defaultPrefix = "scorm:launch:"
	defaultTTL    = 12 * time.Hour
)

type LaunchStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ player.LaunchStore = (*LaunchStore)(nil)

// NewLaunchStore connects to the configured Redis server.
func NewLaunchStore(conf *core.Config) (*LaunchStore, error) {
	if conf.Redis.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return NewLaunchStoreFromClient(client, conf.Redis.Prefix, conf.Redis.LaunchTTL), nil
}

func NewLaunchStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *LaunchStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LaunchStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *LaunchStore) key(id string) string {
	return s.prefix + id
}

func (s *LaunchStore) Save(ctx context.Context, l player.Launch) error {
	data, err := json.Marshal(l)
	if err != nil {
		return errors.Wrap(err, "encoding launch")
	}
	if err = s.client.Set(ctx, s.key(l.ID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "saving launch")
	}
	return nil
}

// Get refreshes the expiry of the launch, so that launches in use never expire.
func (s *LaunchStore) Get(ctx context.Context, id string) (player.Launch, error) {
	data, err := s.client.GetEx(ctx, s.key(id), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return player.Launch{}, player.ErrLaunchNotFound
		}
		return player.Launch{}, errors.Wrap(err, "getting launch")
	}

	var l player.Launch
	if err = json.Unmarshal(data, &l); err != nil {
		return player.Launch{}, errors.Wrap(err, "decoding launch")
	}
	return l, nil
}

func (s *LaunchStore) Delete(ctx context.Context, id string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(id)).Err(), "deleting launch")
}

func (s *LaunchStore) Close() error {
	return s.client.Close()
}
