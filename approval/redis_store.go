package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

const redisKeyPrefix = "crewflow:approval:"

// RedisStoreConfig configures the redis-backed approval store.
type RedisStoreConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// RedisStore keeps approval requests in redis so a separate process
// (the approval UI backend) can read and decide them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "approval_store")),
	}, nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the redis connection, for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) set(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal approval request: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+req.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store approval request: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, req *Request) error {
	return s.set(ctx, req)
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Request, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.NewNotFoundError("approval", id)
		}
		return nil, fmt.Errorf("load approval request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal approval request: %w", err)
	}
	return &req, nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, req *Request) error {
	exists, err := s.client.Exists(ctx, redisKeyPrefix+req.ID).Result()
	if err != nil {
		return fmt.Errorf("check approval request: %w", err)
	}
	if exists == 0 {
		return types.NewNotFoundError("approval", req.ID)
	}
	return s.set(ctx, req)
}

// List implements Store. Keys are scanned incrementally to avoid
// blocking redis on large keyspaces.
func (s *RedisStore) List(ctx context.Context, status Status) ([]*Request, error) {
	var out []*Request
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("load approval request: %w", err)
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("unmarshal approval request: %w", err)
		}
		if status == "" || req.Status == status {
			out = append(out, &req)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan approval requests: %w", err)
	}
	return out, nil
}
