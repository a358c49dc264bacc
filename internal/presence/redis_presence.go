package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collinglass/blarg/pkg/log"
)

// Config holds the Redis presence registry configuration.
type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	Address           string        `mapstructure:"address"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	Prefix            string        `mapstructure:"prefix"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

// RedisPresence advertises the rooms this process owns in Redis under TTL
// keys refreshed by a heartbeat, so external services can discover live rooms
// and their owning instance.
type RedisPresence struct {
	client           *redis.Client
	advertiseAddress string
	prefix           string
	keyTTL           time.Duration
	heartbeat        time.Duration

	mu          sync.RWMutex
	managedKeys map[string]struct{}
	cancel      context.CancelFunc
}

// NewRedisPresence connects to Redis and returns a presence registry.
func NewRedisPresence(cfg Config, advertiseAddress string) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPresence{
		client:           client,
		advertiseAddress: advertiseAddress,
		prefix:           cfg.Prefix,
		keyTTL:           cfg.KeyTTL,
		heartbeat:        cfg.HeartbeatInterval,
		managedKeys:      make(map[string]struct{}),
	}, nil
}

func (p *RedisPresence) keyFor(roomID string) string {
	return fmt.Sprintf("%s:room:%s", p.prefix, roomID)
}

// RoomUp advertises a live room.
func (p *RedisPresence) RoomUp(ctx context.Context, roomID string) error {
	key := p.keyFor(roomID)

	if err := p.client.Set(ctx, key, p.advertiseAddress, p.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to advertise room: %w", err)
	}

	p.mu.Lock()
	p.managedKeys[key] = struct{}{}
	p.mu.Unlock()

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldRoomID, roomID).Str("address", p.advertiseAddress).Msg("room advertised")
	return nil
}

// RoomDown withdraws a room advertisement.
func (p *RedisPresence) RoomDown(ctx context.Context, roomID string) error {
	key := p.keyFor(roomID)

	if err := p.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to withdraw room: %w", err)
	}

	p.mu.Lock()
	delete(p.managedKeys, key)
	p.mu.Unlock()

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldRoomID, roomID).Msg("room advertisement withdrawn")
	return nil
}

// Lookup resolves the instance address owning a room.
func (p *RedisPresence) Lookup(ctx context.Context, roomID string) (string, error) {
	addr, err := p.client.Get(ctx, p.keyFor(roomID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("room %s not advertised", roomID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up room: %w", err)
	}
	return addr, nil
}

// StartHeartbeat begins refreshing the TTL on every advertised key.
func (p *RedisPresence) StartHeartbeat(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", p.heartbeat).Dur("ttl", p.keyTTL).Msg("presence heartbeat started")
}

func (p *RedisPresence) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshKeys(ctx)
		}
	}
}

func (p *RedisPresence) refreshKeys(ctx context.Context) {
	p.mu.RLock()
	keys := make([]string, 0, len(p.managedKeys))
	for k := range p.managedKeys {
		keys = append(keys, k)
	}
	p.mu.RUnlock()

	for _, key := range keys {
		if err := p.client.Set(ctx, key, p.advertiseAddress, p.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh presence key")
		}
	}
}

// StopHeartbeat stops the refresh loop.
func (p *RedisPresence) StopHeartbeat() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Close stops the heartbeat and releases the Redis client.
func (p *RedisPresence) Close() error {
	p.StopHeartbeat()
	return p.client.Close()
}
