package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// changeEvent is published on the namespace channel after every write.
type changeEvent struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// RedisStore keeps values under storefront:<namespace>:<key> and announces
// writes on storefront:<namespace>:changes so other origins can follow.
type RedisStore struct {
	client    *redis.Client
	namespace string
	origin    string
	baseTTL   time.Duration
	log       *slog.Logger
	listeners *listeners

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func NewRedisStore(client *redis.Client, namespace, origin string, baseTTL time.Duration, log *slog.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		origin:    origin,
		baseTTL:   baseTTL,
		log:       log,
		listeners: newListeners(),
	}
}

// RedisOpener opens one RedisStore per origin over a shared client.
func RedisOpener(client *redis.Client, baseTTL time.Duration, log *slog.Logger) Opener {
	return func(_ context.Context, namespace, origin string) (Store, error) {
		return NewRedisStore(client, namespace, origin, baseTTL, log), nil
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	data, err := r.client.Get(ctx, r.valueKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	event, err := json.Marshal(changeEvent{Origin: r.origin, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("marshal change failed: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.valueKey(key), value, r.ttl())
	pipe.Publish(ctx, r.channel(), string(event))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	event, err := json.Marshal(changeEvent{Origin: r.origin, Key: key, Removed: true})
	if err != nil {
		return fmt.Errorf("marshal change failed: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.valueKey(key))
	pipe.Publish(ctx, r.channel(), string(event))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) OnExternalChange(key string, fn ChangeFunc) (func(), error) {
	if err := r.subscribe(); err != nil {
		return nil, err
	}
	return r.listeners.add(key, fn), nil
}

// subscribe joins the namespace channel once and waits for the confirmation
// so no write issued after OnExternalChange returns is missed.
func (r *RedisStore) subscribe() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis subscribe failed: %w", err)
	}
	r.pubsub = pubsub

	r.wg.Add(1)
	go r.listen(pubsub.Channel())
	return nil
}

func (r *RedisStore) listen(messages <-chan *redis.Message) {
	defer r.wg.Done()

	for msg := range messages {
		var event changeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.log.Warn("dropping malformed change event", slog.String("channel", msg.Channel), slog.Any("error", err))
			continue
		}
		if event.Origin == r.origin {
			continue
		}
		r.listeners.dispatch(Change{Key: event.Key, Value: event.Value, Removed: event.Removed})
	}
}

// Close stops the subscription; the shared client stays open.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	pubsub := r.pubsub
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	r.wg.Wait()
	if err != nil {
		return fmt.Errorf("redis unsubscribe failed: %w", err)
	}
	return nil
}

// ttl spreads expiry of abandoned carts over a few minutes.
func (r *RedisStore) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func (r *RedisStore) valueKey(key string) string {
	return fmt.Sprintf("storefront:%s:%s", r.namespace, key)
}

func (r *RedisStore) channel() string {
	return fmt.Sprintf("storefront:%s:changes", r.namespace)
}
