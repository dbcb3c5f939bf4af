package entity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings of a RedisStore.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix is put in front of every key; "entity:" when empty.
	Prefix string
	// MaxRetries bounds the optimistic retries of Update; 10 when zero.
	MaxRetries int
}

// RedisStore keeps each entity as a JSON string under prefix+type+":"+id
// and the ids of a type in the set prefix+type. Update is optimistic: it
// WATCHes the key and retries when another writer got in first.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("entity redis store: ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient creates a RedisStore backed by a pre-built client.
// The store takes ownership of the client.
func NewRedisStoreWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "entity:"
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 10
	}
	return &RedisStore{client: client, prefix: prefix, maxRetries: retries}
}

// Documents live under prefix+"doc:"+type+":"+id and the id set of a type
// under prefix+"idx:"+type. Types may not contain ':' so a document key has
// exactly one split point.
func (s *RedisStore) key(typ, id string) string { return s.prefix + "doc:" + typ + ":" + id }

func (s *RedisStore) index(typ string) string { return s.prefix + "idx:" + typ }

func checkType(typ string) error {
	if typ == "" || strings.Contains(typ, ":") {
		return fmt.Errorf("%w: %q (redis store types must be non-empty and contain no ':')", ErrInvalidType, typ)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, typ, id string) (Document, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(typ, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(typ, id)
	}
	if err != nil {
		return nil, fmt.Errorf("entity redis store: get %s %q: %w", typ, id, err)
	}
	return decode(data)
}

func (s *RedisStore) Update(ctx context.Context, typ, id string, fn UpdateFunc) (Document, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}
	key := s.key(typ, id)
	var out Document

	txf := func(tx *redis.Tx) error {
		var current Document
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decode(data); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		normalized, encoded, err := normalize(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, s.index(typ), id)
			return nil
		})
		if err != nil {
			return err
		}
		out = normalized
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s %q after %d attempts", ErrConflict, typ, id, s.maxRetries)
}

func (s *RedisStore) Delete(ctx context.Context, typ, id string) error {
	if err := checkType(typ); err != nil {
		return err
	}
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.key(typ, id))
		pipe.SRem(ctx, s.index(typ), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("entity redis store: delete %s %q: %w", typ, id, err)
	}
	if deleted.Val() == 0 {
		return notFound(typ, id)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, typ string) ([]Document, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, s.index(typ)).Result()
	if err != nil {
		return nil, fmt.Errorf("entity redis store: list %s: %w", typ, err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(typ, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("entity redis store: list %s: %w", typ, err)
	}

	docs := make([]Document, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		doc, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
