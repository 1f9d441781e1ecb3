// Package redis provides valuez.Watcher implementations backed by Redis
// keyspace notifications.
//
// Keyspace notifications must be enabled on the server:
//
//	CONFIG SET notify-keyspace-events KEA
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Watcher sends a Redis value whenever its key is written. By default the
// key holds a string document in whatever format the Binding's codec reads.
// With Hash, the key is a hash and each field becomes one store field.
type Watcher struct {
	client *redis.Client
	key    string
	db     int
	hash   bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// DB sets the database index used for the keyspace channel. Default: 0.
func DB(n int) Option {
	return func(w *Watcher) { w.db = n }
}

// Hash reads the key with HGETALL and sends the hash as a JSON object.
// Values that parse as JSON keep their type, so "3" arrives as a number;
// anything else arrives as a string.
func Hash() Option {
	return func(w *Watcher) { w.hash = true }
}

// New creates a Watcher for key.
func New(client *redis.Client, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client: client,
		key:    key,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch implements valuez.Watcher. The current value is sent first when the
// key exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", w.db, w.key)
	pubsub := w.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		doc, err := w.read(ctx)
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return
		default:
			select {
			case out <- doc:
			case <-ctx.Done():
				return
			}
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !w.relevant(msg.Payload) {
					continue
				}
				doc, err := w.read(ctx)
				if err != nil {
					continue
				}
				select {
				case out <- doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (w *Watcher) relevant(event string) bool {
	if w.hash {
		switch event {
		case "hset", "hdel", "hincrby", "hincrbyfloat":
			return true
		}
		return false
	}
	switch event {
	case "set", "mset", "setex", "psetex", "setnx":
		return true
	}
	return false
}

func (w *Watcher) read(ctx context.Context) ([]byte, error) {
	if !w.hash {
		return w.client.Get(ctx, w.key).Bytes()
	}
	fields, err := w.client.HGetAll(ctx, w.key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	return encodeHash(fields)
}

// encodeHash renders hash fields as a JSON object.
func encodeHash(fields map[string]string) ([]byte, error) {
	doc := make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}
