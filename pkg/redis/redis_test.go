package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/zoobzio/valuez"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		t.Fatalf("failed to enable keyspace notifications: %v", err)
	}

	return client
}

func TestEncodeHash(t *testing.T) {
	data, err := encodeHash(map[string]string{
		"x":    "3",
		"name": "bob",
		"on":   "true",
	})
	if err != nil {
		t.Fatalf("encodeHash() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	if doc["x"] != float64(3) {
		t.Errorf("expected x to be the number 3, got %#v", doc["x"])
	}
	if doc["name"] != "bob" {
		t.Errorf("expected name %q, got %#v", "bob", doc["name"])
	}
	if doc["on"] != true {
		t.Errorf("expected on true, got %#v", doc["on"])
	}
}

func TestRelevant(t *testing.T) {
	plain := New(nil, "k")
	if !plain.relevant("set") || plain.relevant("hset") {
		t.Error("string watcher should react to set only")
	}
	hashed := New(nil, "k", Hash())
	if !hashed.relevant("hset") || hashed.relevant("set") {
		t.Error("hash watcher should react to hset only")
	}
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "settings:test"
	value := []byte(`{"port": 8080}`)

	if err := client.Set(ctx, key, value, 0).Err(); err != nil {
		t.Fatalf("failed to set initial value: %v", err)
	}

	ch, err := New(client, key).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != string(value) {
			t.Errorf("expected %q, got %q", value, data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}
}

func TestWatcher_HashDrivesStore(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "point"
	if err := client.HSet(ctx, key, "x", "1", "y", "2").Err(); err != nil {
		t.Fatalf("failed to seed hash: %v", err)
	}

	store := valuez.New("point")
	if _, err := store.Property("x", 0, "integer"); err != nil {
		t.Fatalf("Property(x) error = %v", err)
	}
	if _, err := store.Property("y", 0, "integer"); err != nil {
		t.Fatalf("Property(y) error = %v", err)
	}

	binding := valuez.Bind(store, New(client, key, Hash())).SyncMode()
	if err := binding.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if v, _ := store.Get("x"); v != float64(1) {
		t.Errorf("expected x 1, got %#v", v)
	}

	if err := client.HSet(ctx, key, "x", "bob").Err(); err != nil {
		t.Fatalf("failed to update hash: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !binding.Process(ctx) {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for update")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if binding.State() != valuez.StateDegraded {
		t.Errorf("expected degraded, got %s", binding.State())
	}
	if v, _ := store.Get("x"); v != float64(1) {
		t.Errorf("expected x to stay 1, got %#v", v)
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	key := "settings:test"
	if err := client.Set(ctx, key, []byte("value"), 0).Err(); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	ch, err := New(client, key).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}
