package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"enrollment-forecast/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestConnectWithCustomAddr(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return nil
	}

	client, err := Connect(context.Background(), "redis:9999", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if capturedAddr != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", capturedAddr)
	}
}

func TestConnectParsesURL(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var captured *redis.Options
	newRedisClient = func(opts *redis.Options) *redis.Client {
		captured = opts
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return nil
	}

	client, err := Connect(context.Background(), "redis://cache:6380/2", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if captured.Addr != "cache:6380" || captured.DB != 2 {
		t.Fatalf("unexpected options: addr=%s db=%d", captured.Addr, captured.DB)
	}
}

func TestConnectPingFailure(t *testing.T) {
	origPing := pingRedis
	t.Cleanup(func() { pingRedis = origPing })
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return errors.New("refused")
	}

	if _, err := Connect(context.Background(), "localhost:6379", zerolog.Nop()); err == nil {
		t.Fatal("expected ping error")
	}
}

type fakeKV struct {
	data map[string]string
	ttl  time.Duration
}

func (f *fakeKV) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	store := NewSnapshotStore(kv, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "transform-all", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := kv.data["enrollment-forecast:transform-all"]; !ok {
		t.Fatalf("expected prefixed key, got %v", kv.data)
	}
	if kv.ttl != time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %v", kv.ttl)
	}
	got, err := store.Load(ctx, "transform-all")
	if err != nil || string(got) != `{"v":1}` {
		t.Fatalf("load: %q %v", got, err)
	}
}

func TestSnapshotStoreMissing(t *testing.T) {
	store := NewSnapshotStore(&fakeKV{data: map[string]string{}}, 0)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}
