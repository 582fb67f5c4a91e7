package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/keyper-oauth/keyper/storage"
	"github.com/keyper-oauth/keyper/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := New(Config{
		Addr:   mr.Addr(),
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		store, _ := newTestStore(t)
		return store
	})
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without address should return error")
	}
}

func TestNew_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := New(Config{Addr: addr}); err == nil {
		t.Error("New() against a closed server should return error")
	}
}

func TestStore_GrantKeyDoesNotContainCode(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	grant := storagetest.NewGrant("SplxlOBeZQQYbYS6WxSbIA00")
	grant.ID = "d2f1c6a0"
	if err := store.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	key := DefaultKeyPrefix + "grant:" + storage.HashCode(grant.Code)
	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist, keys = %v", key, mr.Keys())
	}
	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("miniredis Get() error = %v", err)
	}
	for _, k := range mr.Keys() {
		if k == DefaultKeyPrefix+"grant:"+grant.Code {
			t.Error("raw code must not be used as a key")
		}
	}
	if strings.Contains(raw, grant.Code) {
		t.Error("stored grant must not contain the raw code")
	}
}

func TestStore_GrantTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	grant := storagetest.NewGrant("ttl-code-000000000000000")
	grant.ExpiresAt = time.Now().Add(10 * time.Minute)
	if err := store.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	ttl := mr.TTL(store.grantKey(grant.Code))
	// Remaining lifetime plus the 5s grace period
	if ttl < 10*time.Minute || ttl > 10*time.Minute+5*time.Second {
		t.Errorf("TTL = %v, want about 10m5s", ttl)
	}

	// Once Redis expires the key the grant is gone
	mr.FastForward(11 * time.Minute)
	if _, err := store.ConsumeGrant(ctx, grant.Code); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() after TTL error = %v, want ErrGrantNotFound", err)
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := New(Config{Addr: mr.Addr(), KeyPrefix: "tenant-a:", Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveClient(context.Background(), &storage.Client{ClientID: "c1", ClientType: storage.ClientTypePublic}); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if !mr.Exists("tenant-a:client:c1") {
		t.Errorf("expected prefixed client key, keys = %v", mr.Keys())
	}
}

func TestStore_ServerFailure(t *testing.T) {
	store, mr := newTestStore(t)
	mr.SetError("READONLY You can't write against a read only replica")

	err := store.CreateGrant(context.Background(), storagetest.NewGrant("failing-code-00000000000"))
	if err == nil || errors.Is(err, storage.ErrGrantExists) {
		t.Errorf("CreateGrant() error = %v, want a backend error", err)
	}

	_, err = store.ConsumeGrant(context.Background(), "failing-code-00000000000")
	if err == nil || errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() error = %v, want a backend error", err)
	}
}
