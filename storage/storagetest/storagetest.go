// Package storagetest provides a behavioural test suite that every storage backend runs.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/keyper-oauth/keyper/storage"
)

// Store is the combined surface exercised by the suite
type Store interface {
	storage.ClientStore
	storage.GrantStore
}

// NewGrant returns a live grant for code with a ten minute lifetime
func NewGrant(code string) *storage.Grant {
	now := time.Now().Truncate(time.Millisecond)
	return &storage.Grant{
		ID:          "grant-" + code,
		Code:        code,
		ClientID:    "s6BhdRkqt3",
		RedirectURI: "https://client.example.com/cb",
		Scopes:      []string{"read", "write"},
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

// grantCmp ignores monotonic clock readings and location differences between backends
var grantCmp = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
}

// Run executes the full suite. newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ClientRoundTrip", func(t *testing.T) { testClientRoundTrip(t, newStore(t)) })
	t.Run("ClientNotFound", func(t *testing.T) { testClientNotFound(t, newStore(t)) })
	t.Run("ListClients", func(t *testing.T) { testListClients(t, newStore(t)) })
	t.Run("CreateAndConsume", func(t *testing.T) { testCreateAndConsume(t, newStore(t)) })
	t.Run("ConsumeTwice", func(t *testing.T) { testConsumeTwice(t, newStore(t)) })
	t.Run("ConsumeUnknown", func(t *testing.T) { testConsumeUnknown(t, newStore(t)) })
	t.Run("DuplicateCode", func(t *testing.T) { testDuplicateCode(t, newStore(t)) })
	t.Run("ExpiredGrant", func(t *testing.T) { testExpiredGrant(t, newStore(t)) })
	t.Run("ExpiryIgnoresGrace", func(t *testing.T) { testExpiryIgnoresGrace(t, newStore(t)) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newStore(t)) })
	t.Run("DeleteExpiredGrants", func(t *testing.T) { testDeleteExpiredGrants(t, newStore(t)) })
}

func testClientRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	client := &storage.Client{
		ClientID:         "s6BhdRkqt3",
		ClientType:       storage.ClientTypeConfidential,
		RedirectURIs:     []string{"https://client.example.com/cb", "https://client.example.com/alt"},
		ClientName:       "Example",
		ClientSecretHash: "$2a$10$hash",
	}

	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := s.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if diff := cmp.Diff(client, got, append(grantCmp, cmpopts.IgnoreFields(storage.Client{}, "CreatedAt"))...); diff != "" {
		t.Errorf("GetClient() mismatch (-want +got):\n%s", diff)
	}
	if got.DefaultRedirectURI() != "https://client.example.com/cb" {
		t.Errorf("redirect URI order not preserved: %v", got.RedirectURIs)
	}

	// Lookup is case-sensitive
	if _, err := s.GetClient(ctx, "S6BHDRKQT3"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() with different case error = %v, want ErrClientNotFound", err)
	}
}

func testClientNotFound(t *testing.T, s Store) {
	_, err := s.GetClient(context.Background(), "nope")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func testListClients(t *testing.T, s Store) {
	ctx := context.Background()
	for _, id := range []string{"b-client", "a-client"} {
		if err := s.SaveClient(ctx, &storage.Client{ClientID: id, ClientType: storage.ClientTypePublic}); err != nil {
			t.Fatalf("SaveClient(%q) error = %v", id, err)
		}
	}

	clients, err := s.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	var ids []string
	for _, c := range clients {
		ids = append(ids, c.ClientID)
	}
	if diff := cmp.Diff([]string{"a-client", "b-client"}, ids); diff != "" {
		t.Errorf("ListClients() ids mismatch (-want +got):\n%s", diff)
	}
}

func testCreateAndConsume(t *testing.T, s Store) {
	ctx := context.Background()
	grant := NewGrant("SplxlOBeZQQYbYS6WxSbIA00")

	if err := s.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	got, err := s.ConsumeGrant(ctx, grant.Code)
	if err != nil {
		t.Fatalf("ConsumeGrant() error = %v", err)
	}
	if diff := cmp.Diff(grant, got, grantCmp...); diff != "" {
		t.Errorf("ConsumeGrant() mismatch (-want +got):\n%s", diff)
	}
}

func testConsumeTwice(t *testing.T, s Store) {
	ctx := context.Background()
	grant := NewGrant("code-consumed-once-00000")

	if err := s.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if _, err := s.ConsumeGrant(ctx, grant.Code); err != nil {
		t.Fatalf("first ConsumeGrant() error = %v", err)
	}
	if _, err := s.ConsumeGrant(ctx, grant.Code); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("second ConsumeGrant() error = %v, want ErrGrantNotFound", err)
	}
}

func testConsumeUnknown(t *testing.T, s Store) {
	_, err := s.ConsumeGrant(context.Background(), "never-issued")
	if !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() error = %v, want ErrGrantNotFound", err)
	}
}

func testDuplicateCode(t *testing.T, s Store) {
	ctx := context.Background()
	first := NewGrant("duplicate-code-000000000")
	second := NewGrant("duplicate-code-000000000")
	second.ID = "other"

	if err := s.CreateGrant(ctx, first); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if err := s.CreateGrant(ctx, second); !errors.Is(err, storage.ErrGrantExists) {
		t.Fatalf("CreateGrant() duplicate error = %v, want ErrGrantExists", err)
	}

	// The original grant is untouched
	got, err := s.ConsumeGrant(ctx, first.Code)
	if err != nil {
		t.Fatalf("ConsumeGrant() error = %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("grant ID = %q, want %q", got.ID, first.ID)
	}
}

func testExpiredGrant(t *testing.T, s Store) {
	ctx := context.Background()
	grant := NewGrant("expired-code-00000000000")
	grant.CreatedAt = time.Now().Add(-20 * time.Minute)
	grant.ExpiresAt = time.Now().Add(-10 * time.Minute)

	if err := s.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if _, err := s.ConsumeGrant(ctx, grant.Code); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() expired error = %v, want ErrGrantNotFound", err)
	}
}

func testExpiryIgnoresGrace(t *testing.T, s Store) {
	ctx := context.Background()

	// A purge grace period must not keep an expired grant consumable
	if setter, ok := s.(interface{ SetClockSkewGracePeriod(time.Duration) }); ok {
		setter.SetClockSkewGracePeriod(time.Minute)
	}

	grant := NewGrant("recently-expired-0000000")
	grant.ExpiresAt = time.Now().Add(-time.Second)

	if err := s.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if _, err := s.ConsumeGrant(ctx, grant.Code); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() just past expiry error = %v, want ErrGrantNotFound", err)
	}
}

func testConcurrentConsume(t *testing.T, s Store) {
	ctx := context.Background()
	grant := NewGrant("raced-code-0000000000000")
	if err := s.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeGrant(ctx, grant.Code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if !errors.Is(err, storage.ErrGrantNotFound) {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful consumptions = %d, want exactly 1", successes)
	}
	for _, err := range failures {
		t.Errorf("unexpected ConsumeGrant() error: %v", err)
	}
}

func testDeleteExpiredGrants(t *testing.T, s Store) {
	cleaner, ok := s.(storage.ExpiredGrantCleaner)
	if !ok {
		t.Skip("store does not implement ExpiredGrantCleaner")
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g := NewGrant(fmt.Sprintf("stale-%018d", i))
		g.ExpiresAt = time.Now().Add(-time.Hour)
		if err := s.CreateGrant(ctx, g); err != nil {
			t.Fatalf("CreateGrant() error = %v", err)
		}
	}
	live := NewGrant("live-code-00000000000000")
	if err := s.CreateGrant(ctx, live); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	if _, err := cleaner.DeleteExpiredGrants(ctx); err != nil {
		t.Fatalf("DeleteExpiredGrants() error = %v", err)
	}

	if _, err := s.ConsumeGrant(ctx, live.Code); err != nil {
		t.Errorf("live grant was removed by cleanup: %v", err)
	}
}
