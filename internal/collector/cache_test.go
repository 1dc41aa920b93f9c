package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"herb-collector/internal/domain"
)

func TestRemoteCacheTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewRemoteCache(5 * time.Minute)
	c.now = func() time.Time { return now }

	calls := 0
	fetch := func(context.Context) ([]domain.CollectionRecord, error) {
		calls++
		return []domain.CollectionRecord{{ID: "s1"}}, nil
	}

	ctx := context.Background()
	c.Get(ctx, fetch)
	now = now.Add(4 * time.Minute)
	c.Get(ctx, fetch)
	if calls != 1 {
		t.Errorf("expected fresh listing to be reused, got %d fetches", calls)
	}

	now = now.Add(time.Minute)
	c.Get(ctx, fetch)
	if calls != 2 {
		t.Errorf("expected refetch once stale, got %d fetches", calls)
	}
}

func TestRemoteCacheServesStaleOnError(t *testing.T) {
	c := NewRemoteCache(time.Minute)
	ctx := context.Background()

	c.Get(ctx, func(context.Context) ([]domain.CollectionRecord, error) {
		return []domain.CollectionRecord{{ID: "s1"}}, nil
	})
	c.Invalidate()

	errBoom := errors.New("boom")
	records, err := c.Get(ctx, func(context.Context) ([]domain.CollectionRecord, error) {
		return nil, errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected fetch error, got %v", err)
	}
	if len(records) != 1 || records[0].ID != "s1" {
		t.Errorf("expected stale listing, got %+v", records)
	}
}

func TestRemoteCacheInvalidateDuringFetch(t *testing.T) {
	c := NewRemoteCache(time.Minute)
	ctx := context.Background()

	fetches := 0
	c.Get(ctx, func(context.Context) ([]domain.CollectionRecord, error) {
		fetches++
		c.Invalidate()
		return []domain.CollectionRecord{{ID: "before-sync"}}, nil
	})

	if _, fresh := c.Fresh(); fresh {
		t.Fatal("listing fetched across an invalidation must not be fresh")
	}
	if records, ok := c.Cached(); !ok || records[0].ID != "before-sync" {
		t.Errorf("expected the listing to remain available as stale, got %+v", records)
	}

	records, _ := c.Get(ctx, func(context.Context) ([]domain.CollectionRecord, error) {
		fetches++
		return []domain.CollectionRecord{{ID: "after-sync"}}, nil
	})
	if fetches != 2 || records[0].ID != "after-sync" {
		t.Errorf("expected a refetch after the overlapping invalidation, got %d fetches, %+v", fetches, records)
	}
	if _, fresh := c.Fresh(); !fresh {
		t.Error("expected the refetched listing to be fresh")
	}
}
