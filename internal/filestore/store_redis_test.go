package filestore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"gofile/internal/core"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()
	content := []byte("{\"prompt\": \"hello\"}\n")

	f := testFile("file-r1", 100, "fine-tune")
	if err := store.Create(ctx, f, content); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "file-r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != f.ID || got.Purpose != "fine-tune" {
		t.Fatalf("unexpected file: %+v", got)
	}

	data, err := store.GetContent(ctx, "file-r1")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("content = %q, want %q", data, content)
	}

	got.Status = core.FileStatusProcessed
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, err := store.Get(ctx, "file-r1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got2.Status != core.FileStatusProcessed {
		t.Fatalf("status = %q, want processed", got2.Status)
	}

	if err := store.Delete(ctx, "file-r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "file-r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "file-r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreCreateDuplicate(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testFile("file-r1", 1, "batch"), []byte("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testFile("file-r1", 2, "batch"), []byte("b")); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate create error = %v, want ErrExists", err)
	}
}

func TestRedisStoreListPagination(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	inputs := []*core.FileObject{
		testFile("file-a", 1, "fine-tune"),
		testFile("file-b", 2, "batch"),
		testFile("file-c", 3, "fine-tune"),
	}
	for _, f := range inputs {
		if err := store.Create(ctx, f, nil); err != nil {
			t.Fatalf("create %s: %v", f.ID, err)
		}
	}

	list, hasMore, err := store.List(ctx, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "file-c" || list[1].ID != "file-b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if !hasMore {
		t.Error("hasMore = false, want true")
	}

	next, hasMore, err := store.List(ctx, ListFilter{Limit: 2, After: "file-b"})
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(next) != 1 || next[0].ID != "file-a" {
		t.Fatalf("unexpected after result: %+v", next)
	}
	if hasMore {
		t.Error("hasMore = true, want false")
	}

	purposeOnly, _, err := store.List(ctx, ListFilter{Purpose: "batch"})
	if err != nil {
		t.Fatalf("list purpose: %v", err)
	}
	if len(purposeOnly) != 1 || purposeOnly[0].ID != "file-b" {
		t.Fatalf("unexpected purpose result: %+v", purposeOnly)
	}

	asc, _, err := store.List(ctx, ListFilter{Order: "asc"})
	if err != nil {
		t.Fatalf("list asc: %v", err)
	}
	if len(asc) != 3 || asc[0].ID != "file-a" || asc[2].ID != "file-c" {
		t.Fatalf("unexpected ascending result: %+v", asc)
	}
}

func TestRedisStoreNativeExpiry(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour).Unix()
	f := testFile("file-ttl", 1, "batch")
	f.ExpiresAt = &expiresAt
	if err := store.Create(ctx, f, []byte("x")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Get(ctx, "file-ttl"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	// Redis drops the hash once the EXPIREAT deadline passes.
	mr.FastForward(2 * time.Hour)

	if _, err := store.Get(ctx, "file-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after expiry error = %v, want ErrNotFound", err)
	}

	list, _, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list after expiry: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("list should be empty after expiry: %+v", list)
	}
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr(), Prefix: "simfiles"})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	defer store.Close()

	if err := store.Create(context.Background(), testFile("file-1", 1, "batch"), []byte("x")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, key := range mr.Keys() {
		if !strings.HasPrefix(key, "simfiles:") {
			t.Fatalf("key %q not namespaced under simfiles:", key)
		}
	}
}
