package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/auth"
	"eddisonso.com/edd-directory/internal/cache"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/events"
)

var (
	alice = auth.Identity{AccountID: 1, Username: "alice"}
	carol = auth.Identity{AccountID: 2, Username: "carol"}
)

type harness struct {
	svc    *Service
	store  *memStore
	cache  *flakyCache
	mem    *cache.MemoryCache
	photos *fakePhotos
	events *fakeEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := cache.NewMemoryCache(1<<20, 0)
	h := &harness{
		store:  newMemStore(),
		mem:    mem,
		cache:  &flakyCache{Cache: mem},
		photos: &fakePhotos{},
		events: &fakeEvents{},
	}
	h.svc = NewService(Config{
		Store:          h.store,
		Cache:          h.cache,
		Photos:         h.photos,
		Events:         h.events,
		ListTTL:        30 * time.Second,
		EntryTTL:       5 * time.Minute,
		PhotoURLPrefix: "/static/uploads/",
	})
	return h
}

func (h *harness) create(t *testing.T, who auth.Identity, name string) *Employee {
	t.Helper()
	e, err := h.svc.Save(context.Background(), who, SaveInput{FullName: name, Location: "Seoul"})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestList_EmptyForNewOwner(t *testing.T) {
	h := newHarness(t)
	list, err := h.svc.List(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %#v", list)
	}
	b, err := h.mem.Get(context.Background(), cache.ListKey(alice.AccountID))
	if err != nil || string(b) != "[]" {
		t.Fatalf("cached payload = %q, %v", b, err)
	}
}

func TestList_ReadThrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice, "Bob")

	first, err := h.svc.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	readsAfterMiss := h.store.reads()
	cached, _ := h.mem.Get(ctx, cache.ListKey(alice.AccountID))

	second, err := h.svc.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if h.store.reads() != readsAfterMiss {
		t.Fatal("cache hit must not touch the store")
	}
	again, _ := h.mem.Get(ctx, cache.ListKey(alice.AccountID))
	if string(cached) != string(again) {
		t.Fatal("cached payload changed between reads")
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Fatalf("reads differ: %+v vs %+v", first, second)
	}
}

func TestList_ScopedToOwner(t *testing.T) {
	h := newHarness(t)
	h.create(t, alice, "Bob")

	list, err := h.svc.List(context.Background(), carol)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("carol sees %+v", list)
	}
}

func TestList_CachedEntriesUntrustedPastTTL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.listTTL = 20 * time.Millisecond

	h.svc.List(ctx, alice)
	// Write behind the service's back; only expiry can reveal it.
	h.store.CreateEmployee(ctx, &db.Employee{OwnerID: alice.AccountID, FullName: "Zed"})
	if list, _ := h.svc.List(ctx, alice); len(list) != 0 {
		t.Fatal("expected stale cached list within ttl")
	}
	time.Sleep(40 * time.Millisecond)
	if list, _ := h.svc.List(ctx, alice); len(list) != 1 {
		t.Fatalf("expected refreshed list past ttl, got %+v", list)
	}
}

func TestWriteInvalidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.List(ctx, alice) // cache the empty list
	bob := h.create(t, alice, "Bob")

	list, err := h.svc.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].FullName != "Bob" {
		t.Fatalf("create not visible: %+v", list)
	}

	if _, err := h.svc.Get(ctx, alice, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Save(ctx, alice, SaveInput{EmployeeID: bob.ID, FullName: "Robert"}); err != nil {
		t.Fatal(err)
	}
	got, err := h.svc.Get(ctx, alice, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FullName != "Robert" {
		t.Fatalf("update not visible on entry: %+v", got)
	}
	if list, _ := h.svc.List(ctx, alice); list[0].FullName != "Robert" {
		t.Fatalf("update not visible on list: %+v", list)
	}

	if err := h.svc.Delete(ctx, alice, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Get(ctx, alice, bob.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if list, _ := h.svc.List(ctx, alice); len(list) != 0 {
		t.Fatalf("delete not visible: %+v", list)
	}

	var actions []events.EmployeeAction
	for _, c := range h.events.changes {
		actions = append(actions, c.action)
	}
	if len(actions) != 3 || actions[0] != events.EmployeeCreated || actions[1] != events.EmployeeUpdated || actions[2] != events.EmployeeDeleted {
		t.Fatalf("events = %v", actions)
	}
}

func TestGet_OwnershipEnforced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.create(t, alice, "Bob")

	// Once from the store, once from the warmed cache.
	for i := 0; i < 2; i++ {
		_, err := h.svc.Get(ctx, carol, bob.ID)
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("read %d: expected ErrForbidden, got %v", i, err)
		}
		if apperr.StatusCode(err) != 404 || apperr.Message(err) != apperr.ErrNotFound.Error() {
			t.Fatal("foreign record must look like a missing one")
		}
		h.svc.Get(ctx, alice, bob.ID)
	}
}

func TestForeignWritesRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.create(t, alice, "Bob")

	if _, err := h.svc.Save(ctx, carol, SaveInput{EmployeeID: bob.ID, FullName: "Hijack"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := h.svc.Delete(ctx, carol, bob.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	got, err := h.svc.Get(ctx, alice, bob.ID)
	if err != nil || got.FullName != "Bob" {
		t.Fatalf("record changed: %+v, %v", got, err)
	}
}

func TestSave_MissingTargets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Save(ctx, alice, SaveInput{EmployeeID: 404, FullName: "Ghost"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.svc.Delete(ctx, alice, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.svc.Save(ctx, alice, SaveInput{FullName: "  "}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSave_PhotoLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.Save(ctx, alice, SaveInput{
		FullName: "Bob",
		Photo:    &PhotoUpload{Filename: "bob.png", Body: strings.NewReader("png")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ObjectKey != "photo-a.png" || created.PhotoURL != "/static/uploads/photo-a.png" {
		t.Fatalf("unexpected photo fields: %+v", created.EmployeePublic)
	}

	// Update without a photo keeps it.
	kept, err := h.svc.Save(ctx, alice, SaveInput{EmployeeID: created.ID, FullName: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	if kept.ObjectKey != "photo-a.png" || len(h.photos.deleted) != 0 {
		t.Fatalf("photo should be kept: %+v, deleted %v", kept.EmployeePublic, h.photos.deleted)
	}

	// Replacing deletes the old one.
	replaced, err := h.svc.Save(ctx, alice, SaveInput{
		EmployeeID: created.ID,
		FullName:   "Bob",
		Photo:      &PhotoUpload{Filename: "new.png", Body: strings.NewReader("png")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if replaced.ObjectKey != "photo-b.png" {
		t.Fatalf("object key = %q", replaced.ObjectKey)
	}
	if len(h.photos.deleted) != 1 || h.photos.deleted[0] != "photo-a.png" {
		t.Fatalf("deleted = %v", h.photos.deleted)
	}

	if err := h.svc.Delete(ctx, alice, created.ID); err != nil {
		t.Fatal(err)
	}
	if len(h.photos.deleted) != 2 || h.photos.deleted[1] != "photo-b.png" {
		t.Fatalf("delete should remove the photo, deleted = %v", h.photos.deleted)
	}
}

func TestSave_UploadFailureAbortsBeforeWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.create(t, alice, "Bob")
	h.photos.uploadErr = errors.New("connection reset")

	_, err := h.svc.Save(ctx, alice, SaveInput{
		EmployeeID: bob.ID,
		FullName:   "Robert",
		Photo:      &PhotoUpload{Filename: "x.png", Body: strings.NewReader("png")},
	})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	got, _ := h.svc.Get(ctx, alice, bob.ID)
	if got.FullName != "Bob" {
		t.Fatal("record must not change when the upload fails")
	}

	if _, err := h.svc.Save(ctx, alice, SaveInput{
		FullName: "New",
		Photo:    &PhotoUpload{Filename: "x.png", Body: strings.NewReader("png")},
	}); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if list, _ := h.svc.List(ctx, alice); len(list) != 1 {
		t.Fatalf("no record may be created: %+v", list)
	}
}

func TestSave_OldPhotoDeleteFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, _ := h.svc.Save(ctx, alice, SaveInput{FullName: "Bob", Photo: &PhotoUpload{Filename: "a.png", Body: strings.NewReader("a")}})
	h.photos.deleteErr = errors.New("photo service down")

	updated, err := h.svc.Save(ctx, alice, SaveInput{
		EmployeeID: first.ID,
		FullName:   "Bob",
		Photo:      &PhotoUpload{Filename: "b.png", Body: strings.NewReader("b")},
	})
	if err != nil {
		t.Fatalf("old photo cleanup must not fail the save: %v", err)
	}
	if updated.ObjectKey != "photo-b.png" {
		t.Fatalf("object key = %q", updated.ObjectKey)
	}
	if err := h.svc.Delete(ctx, alice, first.ID); err != nil {
		t.Fatalf("photo cleanup must not fail the delete: %v", err)
	}
}

func TestSave_StoreFailureRemovesFreshUpload(t *testing.T) {
	h := newHarness(t)
	h.store.failWrites = apperr.ErrInternalStore

	_, err := h.svc.Save(context.Background(), alice, SaveInput{
		FullName: "Bob",
		Photo:    &PhotoUpload{Filename: "a.png", Body: strings.NewReader("a")},
	})
	if !errors.Is(err, apperr.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore, got %v", err)
	}
	if len(h.photos.deleted) != 1 || h.photos.deleted[0] != h.photos.uploaded[0] {
		t.Fatalf("orphaned upload not removed: %v", h.photos.deleted)
	}
}

func TestWrite_InvalidationFailureIsHardError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.create(t, alice, "Bob")
	h.cache.failDelete = errCacheDown

	_, err := h.svc.Save(ctx, alice, SaveInput{EmployeeID: bob.ID, FullName: "Robert"})
	if !errors.Is(err, apperr.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore from save, got %v", err)
	}
	if err := h.svc.Delete(ctx, alice, bob.ID); !errors.Is(err, apperr.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore from delete, got %v", err)
	}
	if apperr.Message(err) == errCacheDown.Error() {
		t.Fatal("driver detail leaked into the client message")
	}
}

func TestRead_CacheOutageFallsBackToStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice, "Bob")
	h.cache.failGet = errCacheDown
	h.cache.failSet = errCacheDown

	list, err := h.svc.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestRead_CorruptCacheEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := h.create(t, alice, "Bob")

	h.mem.Set(ctx, cache.EntryKey(bob.ID), []byte(`{"id":`), time.Minute)
	if _, err := h.svc.Get(ctx, alice, bob.ID); !errors.Is(err, apperr.ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization, got %v", err)
	}
	got, err := h.svc.Get(ctx, alice, bob.ID)
	if err != nil || got.FullName != "Bob" {
		t.Fatalf("corrupt entry should be evicted: %+v, %v", got, err)
	}

	h.mem.Set(ctx, cache.ListKey(alice.AccountID), []byte(`[{"id":9,"owner_id":2,"full_name":"Other"}]`), time.Minute)
	if _, err := h.svc.List(ctx, alice); !errors.Is(err, apperr.ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization for foreign list payload, got %v", err)
	}
}

func TestList_ConcurrentReaders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice, "Bob")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := h.svc.List(ctx, alice)
			if err != nil {
				t.Error(err)
				return
			}
			if len(list) != 1 || list[0].FullName != "Bob" {
				t.Errorf("list = %+v", list)
			}
		}()
	}
	wg.Wait()
}

type listResult struct {
	list []EmployeePublic
	err  error
}

func listAsync(ctx context.Context, svc *Service, who auth.Identity) <-chan listResult {
	ch := make(chan listResult, 1)
	go func() {
		list, err := svc.List(ctx, who)
		ch <- listResult{list, err}
	}()
	return ch
}

func waitEntered(t *testing.T, b *blockingStore, msg string) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestList_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	h := newHarness(t)
	h.create(t, alice, "Bob")
	blocking := newBlockingStore(h.store)
	h.svc.store = blocking

	firstCtx, cancel := context.WithCancel(context.Background())
	first := listAsync(firstCtx, h.svc, alice)
	waitEntered(t, blocking, "store load never started")

	second := listAsync(context.Background(), h.svc, alice)
	time.Sleep(50 * time.Millisecond)

	cancel()
	if res := <-first; !errors.Is(res.err, context.Canceled) {
		t.Fatalf("cancelled caller: err = %v", res.err)
	}

	close(blocking.release)
	res := <-second
	if res.err != nil {
		t.Fatalf("waiting caller failed: %v", res.err)
	}
	if len(res.list) != 1 || res.list[0].FullName != "Bob" {
		t.Fatalf("list = %+v", res.list)
	}
	if n := h.store.lists; n != 1 {
		t.Fatalf("store lists = %d, want one shared load", n)
	}
}

func TestList_ReadAfterWriteStartsFreshLoad(t *testing.T) {
	h := newHarness(t)
	h.create(t, alice, "Bob")
	blocking := newBlockingStore(h.store)
	h.svc.store = blocking

	before := listAsync(context.Background(), h.svc, alice)
	waitEntered(t, blocking, "store load never started")

	if _, err := h.svc.Save(context.Background(), alice, SaveInput{FullName: "Carl"}); err != nil {
		t.Fatal(err)
	}

	after := listAsync(context.Background(), h.svc, alice)
	waitEntered(t, blocking, "read after the write joined the load that began before it")

	close(blocking.release)
	if res := <-before; res.err != nil {
		t.Fatal(res.err)
	}
	res := <-after
	if res.err != nil {
		t.Fatal(res.err)
	}
	if len(res.list) != 2 {
		t.Fatalf("read after write = %+v, want both entries", res.list)
	}
}
