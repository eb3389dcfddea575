package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-library/internal/liberr"
	"photo-library/internal/store"
)

// fakeRenderer counts renders and emits bytes that pass the JPEG sniff.
type fakeRenderer struct {
	mu      sync.Mutex
	renders int32
	fail    bool
	block   chan struct{} // when set, Render waits for it to close
}

func (f *fakeRenderer) Render(ctx context.Context, img *store.Image, edit *store.EditState, sizePx int) ([]byte, error) {
	atomic.AddInt32(&f.renders, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("decode failed")
	}
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

func (f *fakeRenderer) renderCount() int32 {
	return atomic.LoadInt32(&f.renders)
}

func testImage(id string) *store.Image {
	return &store.Image{ID: id, Path: "/photos/" + id + ".jpg", FileName: id + ".jpg"}
}

func TestThumbnailIsIdempotent(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	c := New(t.TempDir(), r, nil)
	img := testImage("aabbccdd")

	first, err := c.Thumbnail(context.Background(), img, 256)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := c.Thumbnail(context.Background(), img, 256)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if string(first) != string(second) {
		t.Error("repeated requests returned different bitmaps")
	}
	if got := r.renderCount(); got != 1 {
		t.Errorf("renderer called %d times, want 1 (memory hit expected)", got)
	}
}

func TestThumbnailTiersAreIndependent(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	c := New(t.TempDir(), r, nil)
	img := testImage("aabbccdd")

	for _, tier := range Tiers {
		if _, err := c.Thumbnail(context.Background(), img, tier); err != nil {
			t.Fatalf("tier %d: %v", tier, err)
		}
	}
	if got := r.renderCount(); got != int32(len(Tiers)) {
		t.Errorf("renderer called %d times, want one per tier (%d)", got, len(Tiers))
	}
}

func TestThumbnailRejectsUnknownTier(t *testing.T) {
	t.Parallel()

	c := New(t.TempDir(), &fakeRenderer{}, nil)
	if _, err := c.Thumbnail(context.Background(), testImage("x"), 512); err == nil {
		t.Error("expected error for unsupported tier")
	}
}

func TestDiskHitAfterMemoryEviction(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	c := New(t.TempDir(), r, nil)
	c.SetMemoryBound(2)

	for i := 0; i < 5; i++ {
		img := testImage(fmt.Sprintf("img%04d", i))
		if _, err := c.Thumbnail(context.Background(), img, 256); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}

	if got := c.MemoryLen(); got > 2 {
		t.Errorf("memory tier holds %d entries, bound is 2", got)
	}

	// The first entry was evicted from memory but must still come from disk
	// without a new render.
	before := r.renderCount()
	if _, err := c.Thumbnail(context.Background(), testImage("img0000"), 256); err != nil {
		t.Fatalf("re-request evicted entry: %v", err)
	}
	if got := r.renderCount(); got != before {
		t.Errorf("evicted entry triggered a render (count %d -> %d), want disk hit", before, got)
	}
}

func TestGenerationFailureIsNotCached(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{fail: true}
	c := New(t.TempDir(), r, nil)
	img := testImage("broken01")

	if _, err := c.Thumbnail(context.Background(), img, 256); err == nil {
		t.Fatal("expected generation failure")
	}

	r.mu.Lock()
	r.fail = false
	r.mu.Unlock()

	if _, err := c.Thumbnail(context.Background(), img, 256); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := r.renderCount(); got != 2 {
		t.Errorf("renderer called %d times, want 2 (failure must not be cached)", got)
	}
}

// TestCancelOneWaiterNotSiblings pins the request lifecycle: two callers wait
// on the same generation, one cancels, the other still gets the bitmap, and
// the cache ends up populated.
func TestCancelOneWaiterNotSiblings(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{block: make(chan struct{})}
	c := New(t.TempDir(), r, nil)
	img := testImage("sharedgen")

	cancelCtx, cancel := context.WithCancel(context.Background())

	type result struct {
		data []byte
		err  error
	}
	cancelled := make(chan result, 1)
	survivor := make(chan result, 1)

	go func() {
		data, err := c.Thumbnail(cancelCtx, img, 256)
		cancelled <- result{data, err}
	}()
	go func() {
		data, err := c.Thumbnail(context.Background(), img, 256)
		survivor <- result{data, err}
	}()

	// Let both callers reach the wait, then cancel one.
	time.Sleep(50 * time.Millisecond)
	cancel()

	got := <-cancelled
	if !errors.Is(got.err, liberr.ErrCanceled) {
		t.Fatalf("cancelled caller got %v, want ErrCanceled", got.err)
	}

	close(r.block)

	got = <-survivor
	if got.err != nil {
		t.Fatalf("surviving caller got %v", got.err)
	}
	if len(got.data) == 0 {
		t.Fatal("surviving caller got empty bitmap")
	}

	// The detached render finished and must have populated the cache.
	waitFor(t, func() bool { return c.MemoryLen() == 1 })
	if got := r.renderCount(); got != 1 {
		t.Errorf("renderer called %d times, want 1 shared render", got)
	}
}

// TestCancelledGenerationStillPopulates covers the sole-caller case: even
// with every waiter gone, the render completes and warms both tiers.
func TestCancelledGenerationStillPopulates(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{block: make(chan struct{})}
	dir := t.TempDir()
	c := New(dir, r, nil)
	img := testImage("abandoned")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Thumbnail(ctx, img, 256)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, liberr.ErrCanceled) {
		t.Fatalf("got %v, want ErrCanceled", err)
	}

	close(r.block)
	waitFor(t, func() bool { return c.MemoryLen() == 1 })

	if _, err := os.Stat(filepath.Join(dir, "ab", "abandoned.thumb256")); err != nil {
		t.Errorf("disk tier not populated after abandoned generation: %v", err)
	}

	before := r.renderCount()
	if _, err := c.Thumbnail(context.Background(), img, 256); err != nil {
		t.Fatalf("follow-up request: %v", err)
	}
	if got := r.renderCount(); got != before {
		t.Error("follow-up request re-rendered despite warm cache")
	}
}

func TestCorruptDiskEntryIsAMiss(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	dir := t.TempDir()
	c := New(dir, r, nil)
	img := testImage("corrupt1")

	path := c.diskPath(cacheKey{id: img.ID, tier: 256})
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := c.Thumbnail(context.Background(), img, 256)
	if err != nil {
		t.Fatalf("request over corrupt entry: %v", err)
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("corrupt entry served instead of regenerated bitmap")
	}
	if got := r.renderCount(); got != 1 {
		t.Errorf("renderer called %d times, want 1 regeneration", got)
	}
}

func TestGenerateAllPopulatesEveryTier(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	dir := t.TempDir()
	c := New(dir, r, nil)
	img := testImage("eageraaa")

	if err := c.GenerateAll(context.Background(), img); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	for _, tier := range Tiers {
		path := c.diskPath(cacheKey{id: img.ID, tier: tier})
		if _, err := os.Stat(path); err != nil {
			t.Errorf("tier %d missing on disk: %v", tier, err)
		}
	}
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{}
	dir := t.TempDir()
	c := New(dir, r, nil)
	img := testImage("editedaa")

	if err := c.GenerateAll(context.Background(), img); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	c.Invalidate(img.ID)

	if got := c.MemoryLen(); got != 0 {
		t.Errorf("memory tier holds %d entries after invalidate", got)
	}
	for _, tier := range Tiers {
		path := c.diskPath(cacheKey{id: img.ID, tier: tier})
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("tier %d still on disk after invalidate", tier)
		}
	}

	before := r.renderCount()
	if _, err := c.Thumbnail(context.Background(), img, 256); err != nil {
		t.Fatalf("request after invalidate: %v", err)
	}
	if got := r.renderCount(); got != before+1 {
		t.Error("invalidate did not force regeneration")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
