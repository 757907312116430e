package embedding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls [][]string
	fail  error
	short bool
}

func (f *fakeTransport) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i) + 0.5, 0.25}
	}
	return out, nil
}

func (f *fakeTransport) ValidateServer(ctx context.Context) error { return nil }

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestBatcherCoalescesConcurrentQueries(t *testing.T) {
	transport := &fakeTransport{}
	// Window long enough that only the size trigger can flush.
	b := NewBatcher(transport, 3, time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	vecs := make([][]float32, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vecs[i], errs[i] = b.EmbedQuery(context.Background(), fmt.Sprintf("query-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Fatalf("query %d failed: %v", i, errs[i])
		}
		if len(vecs[i]) == 0 {
			t.Errorf("query %d got empty vector", i)
		}
	}
	if got := transport.callCount(); got != 1 {
		t.Errorf("expected one transport call for a full batch, got %d", got)
	}
}

func TestBatcherFlushesOnWindowExpiry(t *testing.T) {
	transport := &fakeTransport{}
	b := NewBatcher(transport, 32, 5*time.Millisecond)

	vec, err := b.EmbedQuery(context.Background(), "lonely query")
	if err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}
	if len(vec) == 0 {
		t.Error("expected a vector from a window flush")
	}
	if got := transport.callCount(); got != 1 {
		t.Fatalf("expected one transport call, got %d", got)
	}
	if got := len(transport.calls[0]); got != 1 {
		t.Errorf("expected a single-text batch, got %d texts", got)
	}
}

func TestBatcherFansOutTransportErrors(t *testing.T) {
	transport := &fakeTransport{fail: errors.New("embedding service down")}
	b := NewBatcher(transport, 2, time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.EmbedQuery(context.Background(), fmt.Sprintf("query-%d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Errorf("query %d: expected the transport error, got nil", i)
		}
	}
}

func TestBatcherRejectsShortResponses(t *testing.T) {
	transport := &fakeTransport{short: true}
	b := NewBatcher(transport, 2, time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.EmbedQuery(context.Background(), fmt.Sprintf("query-%d", i))
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly the overflow item to fail, got %d failures", failed)
	}
}

func TestBatcherHonorsCallerCancellation(t *testing.T) {
	transport := &fakeTransport{}
	b := NewBatcher(transport, 32, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.EmbedQuery(ctx, "abandoned query")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Shutdown still drains what the canceled caller left behind.
	b.Stop()
	if got := transport.callCount(); got != 1 {
		t.Errorf("expected Stop to flush the pending item, got %d calls", got)
	}
}

type countingEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func TestCachingEmbedderServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	cache, err := NewMemoryCache(10, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	ce := NewCachingEmbedder(inner, cache, time.Hour)

	ctx := context.Background()
	first, err := ce.EmbedQuery(ctx, "how do refunds work")
	if err != nil {
		t.Fatalf("first embed failed: %v", err)
	}
	second, err := ce.EmbedQuery(ctx, "how do refunds work")
	if err != nil {
		t.Fatalf("second embed failed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 inner call after repeat, got %d", inner.calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("cached vector differs from computed vector")
	}

	if _, err := ce.EmbedQuery(ctx, "a different question"); err != nil {
		t.Fatalf("third embed failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls for distinct texts, got %d", inner.calls)
	}
}

func TestCachingEmbedderDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("transient")}
	cache, err := NewMemoryCache(10, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	ce := NewCachingEmbedder(inner, cache, time.Hour)

	ctx := context.Background()
	if _, err := ce.EmbedQuery(ctx, "flaky query"); err == nil {
		t.Fatal("expected the inner error to surface")
	}

	inner.err = nil
	inner.vec = []float32{0.9}
	if _, err := ce.EmbedQuery(ctx, "flaky query"); err != nil {
		t.Fatalf("retry after failure should recompute: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected the failure to stay uncached, got %d calls", inner.calls)
	}
}

func TestMemoryCache(t *testing.T) {
	cache, err := NewMemoryCache(10, time.Second)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3}
	cache.Set("key1", vec, time.Second)

	retrieved, found := cache.Get("key1")
	if !found {
		t.Error("expected to find cached vector")
	}
	if len(retrieved) != len(vec) {
		t.Errorf("expected %d elements, got %d", len(vec), len(retrieved))
	}

	cache.Set("key2", vec, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, found := cache.Get("key2"); found {
		t.Error("expected expired entry to be dropped")
	}
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()

	cache.Set("key1", []float32{0.1}, time.Hour)
	if _, found := cache.Get("key1"); found {
		t.Error("noop cache should never report a hit")
	}
}
