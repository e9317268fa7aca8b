package xsemaphore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coordkit/coordkit/pkg/resilience/xretry"
	"github.com/coordkit/coordkit/pkg/xnamespace"
)

func newTestProvider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(NewMemoryAdapter(), xnamespace.MustNew("test.sem", "."), opts...)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func TestAdmissionUpToLimit(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	s1, err := p.TryAcquire(ctx, "k", "s1", 2, time.Minute)
	if err != nil || s1 == nil {
		t.Fatalf("s1 acquire failed: %v %v", s1, err)
	}
	s2, err := p.TryAcquire(ctx, "k", "s2", 2, time.Minute)
	if err != nil || s2 == nil {
		t.Fatalf("s2 acquire failed: %v %v", s2, err)
	}
	s3, err := p.TryAcquire(ctx, "k", "s3", 2, time.Minute)
	if err != nil {
		t.Fatalf("s3 acquire errored: %v", err)
	}
	if s3 != nil {
		t.Fatal("s3 should be denied while both slots are held")
	}

	if err := s1.Release(ctx); err != nil {
		t.Fatalf("s1 release failed: %v", err)
	}

	s3, err = p.TryAcquire(ctx, "k", "s3", 2, time.Minute)
	if err != nil || s3 == nil {
		t.Fatalf("s3 should get the freed slot, got %v %v", s3, err)
	}
}

func TestSameSlotIDAcquireIsIdempotent(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h1, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || h1 == nil {
		t.Fatalf("acquire failed: %v %v", h1, err)
	}

	// the single slot is taken, but the same slotID re-enters freely
	h2, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || h2 == nil {
		t.Fatalf("same-slot re-acquire should succeed, got %v %v", h2, err)
	}

	st, err := p.Inspect(ctx, "k")
	if err != nil || st.Live() != 1 {
		t.Fatalf("expected one live slot, got %+v err=%v", st, err)
	}
}

func TestLimitBindsOnFirstAcquire(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if h, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute); err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}

	// a larger limit on a later acquire is ignored: the stored limit wins
	h, err := p.TryAcquire(ctx, "k", "s2", 5, time.Minute)
	if err != nil {
		t.Fatalf("acquire errored: %v", err)
	}
	if h != nil {
		t.Fatal("stored limit of 1 should deny s2 despite the caller's 5")
	}

	st, err := p.Inspect(ctx, "k")
	if err != nil || st.Limit != 1 {
		t.Fatalf("expected stored limit 1, got %+v err=%v", st, err)
	}
}

func TestEmptiedKeyReestablishesLimit(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// the record was reclaimed with its limit; a new limit may bind
	if h, err = p.TryAcquire(ctx, "k", "s1", 2, time.Minute); err != nil || h == nil {
		t.Fatalf("re-acquire failed: %v %v", h, err)
	}
	if h2, err := p.TryAcquire(ctx, "k", "s2", 2, time.Minute); err != nil || h2 == nil {
		t.Fatalf("second slot under the new limit should fit, got %v %v", h2, err)
	}
}

func TestTTLReclamation(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if h, err := p.TryAcquire(ctx, "k", "s1", 1, 10*time.Millisecond); err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}

	time.Sleep(20 * time.Millisecond)

	h, err := p.TryAcquire(ctx, "k", "s2", 1, time.Minute)
	if err != nil || h == nil {
		t.Fatalf("expected the expired slot to be reclaimed, got %v %v", h, err)
	}
}

func TestRefreshGating(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "k", "s1", 1, 20*time.Millisecond)
	if err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}
	if err := h.Refresh(ctx); err != nil {
		t.Fatalf("refresh of a live slot should succeed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := h.Refresh(ctx); !errors.Is(err, ErrSlotNotHeld) {
		t.Fatalf("refresh of an expired slot should fail, got %v", err)
	}

	// an unexpiring slot refuses refresh: tightening only
	forever, err := p.TryAcquire(ctx, "k2", "s1", 1, -1)
	if err != nil || forever == nil {
		t.Fatalf("unexpiring acquire failed: %v %v", forever, err)
	}
	if err := forever.Refresh(ctx); !errors.Is(err, ErrSlotNotHeld) {
		t.Fatalf("refresh of an unexpiring slot should fail, got %v", err)
	}
}

func TestUnexpiringSlotSurvives(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "k", "s1", 2, -1)
	if err != nil || h == nil {
		t.Fatalf("unexpiring acquire failed: %v %v", h, err)
	}
	if _, err := p.TryAcquire(ctx, "k", "s2", 2, 10*time.Millisecond); err != nil {
		t.Fatalf("expiring acquire failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	st, err := p.Inspect(ctx, "k")
	if err != nil || st.Live() != 1 || st.Slots[0].SlotID != "s1" {
		t.Fatalf("only the unexpiring slot should survive, got %+v err=%v", st, err)
	}
	if !st.Slots[0].ExpiresAt.IsZero() {
		t.Fatalf("unexpiring slot should report a zero expiry, got %v", st.Slots[0].ExpiresAt)
	}
}

func TestReleaseByWrongSlotIDFails(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}

	impostor := &Handle{provider: p, key: "k", prefixed: h.prefixed, slotID: "s2", limit: 1, ttl: time.Minute}
	if err := impostor.Release(ctx); !errors.Is(err, ErrSlotNotHeld) {
		t.Fatalf("expected ErrSlotNotHeld for wrong-slot release, got %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("legitimate release should succeed: %v", err)
	}
}

func TestForceReleaseAllClearsSlotsAndLimit(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	h1, err := p.TryAcquire(ctx, "k", "s1", 2, time.Hour)
	if err != nil || h1 == nil {
		t.Fatalf("acquire failed: %v %v", h1, err)
	}
	if _, err := p.TryAcquire(ctx, "k", "s2", 2, time.Hour); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := p.ForceReleaseAll(ctx, "k"); err != nil {
		t.Fatalf("force release failed: %v", err)
	}

	st, err := p.Inspect(ctx, "k")
	if err != nil || st.Live() != 0 || st.Limit != 0 {
		t.Fatalf("expected an empty record, got %+v err=%v", st, err)
	}
	if err := h1.Release(ctx); !errors.Is(err, ErrSlotNotHeld) {
		t.Fatalf("orphaned handle release should fail, got %v", err)
	}

	// the cleared key accepts a fresh limit
	if h, err := p.TryAcquire(ctx, "k", "s9", 3, time.Minute); err != nil || h == nil {
		t.Fatalf("acquire after force release failed: %v %v", h, err)
	}
}

func TestAcquireOrFailReturnsErrSemaphoreFull(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.AcquireOrFail(ctx, "k", "s1", 1, time.Minute); err != nil {
		t.Fatalf("first AcquireOrFail should succeed: %v", err)
	}
	if _, err := p.AcquireOrFail(ctx, "k", "s2", 1, time.Minute); !errors.Is(err, ErrSemaphoreFull) {
		t.Fatalf("expected ErrSemaphoreFull, got %v", err)
	}
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	p := newTestProvider(t, WithBlockingRetryer(xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewAlwaysRetry()),
		xretry.WithBackoffPolicy(xretry.NewFixedBackoff(5*time.Millisecond)),
	)))
	ctx := context.Background()

	holder, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || holder == nil {
		t.Fatalf("initial acquire failed: %v %v", holder, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		if err := holder.Release(context.Background()); err != nil {
			t.Errorf("release failed: %v", err)
		}
	}()

	acquireCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	h, err := p.Acquire(acquireCtx, "k", "s2", 1, time.Minute)
	<-done
	if err != nil || h == nil {
		t.Fatalf("blocking acquire should eventually succeed, got %v %v", h, err)
	}
}

func TestValidation(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.TryAcquire(ctx, "", "s1", 1, time.Minute); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := p.TryAcquire(ctx, "k", "", 1, time.Minute); !errors.Is(err, ErrEmptySlotID) {
		t.Fatalf("expected ErrEmptySlotID, got %v", err)
	}
}

type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) Publish(_ context.Context, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func TestEventTaxonomy(t *testing.T) {
	bus := &recordingBus{}
	p := newTestProvider(t, WithEventPublisher(bus))
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "k", "s1", 1, time.Minute)
	if err != nil || h == nil {
		t.Fatalf("acquire failed: %v %v", h, err)
	}
	if _, err := p.TryAcquire(ctx, "k", "s2", 1, time.Minute); err != nil {
		t.Fatalf("full acquire errored: %v", err)
	}
	if err := h.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := h.Release(ctx); !errors.Is(err, ErrSlotNotHeld) {
		t.Fatalf("double release should report ErrSlotNotHeld, got %v", err)
	}
	if err := p.ForceReleaseAll(ctx, "k"); err != nil {
		t.Fatalf("force release failed: %v", err)
	}

	want := []string{
		EventKeyAcquired,
		EventKeyAlreadyAcquired,
		EventKeyRefreshed,
		EventKeyReleased,
		EventUnownedRelease,
		EventKeyForceReleased,
	}
	got := bus.seen()
	if len(got) != len(want) {
		t.Fatalf("event sequence mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestConcurrentAcquiresNeverOverAdmit(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	const limit = 3
	const contenders = 16

	var wg sync.WaitGroup
	results := make(chan *Handle, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := p.TryAcquire(ctx, "k", slotName(n), limit, time.Minute)
			if err != nil {
				t.Errorf("acquire errored: %v", err)
				return
			}
			results <- h
		}(i)
	}
	wg.Wait()
	close(results)

	var won int
	for h := range results {
		if h != nil {
			won++
		}
	}
	if won != limit {
		t.Fatalf("expected exactly %d admissions, got %d", limit, won)
	}

	st, err := p.Inspect(ctx, "k")
	if err != nil || st.Live() != limit {
		t.Fatalf("expected %d live slots, got %+v err=%v", limit, st, err)
	}
}

func slotName(n int) string {
	return "slot-" + string(rune('a'+n))
}
