package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	seen   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 128)}
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestCommandsApplyInArrivalOrder(t *testing.T) {
	var b *Bus
	b = New(func(_ context.Context, cmd Command) {
		if s, ok := cmd.(Search); ok {
			b.Publish(WarningRaised{Message: s.Text})
		}
	})
	rec := newRecorder()
	defer b.Subscribe(rec.record)()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	want := []string{"a", "b", "c", "d", "e"}
	for _, text := range want {
		if err := b.Send(ctx, Search{Text: text}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	events := rec.wait(t, len(want))
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context canceled", err)
	}

	var got []string
	for i, ev := range events {
		if ev.Version() != uint64(i+1) {
			t.Fatalf("event %d version = %d, want %d", i, ev.Version(), i+1)
		}
		got = append(got, ev.(WarningRaised).Message)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishVersionsAreMonotonic(t *testing.T) {
	b := New(func(context.Context, Command) {})
	var (
		mu   sync.Mutex
		last uint64
		bad  bool
	)
	defer b.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Version() <= last {
			bad = true
		}
		last = ev.Version()
	})()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(SessionChanged{})
			}
		}()
	}
	wg.Wait()
	if bad {
		t.Fatal("subscriber observed a non-increasing version")
	}
	if got := b.Version(); got != 400 {
		t.Fatalf("version = %d, want 400", got)
	}
}

func TestSendAfterClose(t *testing.T) {
	b := New(func(context.Context, Command) {})
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	b.Close()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if err := b.Send(context.Background(), ClearFilters{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send = %v, want ErrClosed", err)
	}
	if err := b.Send(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil command")
	}
}

func TestSendRespectsContextWhenFull(t *testing.T) {
	b := New(func(context.Context, Command) {}, WithQueueSize(1))
	if err := b.Send(context.Background(), ClearFilters{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Send(ctx, ClearFilters{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send = %v, want deadline exceeded", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(func(context.Context, Command) {})
	count := 0
	unsubscribe := b.Subscribe(func(Event) { count++ })
	b.Publish(NavigationChanged{Target: TargetPlanner})
	unsubscribe()
	unsubscribe()
	b.Publish(NavigationChanged{Target: TargetFavorites})
	if count != 1 {
		t.Fatalf("deliveries = %d, want 1", count)
	}
}

func TestParseTarget(t *testing.T) {
	for _, target := range Targets() {
		got, err := ParseTarget(string(target))
		if err != nil || got != target {
			t.Fatalf("ParseTarget(%q) = %q, %v", target, got, err)
		}
	}
	_, err := ParseTarget("settings")
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidation {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidation)
	}
}
