package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusStarted, StatusFinished, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusStarted}:  true,
		{StatusStarted, StatusFinished}: true,
		{StatusStarted, StatusFailed}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			if got, want := CanTransition(from, to), allowed[[2]Status{from, to}]; got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStartFinishThenPoll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, 7, TypeScrape)
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}
	if _, err := Start(ctx, s, created.ID); err != nil {
		t.Fatal(err)
	}
	result := map[string]string{"url": "https://x", "summary": "s"}
	if _, err := Finish(ctx, s, created.ID, result); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, created.ID, 7, TypeScrape)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
	var decoded map[string]string
	if err := json.Unmarshal(got.Result, &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(result, decoded); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk, _ := s.Create(ctx, 1, TypeScan)

	if _, err := Finish(ctx, s, tk.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> finished: err = %v, want ErrInvalidTransition", err)
	}
	_, _ = Start(ctx, s, tk.ID)
	if _, err := Fail(ctx, s, tk.ID, errors.New("mailbox auth expired")); err != nil {
		t.Fatal(err)
	}
	for _, to := range []Status{StatusPending, StatusStarted, StatusFinished, StatusFailed} {
		if _, err := s.Update(ctx, tk.ID, to, nil, ""); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("failed -> %s: err = %v, want ErrInvalidTransition", to, err)
		}
	}
	got, _ := s.Get(ctx, tk.ID, 1, TypeScan)
	if got.Error != "mailbox auth expired" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestGetScopesByUserAndType(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk, _ := s.Create(ctx, 1, TypeScan)

	tests := []struct {
		name   string
		id     string
		userID int
		typ    Type
	}{
		{"unknown id", "nope", 1, TypeScan},
		{"foreign user", tk.ID, 2, TypeScan},
		{"wrong type", tk.ID, 1, TypeScrape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Get(ctx, tt.id, tt.userID, tt.typ); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestProgressCountersAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tk, _ := s.Create(ctx, 1, TypeScan)
	_, _ = Start(ctx, s, tk.ID)
	if err := s.SetTotal(ctx, tk.ID, 2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_ = s.IncrementProcessed(ctx, tk.ID)
	}
	got, _ := s.Get(ctx, tk.ID, 1, TypeScan)
	if got.ProcessedCount != 2 || got.TotalCount != 2 {
		t.Errorf("progress = %d/%d, want 2/2", got.ProcessedCount, got.TotalCount)
	}
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune(context.Context) (int64, error) {
	p.calls++
	return 3, nil
}

func TestReaperFailsStaleStartedTasks(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return clock })

	stale, _ := s.Create(ctx, 1, TypeScan)
	_, _ = Start(ctx, s, stale.ID)
	pending, _ := s.Create(ctx, 1, TypeScan)

	clock = clock.Add(20 * time.Minute)
	fresh, _ := s.Create(ctx, 1, TypeScan)
	_, _ = Start(ctx, s, fresh.ID)

	clock = clock.Add(15 * time.Minute)
	pruner := &countingPruner{}
	r := NewReaper(s, pruner, time.Minute, 30*time.Minute, zap.NewNop())
	r.now = func() time.Time { return clock }
	r.RunOnce(ctx)

	got, _ := s.Get(ctx, stale.ID, 1, TypeScan)
	if got.Status != StatusFailed || !strings.HasPrefix(got.Error, "task abandoned: no progress since 2026-01-01T12:00:00Z") {
		t.Errorf("stale task = %s %q", got.Status, got.Error)
	}
	if got, _ := s.Get(ctx, fresh.ID, 1, TypeScan); got.Status != StatusStarted {
		t.Errorf("fresh task status = %s, want started", got.Status)
	}
	if got, _ := s.Get(ctx, pending.ID, 1, TypeScan); got.Status != StatusPending {
		t.Errorf("pending task status = %s, want pending", got.Status)
	}
	if pruner.calls != 1 {
		t.Errorf("prune calls = %d, want 1", pruner.calls)
	}
}
