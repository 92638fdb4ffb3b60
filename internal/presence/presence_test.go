package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database/mock"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeRun, false},
		{"run", ScopeRun, false},
		{"day", ScopeDay, false},
		{"week", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScope(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTryMark_OncePerRun(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(ScopeRun, nil)

	ok, err := tr.TryMark(ctx, "S001", "2024-03-01")
	if err != nil || !ok {
		t.Fatalf("first TryMark() = %v, %v; want true, nil", ok, err)
	}

	for range 5 {
		ok, _ = tr.TryMark(ctx, "S001", "2024-03-01")
		if ok {
			t.Fatal("TryMark() accepted an identity twice")
		}
	}

	// A new calendar date does not reset the in-run set.
	ok, _ = tr.TryMark(ctx, "S001", "2024-03-02")
	if ok {
		t.Error("in-run set must not be evicted")
	}

	if tr.Count() != 1 {
		t.Errorf("expected 1 reported identity, got %d", tr.Count())
	}
}

func TestAlreadyReportedAndMark(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(ScopeRun, nil)

	if tr.AlreadyReported(ctx, "S002", "2024-03-01") {
		t.Fatal("empty tracker reported S002")
	}
	tr.MarkReported("S002")
	tr.MarkReported("S002")
	if !tr.AlreadyReported(ctx, "S002", "2024-03-01") {
		t.Error("expected S002 after MarkReported")
	}
	if tr.Count() != 1 {
		t.Errorf("MarkReported must be idempotent, count = %d", tr.Count())
	}
	if ids := tr.Reported(); len(ids) != 1 || ids[0] != "S002" {
		t.Errorf("Reported() = %v, want [S002]", ids)
	}
}

func TestDayScope_HistorySuppresses(t *testing.T) {
	ctx := context.Background()
	hist := mock.NewMockHistory()
	hist.Seed("S001", "2024-03-01")

	tr := NewTracker(ScopeDay, hist)

	ok, err := tr.TryMark(ctx, "S001", "2024-03-01")
	if err != nil {
		t.Fatalf("TryMark() error = %v", err)
	}
	if ok {
		t.Error("identity recorded earlier today must be suppressed")
	}

	ok, _ = tr.TryMark(ctx, "S002", "2024-03-01")
	if !ok {
		t.Error("identity without history must be accepted")
	}
}

func TestRunScope_IgnoresHistory(t *testing.T) {
	hist := mock.NewMockHistory()
	hist.Seed("S001", "2024-03-01")

	tr := NewTracker(ScopeRun, hist)
	ok, _ := tr.TryMark(context.Background(), "S001", "2024-03-01")
	if !ok {
		t.Error("run scope must not consult history")
	}
}

func TestDayScope_HistoryErrorFailsOpen(t *testing.T) {
	hist := mock.NewMockHistory()
	hist.HasError = errors.New("connection refused")

	tr := NewTracker(ScopeDay, hist)
	ok, err := tr.TryMark(context.Background(), "S001", "2024-03-01")
	if err != nil {
		t.Fatalf("TryMark() error = %v", err)
	}
	if !ok {
		t.Error("history outage must not silence attendance")
	}
}

func TestTryMark_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTracker(ScopeRun, nil)
	if _, err := tr.TryMark(ctx, "S001", "2024-03-01"); err == nil {
		t.Error("expected error for cancelled context")
	}
	if tr.Count() != 0 {
		t.Error("cancelled TryMark must not mark")
	}
}

func TestTryMark_Concurrent(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(ScopeRun, nil)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tr.TryMark(ctx, "S001", "2024-03-01"); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly one accepted TryMark, got %d", accepted.Load())
	}
}
