package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func noop(ctx context.Context, s State) (Update, error) {
	return Update{}, nil
}

func TestNewGraphRejectsDuplicateNames(t *testing.T) {
	_, err := NewGraph(
		Node{Name: "a", Run: noop},
		Node{Name: "a", Run: noop},
	)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate node error, got %v", err)
	}
}

func TestNewGraphRejectsUnknownDependency(t *testing.T) {
	_, err := NewGraph(
		Node{Name: "a", Run: noop},
		Node{Name: "b", Needs: []string{"missing"}, Run: noop},
	)
	if err == nil || !strings.Contains(err.Error(), "unknown node") {
		t.Fatalf("expected unknown dependency error, got %v", err)
	}
}

func TestNewGraphRejectsCycle(t *testing.T) {
	_, err := NewGraph(
		Node{Name: "entry", Run: noop},
		Node{Name: "a", Needs: []string{"entry", "b"}, Run: noop},
		Node{Name: "b", Needs: []string{"a"}, Run: noop},
	)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestNewGraphRejectsNoEntry(t *testing.T) {
	_, err := NewGraph(
		Node{Name: "a", Needs: []string{"b"}, Run: noop},
		Node{Name: "b", Needs: []string{"a"}, Run: noop},
	)
	if err == nil || !strings.Contains(err.Error(), "entry") {
		t.Fatalf("expected no-entry error, got %v", err)
	}
}

// The join node must run exactly once, after both branches, regardless of
// which branch finishes first.
func TestRunJoinFiresExactlyOnce(t *testing.T) {
	for _, slowBranch := range []string{"fast_first", "slow_first"} {
		slowBranch := slowBranch
		t.Run(slowBranch, func(t *testing.T) {
			var joinRuns int32
			var mu sync.Mutex
			seen := map[string]bool{}

			mark := func(name string, delay time.Duration) StageFunc {
				return func(ctx context.Context, s State) (Update, error) {
					time.Sleep(delay)
					mu.Lock()
					seen[name] = true
					mu.Unlock()
					return Update{}, nil
				}
			}

			leftDelay, rightDelay := time.Duration(0), 20*time.Millisecond
			if slowBranch == "slow_first" {
				leftDelay, rightDelay = rightDelay, leftDelay
			}

			graph, err := NewGraph(
				Node{Name: "collect", Run: mark("collect", 0)},
				Node{Name: "left", Needs: []string{"collect"}, Run: mark("left", leftDelay)},
				Node{Name: "right", Needs: []string{"collect"}, Run: mark("right", rightDelay)},
				Node{Name: "join", Needs: []string{"left", "right"}, Run: func(ctx context.Context, s State) (Update, error) {
					atomic.AddInt32(&joinRuns, 1)
					mu.Lock()
					defer mu.Unlock()
					if !seen["left"] || !seen["right"] {
						t.Error("join ran before both branches completed")
					}
					return Update{}, nil
				}},
			)
			if err != nil {
				t.Fatalf("build graph: %v", err)
			}

			state := &State{Ticker: "TEST"}
			if err := graph.Run(context.Background(), state); err != nil {
				t.Fatalf("run graph: %v", err)
			}
			if got := atomic.LoadInt32(&joinRuns); got != 1 {
				t.Fatalf("join ran %d times, want 1", got)
			}
		})
	}
}

func TestRunMergesUpdatesInDependencyOrder(t *testing.T) {
	news := "headline"
	graph, err := NewGraph(
		Node{Name: "collect", Run: func(ctx context.Context, s State) (Update, error) {
			return Update{
				FinancialData: map[string]any{"market_cap": 1.0},
				NewsText:      &news,
			}, nil
		}},
		Node{Name: "analyze", Needs: []string{"collect"}, Run: func(ctx context.Context, s State) (Update, error) {
			if s.FinancialData == nil {
				t.Error("analyze saw no financial data")
			}
			if s.NewsText != news {
				t.Errorf("analyze saw news %q, want %q", s.NewsText, news)
			}
			return Update{FinancialAnalysis: &FinancialAnalysis{
				KeyMetrics:        s.FinancialData,
				RecentPerformance: "steady",
			}}, nil
		}},
	)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	state := &State{Ticker: "TEST"}
	if err := graph.Run(context.Background(), state); err != nil {
		t.Fatalf("run graph: %v", err)
	}
	if state.FinancialAnalysis == nil || state.FinancialAnalysis.RecentPerformance != "steady" {
		t.Fatalf("final state missing merged analysis: %+v", state)
	}
}

func TestRunStageErrorShortCircuits(t *testing.T) {
	stageErr := errors.New("provider down")
	var joinRan int32

	graph, err := NewGraph(
		Node{Name: "collect", Run: func(ctx context.Context, s State) (Update, error) {
			return Update{}, stageErr
		}},
		Node{Name: "join", Needs: []string{"collect"}, Run: func(ctx context.Context, s State) (Update, error) {
			atomic.AddInt32(&joinRan, 1)
			return Update{}, nil
		}},
	)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	state := &State{Ticker: "TEST"}
	runErr := graph.Run(context.Background(), state)
	if !errors.Is(runErr, stageErr) {
		t.Fatalf("expected wrapped stage error, got %v", runErr)
	}
	if !strings.Contains(runErr.Error(), "stage collect") {
		t.Fatalf("error should name the failing stage, got %v", runErr)
	}
	if atomic.LoadInt32(&joinRan) != 0 {
		t.Fatal("dependent stage ran after upstream failure")
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	graph, err := NewGraph(Node{Name: "collect", Run: noop})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	state := &State{Ticker: "TEST"}
	if err := graph.Run(ctx, state); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
