package stagerunner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipline/internal/model"
	"clipline/internal/stagerunner"
)

func TestRunAllSucceedIsSuccess(t *testing.T) {
	items := []string{"1", "2", "3"}
	result, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		return item, nil
	}, model.Checkpoint{}, stagerunner.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != stagerunner.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", result.Status)
	}
	if len(result.Succeeded) != 3 {
		t.Fatalf("expected 3 successes, got %d", len(result.Succeeded))
	}
}

func TestRunPartialWhenAboveMinSuccessRate(t *testing.T) {
	items := make([]string, 100)
	for i := range items {
		items[i] = string(rune('a' + i%26))
	}
	failed := 0
	result, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		failed++
		if failed <= 7 {
			return nil, errors.New("boom")
		}
		return item, nil
	}, model.Checkpoint{}, stagerunner.Options{MinSuccessRate: 0.90})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != stagerunner.StatusPartial {
		t.Fatalf("expected PARTIAL with 93%% success, got %s", result.Status)
	}
	if len(result.Failed) != 7 {
		t.Fatalf("expected 7 failures, got %d", len(result.Failed))
	}
}

func TestRunFailedWhenBelowMinSuccessRate(t *testing.T) {
	items := []string{"1", "2", "3", "4", "5"}
	result, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		return nil, errors.New("boom")
	}, model.Checkpoint{}, stagerunner.Options{MinSuccessRate: 0.90})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != stagerunner.StatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
}

func TestRunSkipsCompletedItems(t *testing.T) {
	items := []string{"1", "2", "3"}
	checkpoint := model.Checkpoint{CompletedItems: []string{"1", "2"}}
	var processed []string
	_, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		processed = append(processed, item)
		return item, nil
	}, checkpoint, stagerunner.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(processed) != 1 || processed[0] != "3" {
		t.Fatalf("expected only item 3 to be processed, got %v", processed)
	}
}

func TestRunFromFullyCompletedCheckpointIsIdempotent(t *testing.T) {
	items := []string{"1", "2", "3"}
	checkpoint := model.Checkpoint{CompletedItems: []string{"1", "2", "3"}}
	calls := 0
	result, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		calls++
		return item, nil
	}, checkpoint, stagerunner.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no re-execution of completed items, got %d calls", calls)
	}
	if result.Status != stagerunner.StatusSuccess {
		t.Fatalf("expected SUCCESS for fully completed checkpoint, got %s", result.Status)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []string{"1", "2", "3", "4", "5"}
	var processed []string
	_, err := stagerunner.Run(ctx, items, func(ctx context.Context, item string) (any, error) {
		processed = append(processed, item)
		if item == "2" {
			cancel()
		}
		return item, nil
	}, model.Checkpoint{}, stagerunner.Options{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(processed) >= len(items) {
		t.Fatalf("expected cancellation to stop processing early, got %d of %d", len(processed), len(items))
	}
}

func TestRunCallsCheckpointHookPerItem(t *testing.T) {
	items := []string{"1", "2"}
	var hookCalls []string
	_, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		return item, nil
	}, model.Checkpoint{}, stagerunner.Options{
		OnItemDone: func(item string, outcome stagerunner.ItemOutcome) error {
			hookCalls = append(hookCalls, item)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(hookCalls) != 2 {
		t.Fatalf("expected checkpoint hook called for each item, got %v", hookCalls)
	}
}

func TestRunThrottlesProgressCallbacks(t *testing.T) {
	items := make([]string, 20)
	for i := range items {
		items[i] = string(rune('a' + i))
	}
	calls := 0
	_, err := stagerunner.Run(context.Background(), items, func(ctx context.Context, item string) (any, error) {
		time.Sleep(time.Millisecond)
		return item, nil
	}, model.Checkpoint{}, stagerunner.Options{
		OnProgress: func(progress float64, item string) { calls++ },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One initial forced emit, one forced emit after the last item, and a
	// handful of throttled emits in between at most -- never one per item.
	if calls > len(items)*2+2 {
		t.Fatalf("expected throttled progress emission, got %d calls for %d items", calls, len(items))
	}
}
