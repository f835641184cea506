package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
)

func TestMockEvaluator_CategoryMatching(t *testing.T) {
	e := NewMockEvaluator(80, domain.CatCode, domain.CatResearch)

	ev, err := e.Evaluate(context.Background(), domain.Job{Category: domain.CatCode})
	if err != nil || !ev.CanDo || ev.Confidence != 80 {
		t.Errorf("matching category: %+v, %v", ev, err)
	}

	ev, _ = e.Evaluate(context.Background(), domain.Job{Category: domain.CatWriting})
	if ev.CanDo {
		t.Error("non-matching category should not be claimable")
	}

	// No categories configured means generalist.
	g := NewMockEvaluator(70)
	ev, _ = g.Evaluate(context.Background(), domain.Job{Category: domain.CatWriting})
	if !ev.CanDo || ev.Confidence != 70 {
		t.Errorf("generalist: %+v", ev)
	}
}

func TestMockExecutor_HonorsCancellation(t *testing.T) {
	e := &MockExecutor{Delay: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, domain.Job{ID: 1})
	if err == nil {
		t.Fatal("cancelled execute should error")
	}
	if time.Since(start) > time.Second {
		t.Error("execute ignored the context deadline")
	}
}

func TestMockExecutor_Result(t *testing.T) {
	e := &MockExecutor{}
	result, err := e.Execute(context.Background(), domain.Job{
		ID: 7, Category: domain.CatCode,
		Description: strings.Repeat("long description ", 10),
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.HasPrefix(result, "result for job 7") {
		t.Errorf("result = %q", result)
	}
}
