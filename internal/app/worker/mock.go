package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
)

// ─── Mock Collaborators (for testing and the demo daemon) ───────────────────
// The real evaluator/executor are external services. These stand-ins
// are deterministic: the evaluator matches on category keywords, the
// executor echoes a short summary after a simulated delay.

// MockEvaluator implements domain.CapabilityEvaluator.
type MockEvaluator struct {
	Categories []domain.Category // Claimable categories; empty means all
	Confidence int               // Reported confidence for a match
}

// NewMockEvaluator creates an evaluator confident in the given categories.
func NewMockEvaluator(confidence int, categories ...domain.Category) *MockEvaluator {
	return &MockEvaluator{Categories: categories, Confidence: confidence}
}

func (m *MockEvaluator) Evaluate(_ context.Context, job domain.Job) (domain.Evaluation, error) {
	if len(m.Categories) == 0 {
		return domain.Evaluation{CanDo: true, Confidence: m.Confidence, Reason: "generalist"}, nil
	}
	for _, c := range m.Categories {
		if job.Category == c {
			return domain.Evaluation{
				CanDo:      true,
				Confidence: m.Confidence,
				Reason:     fmt.Sprintf("matches category %s", c),
			}, nil
		}
	}
	return domain.Evaluation{CanDo: false, Reason: "outside capability set"}, nil
}

// MockExecutor implements domain.WorkExecutor.
type MockExecutor struct {
	Delay time.Duration // Simulated work time
	Fail  bool          // Always fail, for failure-path tests
}

func (m *MockExecutor) Execute(ctx context.Context, job domain.Job) (string, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Fail {
		return "", fmt.Errorf("mock executor configured to fail")
	}

	summary := job.Description
	if len(summary) > 40 {
		summary = summary[:40]
	}
	return fmt.Sprintf("result for job %d (%s): %s", job.ID, job.Category, strings.TrimSpace(summary)), nil
}
