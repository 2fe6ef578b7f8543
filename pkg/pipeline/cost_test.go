package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
)

func TestCostTrackerTotals(t *testing.T) {
	pricing := config.PricingConfig{
		"openai": {"gpt-4o-mini": {PromptPer1K: 0.15, CompletionPer1K: 0.60}},
	}
	tracker := newCostTracker(pricing, 0)

	usage := adapter.Usage{PromptTokens: 1000, CompletionTokens: 500}
	call := tracker.record(adapter.CallReport{Stage: "one", Adapter: "openai", Model: "gpt-4o-mini", Usage: usage})
	want := 0.15 + 0.30
	if math.Abs(call.Cost.Amount-want) > 1e-9 || !call.Cost.IsEstimate {
		t.Fatalf("unexpected cost: %+v", call.Cost)
	}
	tracker.record(adapter.CallReport{Stage: "two", Adapter: "openai", Model: "gpt-4o-mini", Usage: usage})
	tracker.record(adapter.CallReport{Stage: "three", Adapter: "openai", Model: "gpt-4o-mini", Usage: usage, Error: "boom"})

	report := tracker.report()
	if report.TotalUsage.PromptTokens != 2000 || report.TotalUsage.TotalTokens != 3000 {
		t.Fatalf("unexpected usage totals: %+v", report.TotalUsage)
	}
	if math.Abs(report.TotalAmount-want*2) > 1e-9 {
		t.Fatalf("expected total %.4f, got %.4f", want*2, report.TotalAmount)
	}
	if len(report.Calls) != 3 {
		t.Fatalf("failed calls should be kept, got %d", len(report.Calls))
	}
	if report.Budget != nil {
		t.Fatalf("no budget configured")
	}
}

func TestCostTrackerUnpricedModel(t *testing.T) {
	tracker := newCostTracker(nil, 1)
	call := tracker.record(adapter.CallReport{Adapter: "ollama", Model: "qwen2.5:7b-instruct", Usage: adapter.Usage{PromptTokens: 5000}})
	if call.Cost.Amount != 0 || call.Cost.IsEstimate {
		t.Fatalf("expected no estimate, got %+v", call.Cost)
	}
	if err := tracker.checkBudget("ollama", "qwen2.5:7b-instruct"); err != nil {
		t.Fatalf("unpriced usage cannot exceed budget: %v", err)
	}
}

func TestCostTrackerBudgetReached(t *testing.T) {
	pricing := config.PricingConfig{"mock": {"default": {PromptPer1K: 2}}}
	tracker := newCostTracker(pricing, 1)

	if err := tracker.checkBudget("mock", "mock-1"); err != nil {
		t.Fatalf("first stage should run: %v", err)
	}
	tracker.record(adapter.CallReport{Adapter: "mock", Model: "mock-1", Usage: adapter.Usage{PromptTokens: 500}})

	err := tracker.checkBudget("mock", "mock-1")
	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) || budgetErr.Projected {
		t.Fatalf("expected current-total budget error, got %v", err)
	}
	report := tracker.report()
	if report.Budget == nil || !report.Budget.Exceeded || report.Budget.Reason == "" {
		t.Fatalf("expected exceeded budget status, got %+v", report.Budget)
	}
}
