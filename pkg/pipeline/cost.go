package pipeline

import (
	"fmt"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/evidence"
)

const pricingModel = "per_1k_tokens"

// BudgetExceededError stops a run before a stage whose projected cost
// would take the run over its budget.
type BudgetExceededError struct {
	MaxAmount float64
	Amount    float64
	Projected bool
}

func (e *BudgetExceededError) Error() string {
	if e.Projected {
		return fmt.Sprintf("budget %.4f exceeded (projected total %.4f)", e.MaxAmount, e.Amount)
	}
	return fmt.Sprintf("budget %.4f exceeded (current total %.4f)", e.MaxAmount, e.Amount)
}

type costTracker struct {
	pricing      config.PricingConfig
	currency     string
	totalUsage   adapter.Usage
	totalAmount  float64
	calls        []adapter.CallReport
	maxBudgetUSD float64
	budgetStatus *evidence.BudgetStatus
	// usage of the most recent successful stage, used to project the next
	lastUsage    *adapter.Usage
}

func newCostTracker(pricing config.PricingConfig, maxBudgetUSD float64) *costTracker {
	t := &costTracker{pricing: pricing, currency: "USD", maxBudgetUSD: maxBudgetUSD}
	if maxBudgetUSD > 0 {
		t.budgetStatus = &evidence.BudgetStatus{MaxAmount: maxBudgetUSD}
	}
	return t
}

// checkBudget is called before each stage.
func (t *costTracker) checkBudget(provider, model string) error {
	if t.maxBudgetUSD <= 0 {
		return nil
	}
	if t.totalAmount >= t.maxBudgetUSD {
		return t.exceeded(&BudgetExceededError{MaxAmount: t.maxBudgetUSD, Amount: t.totalAmount})
	}
	if t.lastUsage == nil {
		return nil
	}
	next, ok := t.estimate(provider, model, *t.lastUsage)
	if !ok {
		return nil
	}
	if projected := t.totalAmount + next.Amount; projected > t.maxBudgetUSD {
		return t.exceeded(&BudgetExceededError{MaxAmount: t.maxBudgetUSD, Amount: projected, Projected: true})
	}
	return nil
}

func (t *costTracker) exceeded(err *BudgetExceededError) error {
	t.budgetStatus.Exceeded = true
	t.budgetStatus.Reason = err.Error()
	return err
}

func (t *costTracker) estimate(provider, model string, usage adapter.Usage) (adapter.Cost, bool) {
	amount, ok := t.pricing.Estimate(provider, model, int64(usage.PromptTokens), int64(usage.CompletionTokens))
	if !ok {
		return adapter.Cost{Currency: t.currency}, false
	}
	return adapter.Cost{
		Currency:     t.currency,
		Amount:       amount,
		IsEstimate:   true,
		PricingModel: pricingModel,
	}, true
}

// record prices report, stores it and returns the priced copy. Failed calls
// are kept for the record but do not count toward totals.
func (t *costTracker) record(report adapter.CallReport) adapter.CallReport {
	report.Cost, _ = t.estimate(report.Adapter, report.Model, report.Usage)
	t.calls = append(t.calls, report)
	if report.Error != "" {
		return report
	}
	t.totalAmount += report.Cost.Amount
	t.totalUsage = t.totalUsage.Add(report.Usage)
	usage := report.Usage
	t.lastUsage = &usage
	return report
}

func (t *costTracker) report() *evidence.RunCostReport {
	calls := append([]adapter.CallReport(nil), t.calls...)
	var budget *evidence.BudgetStatus
	if t.budgetStatus != nil {
		b := *t.budgetStatus
		budget = &b
	}
	return &evidence.RunCostReport{
		Currency:    t.currency,
		TotalAmount: t.totalAmount,
		TotalUsage:  t.totalUsage,
		Calls:       calls,
		Budget:      budget,
	}
}
