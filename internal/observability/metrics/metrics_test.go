package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserversCountOutcomes(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(extractionRules.WithLabelValues("totals", ruleHit))
	RuleObserver{}.ObserveRule("totals", true)
	if got := testutil.ToFloat64(extractionRules.WithLabelValues("totals", ruleHit)); got != before+1 {
		t.Fatalf("expected hit counter to grow, got %v", got)
	}

	before = testutil.ToFloat64(optimizationRuns.WithLabelValues("verde", ResultSuccess))
	RunObserver{}.ObserveRun("verde", "ok", time.Millisecond)
	if got := testutil.ToFloat64(optimizationRuns.WithLabelValues("verde", ResultSuccess)); got != before+1 {
		t.Fatalf("expected success run, got %v", got)
	}

	IncBillingFailure("")
	if got := testutil.ToFloat64(billingFailures.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected unknown reason counted, got %v", got)
	}
}
