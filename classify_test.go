package main

import (
	"math"
	"testing"
)

func defaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func TestCompareCostsThreeWaySplit(t *testing.T) {
	policy := defaultPolicy()

	tests := []struct {
		costA, costB float64
		want         Category
	}{
		{10.0, 7.0, CategorySwitch},  // 7 < 10*0.8
		{10.0, 7.99, CategorySwitch}, // just under the margin
		{10.0, 8.0, CategoryNeutral}, // exactly at the margin: dead zone
		{10.0, 9.5, CategoryNeutral}, // inside the dead zone
		{10.0, 10.0, CategoryNeutral},
		{10.0, 10.01, CategoryKeep},
		{5.0, 5.0, CategoryNeutral},
		{5.0, 20.0, CategoryKeep},
	}
	for _, tt := range tests {
		if got := policy.CompareCosts(tt.costA, tt.costB); got != tt.want {
			t.Errorf("CompareCosts(%f, %f) = %s, want %s", tt.costA, tt.costB, got, tt.want)
		}
	}
}

func TestCompareCostsInsufficientData(t *testing.T) {
	policy := defaultPolicy()
	for _, costA := range []float64{0, -1, math.NaN()} {
		if got := policy.CompareCosts(costA, 5); got != CategoryInsufficient {
			t.Errorf("CompareCosts(%f, 5) = %s, want INSUFFICIENT_DATA", costA, got)
		}
	}
	if got := policy.CompareCosts(10, math.NaN()); got != CategoryInsufficient {
		t.Errorf("CompareCosts(10, NaN) = %s, want INSUFFICIENT_DATA", got)
	}
}

func TestCompareCostsMonotonicInCostB(t *testing.T) {
	policy := defaultPolicy()
	const costA = 10.0

	rank := func(c Category) int {
		switch c {
		case CategorySwitch:
			return 0
		case CategoryNeutral:
			return 1
		case CategoryKeep:
			return 2
		}
		return -1
	}
	prev := -1
	for costB := 0.0; costB <= 20; costB += 0.25 {
		r := rank(policy.CompareCosts(costA, costB))
		if r < prev {
			t.Fatalf("classification not monotonic at costB=%f", costB)
		}
		prev = r
	}
}

func TestClassifyPricingRowsScenario(t *testing.T) {
	policy := defaultPolicy()
	rows := []Row{
		{"billing_project": "p1", "on_demand_cost": 10.0, "slot_cost": 7.0},
		{"billing_project": "p2", "on_demand_cost": 5.0, "slot_cost": 5.0},
	}
	out := policy.ClassifyPricingRows("pricing", rows, "billing_project", "on_demand_cost", "slot_cost")
	if len(out) != 2 {
		t.Fatalf("expected 2 classifications, got %d", len(out))
	}
	if out[0].Category != CategorySwitch {
		t.Errorf("row 1 = %s, want SWITCH", out[0].Category)
	}
	if out[1].Category != CategoryNeutral {
		t.Errorf("row 2 = %s, want NEUTRAL", out[1].Category)
	}
	if out[0].SubjectID != "p1" || out[1].SubjectID != "p2" {
		t.Errorf("subjects = %s, %s", out[0].SubjectID, out[1].SubjectID)
	}
}

func TestClassifyPricingRowsMissingCost(t *testing.T) {
	policy := defaultPolicy()
	rows := []Row{{"billing_project": "p1", "on_demand_cost": nil, "slot_cost": 5.0}}
	out := policy.ClassifyPricingRows("pricing", rows, "billing_project", "on_demand_cost", "slot_cost")
	if len(out) != 1 || out[0].Category != CategoryInsufficient {
		t.Fatalf("expected INSUFFICIENT_DATA, got %v", out)
	}
}

func TestClassifyThreshold(t *testing.T) {
	if c := ClassifyThreshold("contention", "p95", 1500, true, 1000); c.Category != CategoryAlert {
		t.Errorf("above cutoff = %s, want ALERT", c.Category)
	}
	if c := ClassifyThreshold("contention", "p95", 1000, true, 1000); c.Category != CategoryOK {
		t.Errorf("at cutoff = %s, want OK", c.Category)
	}
	if c := ClassifyThreshold("contention", "p95", 0, false, 1000); c.Category != CategoryInsufficient {
		t.Errorf("no data = %s, want INSUFFICIENT_DATA", c.Category)
	}
}

func TestPolicyDefaultsAndValidation(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.SwitchMargin != 0.8 || p.PendingThresholdMs != 1000 || p.UnlabeledCostPct != 20 || p.ScanRatioAlert != 10 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if err := p.validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := []Policy{
		{SwitchMargin: 1.5, PendingThresholdMs: 1000, UnlabeledCostPct: 20, ScanRatioAlert: 10},
		{SwitchMargin: 0.8, PendingThresholdMs: -1, UnlabeledCostPct: 20, ScanRatioAlert: 10},
		{SwitchMargin: 0.8, PendingThresholdMs: 1000, UnlabeledCostPct: 200, ScanRatioAlert: 10},
		{SwitchMargin: 0.8, PendingThresholdMs: 1000, UnlabeledCostPct: 20, ScanRatioAlert: -2},
	}
	for i, p := range bad {
		if err := p.validate(); err == nil {
			t.Errorf("policy %d should fail validation: %+v", i, p)
		}
	}

	// A tuned margin moves the switch boundary.
	tuned := Policy{SwitchMargin: 0.5, PendingThresholdMs: 1000, UnlabeledCostPct: 20, ScanRatioAlert: 10}
	if got := tuned.CompareCosts(10, 6); got != CategoryNeutral {
		t.Errorf("tuned margin: CompareCosts(10, 6) = %s, want NEUTRAL", got)
	}
	if got := tuned.CompareCosts(10, 4); got != CategorySwitch {
		t.Errorf("tuned margin: CompareCosts(10, 4) = %s, want SWITCH", got)
	}
}
