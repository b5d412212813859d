package enums

import "testing"

func TestCartStateTransitions(t *testing.T) {
	cases := []struct {
		from, to CartState
		want     bool
	}{
		{CartStateUninitialized, CartStateCreating, true},
		{CartStateUninitialized, CartStateReady, false},
		{CartStateCreating, CartStateReady, true},
		{CartStateCreating, CartStateUninitialized, true},
		{CartStateReady, CartStateReconciling, true},
		{CartStateReady, CartStateUninitialized, true},
		{CartStateReconciling, CartStateReady, true},
		{CartStateReconciling, CartStateUninitialized, false},
		{CartStateReady, CartStateReady, true},
		{CartState("bogus"), CartState("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestParseCartState(t *testing.T) {
	state, err := ParseCartState("ready")
	if err != nil || state != CartStateReady {
		t.Fatalf("unexpected parse result %q %v", state, err)
	}
	if _, err := ParseCartState("READY"); err == nil {
		t.Fatalf("expected error for unknown casing")
	}
	if !CartStateReconciling.HasCart() || CartStateCreating.HasCart() {
		t.Fatalf("unexpected HasCart result")
	}
}

func TestFinancialStatusFromLabel(t *testing.T) {
	cases := map[string]FinancialStatus{
		"Refunded":           FinancialStatusRefunded,
		" REFUNDED ":         FinancialStatusRefunded,
		"PARTIALLY_REFUNDED": FinancialStatusPartiallyRefunded,
		"partially refunded": FinancialStatusPartiallyRefunded,
		"paid":               FinancialStatusPaid,
		"":                   FinancialStatusUnknown,
		"chargeback":         FinancialStatusUnknown,
	}
	for label, want := range cases {
		if got := FinancialStatusFromLabel(label); got != want {
			t.Fatalf("label %q: expected %s, got %s", label, want, got)
		}
	}
}
