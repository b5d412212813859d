package enums

import "fmt"

// CartState tracks the lifecycle of a device's cart engine.
type CartState string

const (
	CartStateUninitialized CartState = "uninitialized"
	CartStateCreating      CartState = "creating"
	CartStateReady         CartState = "ready"
	CartStateReconciling   CartState = "reconciling"
)

var validCartStates = []CartState{
	CartStateUninitialized,
	CartStateCreating,
	CartStateReady,
	CartStateReconciling,
}

var cartStateTransitions = map[CartState][]CartState{
	CartStateUninitialized: {CartStateCreating},
	CartStateCreating:      {CartStateReady, CartStateUninitialized},
	CartStateReady:         {CartStateReconciling, CartStateUninitialized},
	CartStateReconciling:   {CartStateReady},
}

// String implements fmt.Stringer.
func (c CartState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartState.
func (c CartState) IsValid() bool {
	for _, candidate := range validCartStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// HasCart reports whether a remote cart exists in this state.
func (c CartState) HasCart() bool {
	return c == CartStateReady || c == CartStateReconciling
}

// CanTransitionTo reports whether moving from c to next is a legal edge.
// Staying in the same state is always allowed.
func (c CartState) CanTransitionTo(next CartState) bool {
	if c == next {
		return c.IsValid()
	}
	for _, candidate := range cartStateTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCartState converts raw input into a CartState.
func ParseCartState(value string) (CartState, error) {
	for _, candidate := range validCartStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart state %q", value)
}
