package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

func TestNewEngineValidatesParams(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(EngineParams{}); err == nil {
		t.Fatal("expected device id error")
	}
	if _, err := NewEngine(EngineParams{DeviceID: "d"}); err == nil {
		t.Fatal("expected remote error")
	}
	if _, err := NewEngine(EngineParams{DeviceID: "d", Remote: newFakeRemote()}); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewEngine(EngineParams{DeviceID: "d", Remote: newFakeRemote(), Store: newMemoryIDStore()}); err == nil {
		t.Fatal("expected logger error")
	}
}

func TestInitializeCreatesAndPersistsCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.remote.nextIDs = []string{"cart_123"}

	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if stored, ok := h.store.get("device-1"); !ok || stored != "cart_123" {
		t.Fatalf("expected persisted cart_123, got %q (found=%v)", stored, ok)
	}
	snap := h.engine.Snapshot()
	if snap.CartID != "cart_123" || snap.State != enums.CartStateReady {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got := h.remote.callCount("createCart"); got != 1 {
		t.Fatalf("initialize must be idempotent, createCart called %d times", got)
	}
}

func TestInitializeReusesPersistedCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "5.00"))

	if got := h.remote.callCount("createCart"); got != 0 {
		t.Fatalf("expected no cart creation, got %d", got)
	}
	snap := h.engine.Snapshot()
	if snap.CartID != "cart_seed" || snap.Shadow["L1"] != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.LocalTotal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected local total 10, got %s", snap.LocalTotal)
	}
}

func TestInitializeReplacesVanishedCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.store.ids["device-1"] = "cart_gone"
	h.remote.nextIDs = []string{"cart_new"}

	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if stored, _ := h.store.get("device-1"); stored != "cart_new" {
		t.Fatalf("expected new cart id persisted, got %q", stored)
	}
}

func TestInitializeKeepsPersistedIDWhenFetchFails(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.store.ids["device-1"] = "cart_seed"
	h.remote.fetchErr = pkgerrors.New(pkgerrors.CodeDependency, "upstream down")

	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.CartID != "cart_seed" || !snap.Stale {
		t.Fatalf("expected stale cart_seed, got %+v", snap)
	}
	if h.remote.callCount("createCart") != 0 {
		t.Fatal("must not create a cart when the persisted one is merely unreachable")
	}
}

func TestInitializeFailureLeavesEngineUninitialized(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.remote.createErr = pkgerrors.New(pkgerrors.CodeDependency, "boom")

	err := h.engine.Initialize(context.Background())
	requireCode(t, err, pkgerrors.CodeDependency)
	if h.engine.State() != enums.CartStateUninitialized {
		t.Fatalf("expected uninitialized, got %s", h.engine.State())
	}
}

func TestMutationsRequireCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	ctx := context.Background()

	requireCode(t, h.engine.AddLine(ctx, "V1", 1), pkgerrors.CodeCartUnavailable)
	requireCode(t, h.engine.Increment(ctx, "L1"), pkgerrors.CodeCartUnavailable)
	requireCode(t, h.engine.RemoveLine(ctx, "L1"), pkgerrors.CodeCartUnavailable)
	requireCode(t, h.engine.FetchDetails(ctx), pkgerrors.CodeCartUnavailable)
	_, err := h.engine.SyncOnExit(ctx)
	requireCode(t, err, pkgerrors.CodeCartUnavailable)
	_, err = h.engine.BeginCheckout(ctx)
	requireCode(t, err, pkgerrors.CodeCartUnavailable)

	for name, count := range h.remote.calls {
		if count != 0 {
			t.Fatalf("expected no network calls, %s called %d times", name, count)
		}
	}
}

func TestAddLineAdoptsRemoteCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t)

	if err := h.engine.AddLine(context.Background(), "V9", 2); err != nil {
		t.Fatalf("add line: %v", err)
	}
	snap := h.engine.Snapshot()
	if len(snap.Cart.Lines) != 1 || snap.Shadow["line-V9"] != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.State != enums.CartStateReady {
		t.Fatalf("expected ready state, got %s", snap.State)
	}
	requireCode(t, h.engine.AddLine(context.Background(), "", 1), pkgerrors.CodeValidation)
	requireCode(t, h.engine.AddLine(context.Background(), "V9", 0), pkgerrors.CodeValidation)
}

func TestIncrementStockRollback(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "10.00"))
	h.remote.updateErr = pkgerrors.New(pkgerrors.CodeStockExhausted, "MERCHANDISE_NOT_ENOUGH_STOCK")

	err := h.engine.Increment(context.Background(), "L1")
	requireCode(t, err, pkgerrors.CodeStockExhausted)

	update := h.remote.lastUpdate()
	if len(update) != 1 || update[0] != (shopify.LineUpdate{ID: "L1", Quantity: 3}) {
		t.Fatalf("expected update [{L1 3}], got %+v", update)
	}
	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 2 {
		t.Fatalf("expected shadow rolled back to 2, got %d", snap.Shadow["L1"])
	}
	if !snap.LocalTotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected local total 20 after rollback, got %s", snap.LocalTotal)
	}
	if h.recorder.rollbacks != 1 {
		t.Fatalf("expected one rollback recorded, got %d", h.recorder.rollbacks)
	}
}

func TestDecrementFailureRevertsAndPropagates(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 3, "1.00"))
	h.remote.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "timeout")

	err := h.engine.Decrement(context.Background(), "L1")
	requireCode(t, err, pkgerrors.CodeDependency)
	if pkgerrors.HasCode(err, pkgerrors.CodeStockExhausted) {
		t.Fatal("non-stock failures must not be reported as stock exhaustion")
	}
	if got := h.engine.Snapshot().Shadow["L1"]; got != 3 {
		t.Fatalf("expected shadow reverted to 3, got %d", got)
	}
}

func TestIncrementPushesWholeShadow(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 1, "2.00"), line("L2", "V2", 4, "3.00"))

	if err := h.engine.Increment(context.Background(), "L2"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	update := h.remote.lastUpdate()
	want := []shopify.LineUpdate{{ID: "L1", Quantity: 1}, {ID: "L2", Quantity: 5}}
	if len(update) != len(want) || update[0] != want[0] || update[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, update)
	}
	snap := h.engine.Snapshot()
	if snap.Shadow["L2"] != 5 || snap.Cart.Lines[1].Quantity != 5 {
		t.Fatalf("expected remote and shadow at 5, got %+v", snap)
	}
}

func TestDecrementFloorsAtOne(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 1, "2.00"))

	if err := h.engine.Decrement(context.Background(), "L1"); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := h.engine.Snapshot().Shadow["L1"]; got != 1 {
		t.Fatalf("expected quantity to stay at 1, got %d", got)
	}
	if h.remote.callCount("updateCart") != 0 {
		t.Fatal("decrement at the floor must not call the remote")
	}
}

func TestIncrementUnknownLine(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 1, "2.00"))

	requireCode(t, h.engine.Increment(context.Background(), "missing"), pkgerrors.CodeNotFound)
}

func TestConcurrentIncrementsCoalesce(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.updateEntered = entered
	h.remote.updateRelease = release

	ctx := context.Background()
	errs := make(chan error, 3)
	go func() { errs <- h.engine.Increment(ctx, "L1") }()
	<-entered

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.engine.Increment(ctx, "L1")
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.engine.Snapshot().Shadow["L1"] != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("edits never reached the shadow: %+v", h.engine.Snapshot().Shadow)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if got := h.remote.callCount("updateCart"); got != 2 {
		t.Fatalf("expected the queued increments to share one push, got %d pushes", got)
	}
	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 5 || snap.Cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected converged quantity 5, got %+v", snap)
	}
}

func TestLocalEditsDuringPushYieldToRefetch(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"), line("L2", "V2", 1, "1.00"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.updateEntered = entered
	h.remote.updateRelease = release

	done := make(chan error, 1)
	go func() { done <- h.engine.Increment(context.Background(), "L1") }()
	<-entered

	if err := h.engine.SetLocalQuantity("L2", 7); err != nil {
		t.Fatalf("set local quantity: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("increment: %v", err)
	}

	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 3 {
		t.Fatalf("expected L1 at 3, got %d", snap.Shadow["L1"])
	}
	if snap.Shadow["L2"] != 1 {
		t.Fatalf("expected L2 rebuilt from the remote cart, got %d", snap.Shadow["L2"])
	}
}

func TestIncrementQueuedDuringFetchIsReplayed(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.fetchEntered = entered
	h.remote.fetchRelease = release

	ctx := context.Background()
	fetched := make(chan error, 1)
	go func() { fetched <- h.engine.FetchDetails(ctx) }()
	<-entered

	incremented := make(chan error, 1)
	go func() { incremented <- h.engine.Increment(ctx, "L1") }()
	waitForShadow(t, h.engine, "L1", 3)
	close(release)

	if err := <-fetched; err != nil {
		t.Fatalf("fetch details: %v", err)
	}
	if err := <-incremented; err != nil {
		t.Fatalf("increment: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 3 || snap.Cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected the queued increment to land at 3, got %+v", snap)
	}
}

func TestFetchDetailsDiscardsLocalEdits(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))

	if err := h.engine.SetLocalQuantity("L1", 5); err != nil {
		t.Fatalf("set local quantity: %v", err)
	}
	if err := h.engine.FetchDetails(context.Background()); err != nil {
		t.Fatalf("fetch details: %v", err)
	}

	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 2 {
		t.Fatalf("expected shadow rebuilt to remote 2, got %d", snap.Shadow["L1"])
	}
	if !snap.LocalTotal.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected local total 2, got %s", snap.LocalTotal)
	}
	synced, err := h.engine.SyncOnExit(context.Background())
	if err != nil || synced {
		t.Fatalf("expected nothing left to sync, got synced=%v err=%v", synced, err)
	}
	if h.remote.callCount("updateCart") != 0 {
		t.Fatal("a discarded local edit must never reach the remote")
	}
}

func TestClampedDecrementRollsBackToRemote(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.fetchEntered = entered
	h.remote.fetchRelease = release

	ctx := context.Background()
	fetched := make(chan error, 1)
	go func() { fetched <- h.engine.FetchDetails(ctx) }()
	<-entered

	// Another session lowered the line while the fetch was on the wire.
	h.remote.setQuantity("cart_seed", "L1", 1)
	h.remote.mu.Lock()
	h.remote.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "timeout")
	h.remote.mu.Unlock()

	decremented := make(chan error, 1)
	go func() { decremented <- h.engine.Decrement(ctx, "L1") }()
	waitForShadow(t, h.engine, "L1", 1)
	close(release)

	if err := <-fetched; err != nil {
		t.Fatalf("fetch details: %v", err)
	}
	requireCode(t, <-decremented, pkgerrors.CodeDependency)

	snap := h.engine.Snapshot()
	if snap.Shadow["L1"] != 1 {
		t.Fatalf("expected rollback to stop at the remote quantity 1, got %d", snap.Shadow["L1"])
	}
	synced, err := h.engine.SyncOnExit(ctx)
	if err != nil || synced {
		t.Fatalf("expected shadow to match remote after rollback, got synced=%v err=%v", synced, err)
	}
	if got := h.remote.callCount("updateCart"); got != 1 {
		t.Fatalf("expected only the failed push, got %d updates", got)
	}
}

func TestMutationsThenSyncConvergeWithRemote(t *testing.T) {
	t.Parallel()

	steps := []struct {
		lineID string
		delta  int
	}{
		{"L1", 1}, {"L1", 1}, {"L1", -1}, {"L2", 1}, {"L2", -1}, {"L2", -1},
		{"L3", 1}, {"L1", -1}, {"L1", -1}, {"L3", 1}, {"L2", 1},
	}

	h := newEngineHarness(t)
	h.readyWith(t,
		line("L1", "V1", 2, "1.00"),
		line("L2", "V2", 1, "2.50"),
		line("L3", "V3", 4, "0.75"),
	)
	ctx := context.Background()
	for i, step := range steps {
		var err error
		if step.delta > 0 {
			err = h.engine.Increment(ctx, step.lineID)
		} else {
			err = h.engine.Decrement(ctx, step.lineID)
		}
		if err != nil {
			t.Fatalf("step %d (%s %+d): %v", i, step.lineID, step.delta, err)
		}
	}
	if _, err := h.engine.SyncOnExit(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := h.engine.FetchDetails(ctx); err != nil {
		t.Fatalf("fetch details: %v", err)
	}

	snap := h.engine.Snapshot()
	if len(snap.Shadow) != len(snap.Cart.Lines) {
		t.Fatalf("shadow %+v does not cover remote lines %+v", snap.Shadow, snap.Cart.Lines)
	}
	for _, l := range snap.Cart.Lines {
		if snap.Shadow[l.ID] != l.Quantity {
			t.Fatalf("line %s: shadow %d, remote %d", l.ID, snap.Shadow[l.ID], l.Quantity)
		}
	}
	want := map[string]int{"L1": 1, "L2": 2, "L3": 6}
	for id, qty := range want {
		if snap.Shadow[id] != qty {
			t.Fatalf("line %s: expected %d, got %d", id, qty, snap.Shadow[id])
		}
	}
	synced, err := h.engine.SyncOnExit(ctx)
	if err != nil || synced {
		t.Fatalf("expected a second sync to be a no-op, got synced=%v err=%v", synced, err)
	}
}

func waitForShadow(t *testing.T, engine *Engine, lineID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for engine.Snapshot().Shadow[lineID] != want {
		if time.Now().After(deadline) {
			t.Fatalf("shadow %s never reached %d: %+v", lineID, want, engine.Snapshot().Shadow)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSyncOnExitSkipsWhenNothingChanged(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))

	synced, err := h.engine.SyncOnExit(context.Background())
	if err != nil || synced {
		t.Fatalf("expected no-op sync, got synced=%v err=%v", synced, err)
	}
	if h.remote.callCount("updateCart") != 0 {
		t.Fatal("sync without differences must not call the remote")
	}
	if h.recorder.syncs[syncOutcomeSkipped] != 1 {
		t.Fatalf("expected skipped sync recorded, got %+v", h.recorder.syncs)
	}
}

func TestSyncOnExitPushesOnlyDifferences(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"), line("L2", "V2", 1, "1.00"))

	if err := h.engine.SetLocalQuantity("L2", 4); err != nil {
		t.Fatalf("set local quantity: %v", err)
	}
	synced, err := h.engine.SyncOnExit(context.Background())
	if err != nil || !synced {
		t.Fatalf("expected sync, got synced=%v err=%v", synced, err)
	}
	update := h.remote.lastUpdate()
	if len(update) != 1 || update[0] != (shopify.LineUpdate{ID: "L2", Quantity: 4}) {
		t.Fatalf("expected only L2 pushed, got %+v", update)
	}

	synced, err = h.engine.SyncOnExit(context.Background())
	if err != nil || synced {
		t.Fatalf("second sync should be a no-op, got synced=%v err=%v", synced, err)
	}
	if h.remote.callCount("updateCart") != 1 {
		t.Fatalf("expected exactly one update call, got %d", h.remote.callCount("updateCart"))
	}
}

func TestFetchFailureKeepsLastKnownGood(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	h.remote.fetchErr = errors.New("network down")

	if err := h.engine.FetchDetails(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	snap := h.engine.Snapshot()
	if !snap.Stale || snap.Cart == nil || len(snap.Cart.Lines) != 1 {
		t.Fatalf("expected stale last-known-good cart, got %+v", snap)
	}
	if snap.State != enums.CartStateReady {
		t.Fatalf("expected ready state after failed fetch, got %s", snap.State)
	}

	h.remote.mu.Lock()
	h.remote.fetchErr = nil
	h.remote.mu.Unlock()
	if err := h.engine.FetchDetails(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if h.engine.Snapshot().Stale {
		t.Fatal("successful fetch should clear the stale flag")
	}
}

func TestRefetchFailureKeepsMutationResponse(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	h.remote.fetchErr = errors.New("read replica lagging")

	if err := h.engine.Increment(context.Background(), "L1"); err != nil {
		t.Fatalf("increment should succeed when only the re-fetch fails: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.Cart.Lines[0].Quantity != 3 || snap.Shadow["L1"] != 3 {
		t.Fatalf("expected update response adopted, got %+v", snap)
	}
}

func TestRemoveLine(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"), line("L2", "V2", 1, "1.00"))

	if err := h.engine.RemoveLine(context.Background(), "L1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := h.engine.Snapshot()
	if _, ok := snap.Shadow["L1"]; ok || len(snap.Cart.Lines) != 1 {
		t.Fatalf("expected L1 removed, got %+v", snap)
	}

	if err := h.engine.RemoveLine(context.Background(), "L1"); err != nil {
		t.Fatalf("removing an already removed line should be tolerated: %v", err)
	}
	requireCode(t, h.engine.RemoveLine(context.Background(), " "), pkgerrors.CodeValidation)
}

func TestRemoveLinePropagatesOtherFailures(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"))
	h.remote.deleteErr = pkgerrors.New(pkgerrors.CodeDependency, "boom")

	requireCode(t, h.engine.RemoveLine(context.Background(), "L1"), pkgerrors.CodeDependency)
	if got := h.engine.Snapshot().Shadow["L1"]; got != 2 {
		t.Fatalf("failed removal must keep the line, got %d", got)
	}
}

func TestUpdateLines(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"), line("L2", "V2", 1, "1.00"))

	err := h.engine.UpdateLines(context.Background(), []shopify.LineUpdate{{ID: "L1", Quantity: 0}, {ID: "L2", Quantity: 6}})
	if err != nil {
		t.Fatalf("update lines: %v", err)
	}
	snap := h.engine.Snapshot()
	if len(snap.Cart.Lines) != 1 || snap.Shadow["L2"] != 6 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	requireCode(t, h.engine.UpdateLines(context.Background(), nil), pkgerrors.CodeValidation)
	requireCode(t, h.engine.UpdateLines(context.Background(), []shopify.LineUpdate{{ID: "L2", Quantity: -1}}), pkgerrors.CodeValidation)
}

func TestBeginCheckoutSyncsAndMapsVariants(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 2, "1.00"), line("L2", "V2", 1, "1.00"))
	if err := h.engine.SetLocalQuantity("L1", 3); err != nil {
		t.Fatalf("set local quantity: %v", err)
	}

	checkoutURL, err := h.engine.BeginCheckout(context.Background())
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	if checkoutURL != h.remote.checkoutURL {
		t.Fatalf("unexpected url %q", checkoutURL)
	}
	if h.remote.callCount("updateCart") != 1 {
		t.Fatal("pending edits should be synced before checkout")
	}
	want := []shopify.CheckoutLine{{VariantID: "V1", Quantity: 3}, {VariantID: "V2", Quantity: 1}}
	if len(h.remote.checkout) != 2 || h.remote.checkout[0] != want[0] || h.remote.checkout[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, h.remote.checkout)
	}
	if h.engine.Snapshot().Cart.CheckoutURL != checkoutURL {
		t.Fatal("checkout url should be recorded on the cart")
	}
}

func TestBeginCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t)

	_, err := h.engine.BeginCheckout(context.Background())
	requireCode(t, err, pkgerrors.CodeEmptyCart)
	if h.remote.callCount("createCheckout") != 0 {
		t.Fatal("empty cart must not request a checkout")
	}
}

func TestCompleteCheckoutResetsCart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 1, "1.00"))

	reset, err := h.engine.CompleteCheckout(context.Background(), "https://shop.example.com/checkouts/c1")
	if err != nil || reset {
		t.Fatalf("checkout page must not reset, got reset=%v err=%v", reset, err)
	}

	reset, err = h.engine.CompleteCheckout(context.Background(), "https://shop.example.com/123/checkouts/c1/thank_you")
	if err != nil || !reset {
		t.Fatalf("expected reset, got reset=%v err=%v", reset, err)
	}
	if _, ok := h.store.get("device-1"); ok {
		t.Fatal("persisted cart id should be cleared")
	}
	snap := h.engine.Snapshot()
	if snap.State != enums.CartStateUninitialized || snap.CartID != "" || snap.Cart != nil {
		t.Fatalf("expected cleared engine, got %+v", snap)
	}
	requireCode(t, h.engine.AddLine(context.Background(), "V1", 1), pkgerrors.CodeCartUnavailable)
}

func TestResetReportsStoreFailure(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.readyWith(t, line("L1", "V1", 1, "1.00"))
	h.store.clearErr = errors.New("redis down")

	requireCode(t, h.engine.ResetAfterCheckout(context.Background()), pkgerrors.CodeDependency)
	if h.engine.State() != enums.CartStateUninitialized {
		t.Fatal("local state should be cleared even when the store fails")
	}
}

func TestCallTimeoutBoundsRemoteCalls(t *testing.T) {
	t.Parallel()

	remote := &slowRemote{fakeRemote: newFakeRemote()}
	engine, err := NewEngine(EngineParams{
		DeviceID:    "device-1",
		Remote:      remote,
		Store:       newMemoryIDStore(),
		Logger:      testLogger(),
		CallTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	start := time.Now()
	err = engine.Initialize(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("call timeout was not applied")
	}
}

type slowRemote struct {
	*fakeRemote
}

func (s *slowRemote) CreateCart(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestIsCheckoutComplete(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://shop.example.com/1/checkouts/abc/thank_you":   true,
		"https://shop.example.com/1/checkouts/abc/thank-you":   true,
		"https://shop.example.com/1/orders/abc123":             true,
		"https://shop.example.com/1/checkouts/abc":             false,
		"https://shop.example.com/cart":                        false,
		"":                                                     false,
		"https://shop.example.com/pages/thank_you_for_reading": false,
	}
	for raw, want := range cases {
		if got := IsCheckoutComplete(raw); got != want {
			t.Fatalf("%q: expected %v, got %v", raw, want, got)
		}
	}
}
