package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

const (
	defaultCallTimeout = 8 * time.Second
	minLineQuantity    = 1
)

// Remote is the subset of the cart functions client the engine drives.
type Remote interface {
	CreateCart(ctx context.Context) (string, error)
	FetchCart(ctx context.Context, cartID string) (*shopify.Cart, error)
	AddToCart(ctx context.Context, cartID, variantID string, quantity int) (*shopify.Cart, error)
	UpdateCart(ctx context.Context, cartID string, lines []shopify.LineUpdate) (*shopify.Cart, error)
	DeleteCartLine(ctx context.Context, cartID, lineID string) (*shopify.Cart, error)
	CreateCheckout(ctx context.Context, lines []shopify.CheckoutLine) (string, error)
}

// IDStore persists the remote cart identifier per device.
type IDStore interface {
	Load(ctx context.Context, deviceID string) (string, bool, error)
	Save(ctx context.Context, deviceID, cartID string) error
	Clear(ctx context.Context, deviceID string) error
}

// Recorder receives engine events for metrics.
type Recorder interface {
	ObserveRollback(operation string)
	ObserveSync(outcome string)
	SetActiveEngines(count int)
}

const (
	syncOutcomePushed  = "pushed"
	syncOutcomeSkipped = "skipped"
	syncOutcomeFailed  = "failed"
)

// edit is a shadow change not yet confirmed by the remote cart. Delta edits
// come from Increment/Decrement and have a caller waiting on the outcome.
// Set edits come from SetLocalQuantity and wait for the next sync; a
// successful fetch discards them.
//
// applied is what the delta actually moved the shadow by. It differs from
// delta when a replay onto fresh remote quantities hit the floor of 1.
type edit struct {
	gen     uint64
	lineID  string
	delta   int
	applied int
	set     bool
	value   int
}

// EngineParams configures a cart engine.
type EngineParams struct {
	DeviceID     string
	Remote       Remote
	Store        IDStore
	Logger       *logger.Logger
	Recorder     Recorder
	CallTimeout  time.Duration
	PushDebounce time.Duration
}

// Engine reconciles one device's local quantity shadow with its remote cart.
// Remote mutations are serialized by mutateMu. Reads and shadow edits only
// take mu, so they never wait on the network.
type Engine struct {
	deviceID    string
	remote      Remote
	store       IDStore
	logg        *logger.Logger
	recorder    Recorder
	callTimeout time.Duration
	debounce    time.Duration

	mutateMu sync.Mutex

	mu      sync.Mutex
	state   enums.CartState
	cartID  string
	cart    *shopify.Cart
	shadow  map[string]int
	stale   bool
	gen     uint64
	edits   []edit
	results map[uint64]pushResult
}

// pushResult is the outcome delivered to the caller that made a delta edit.
type pushResult struct {
	err error
}

// NewEngine builds an uninitialized engine for a device.
func NewEngine(params EngineParams) (*Engine, error) {
	if strings.TrimSpace(params.DeviceID) == "" {
		return nil, fmt.Errorf("device id required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote cart client required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("cart id store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	debounce := params.PushDebounce
	if debounce < 0 {
		debounce = 0
	}
	return &Engine{
		deviceID:    params.DeviceID,
		remote:      params.Remote,
		store:       params.Store,
		logg:        params.Logger,
		recorder:    params.Recorder,
		callTimeout: timeout,
		debounce:    debounce,
		state:       enums.CartStateUninitialized,
		shadow:      map[string]int{},
		results:     map[uint64]pushResult{},
	}, nil
}

// DeviceID returns the device the engine belongs to.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// State returns the current lifecycle state.
func (e *Engine) State() enums.CartState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Initialize loads the persisted cart or creates a new one. It is a no-op
// once a cart is ready.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.mu.Lock()
	if e.state.HasCart() {
		e.mu.Unlock()
		return nil
	}
	if err := e.setStateLocked(enums.CartStateCreating); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	cartID, cart, err := e.resolveCart(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = enums.CartStateUninitialized
		return err
	}
	e.cartID = cartID
	if err := e.setStateLocked(enums.CartStateReady); err != nil {
		return err
	}
	if cart == nil {
		e.cart = &shopify.Cart{ID: cartID}
		e.stale = true
		return nil
	}
	e.applyRemoteLocked(cart)
	return nil
}

func (e *Engine) resolveCart(ctx context.Context) (string, *shopify.Cart, error) {
	storedID, found, err := e.store.Load(ctx, e.deviceID)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load persisted cart id")
	}
	if found && storedID != "" {
		logCtx := e.logContext(ctx, storedID)
		cart, err := e.fetch(ctx, storedID)
		switch {
		case err == nil:
			return storedID, cart, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			e.logg.Warn(logCtx, "persisted cart no longer exists remotely; creating a new cart")
			if clearErr := e.store.Clear(ctx, e.deviceID); clearErr != nil {
				e.logg.Error(logCtx, "failed to clear stale cart id", clearErr)
			}
		default:
			e.logg.Error(logCtx, "initial cart fetch failed; serving stale cart", err)
			return storedID, nil, nil
		}
	}
	return e.createCart(ctx)
}

func (e *Engine) createCart(ctx context.Context) (string, *shopify.Cart, error) {
	callCtx, cancel := e.callContext(ctx)
	cartID, err := e.remote.CreateCart(callCtx)
	cancel()
	if err != nil {
		e.logg.Error(e.logContext(ctx, ""), "cart creation failed", err)
		return "", nil, err
	}
	logCtx := e.logContext(ctx, cartID)
	if err := e.store.Save(ctx, e.deviceID, cartID); err != nil {
		e.logg.Error(logCtx, "failed to persist cart id", err)
	}
	e.logg.Info(logCtx, "cart created")
	return cartID, &shopify.Cart{ID: cartID}, nil
}

// AddLine adds a variant to the remote cart and adopts the authoritative result.
func (e *Engine) AddLine(ctx context.Context, variantID string, quantity int) error {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if quantity < minLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	cartID, err := e.beginReconcile()
	if err != nil {
		return err
	}
	callCtx, cancel := e.callContext(ctx)
	cart, err := e.remote.AddToCart(callCtx, cartID, variantID, quantity)
	cancel()
	if err != nil {
		e.logg.Error(e.logContext(ctx, cartID), "add to cart failed", err)
		e.endReconcile(nil)
		return err
	}
	e.endReconcile(e.refetch(ctx, cartID, cart))
	return nil
}

// FetchDetails replaces the local cart with the remote one. On failure the
// last known good cart is kept and marked stale.
func (e *Engine) FetchDetails(ctx context.Context) error {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	cartID, err := e.beginReconcile()
	if err != nil {
		return err
	}
	cart, err := e.fetch(ctx, cartID)
	if err != nil {
		e.mu.Lock()
		e.stale = true
		e.mu.Unlock()
		e.endReconcile(nil)
		return err
	}
	e.endReconcile(cart)
	return nil
}

// SetLocalQuantity edits the shadow without touching the network. Zero
// clears the line locally; the change is pushed by the next sync.
func (e *Engine) SetLocalQuantity(lineID string, quantity int) error {
	if quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireCartLocked(); err != nil {
		return err
	}
	if _, ok := e.effectiveQuantityLocked(lineID); !ok {
		return lineNotFound(lineID)
	}
	e.gen++
	e.shadow[lineID] = quantity
	kept := e.edits[:0]
	for _, ed := range e.edits {
		if ed.set && ed.lineID == lineID {
			continue
		}
		kept = append(kept, ed)
	}
	e.edits = append(kept, edit{gen: e.gen, lineID: lineID, set: true, value: quantity})
	return nil
}

// Increment bumps a line by one and pushes the whole shadow. A failed push
// reverts the bump; running out of stock surfaces as CodeStockExhausted.
func (e *Engine) Increment(ctx context.Context, lineID string) error {
	return e.adjust(ctx, lineID, 1)
}

// Decrement lowers a line by one, never below 1. Removal goes through RemoveLine.
func (e *Engine) Decrement(ctx context.Context, lineID string) error {
	return e.adjust(ctx, lineID, -1)
}

func (e *Engine) adjust(ctx context.Context, lineID string, delta int) error {
	e.mu.Lock()
	if err := e.requireCartLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	current, ok := e.effectiveQuantityLocked(lineID)
	if !ok {
		e.mu.Unlock()
		return lineNotFound(lineID)
	}
	next := current + delta
	if next < minLineQuantity {
		e.mu.Unlock()
		return nil
	}
	e.gen++
	gen := e.gen
	e.shadow[lineID] = next
	e.edits = append(e.edits, edit{gen: gen, lineID: lineID, delta: delta, applied: delta})
	e.mu.Unlock()

	err := e.push(ctx, gen)
	if err == nil {
		return nil
	}
	if delta > 0 && pkgerrors.HasCode(err, pkgerrors.CodeStockExhausted) {
		return pkgerrors.Wrap(pkgerrors.CodeStockExhausted, err, "no more stock for this item").
			WithDetails(map[string]any{"line_id": lineID, "quantity": current})
	}
	return err
}

// push sends the full shadow unless a completed push already carried gen.
func (e *Engine) push(ctx context.Context, gen uint64) error {
	if err := e.waitDebounce(ctx); err != nil {
		return e.abandon(gen, err)
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.mu.Lock()
	if result, ok := e.takeResultLocked(gen); ok {
		e.mu.Unlock()
		return result.err
	}
	if err := e.requireCartLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	carried := e.gen
	cartID := e.cartID
	lines := e.pushLinesLocked()
	if err := e.setStateLocked(enums.CartStateReconciling); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	callCtx, cancel := e.callContext(ctx)
	cart, err := e.remote.UpdateCart(callCtx, cartID, lines)
	cancel()
	if err == nil {
		cart = e.refetch(ctx, cartID, cart)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		reverted := e.rollbackLocked(carried, err)
		e.state = enums.CartStateReady
		logCtx := e.logg.WithField(e.logContext(ctx, cartID), "reverted_edits", reverted)
		e.logg.Error(logCtx, "cart update failed; local quantities rolled back", err)
		e.observeRollback("update")
	} else {
		e.settleLocked(carried)
		e.applyRemoteLocked(cart)
		e.state = enums.CartStateReady
	}
	if result, ok := e.takeResultLocked(gen); ok {
		return result.err
	}
	return err
}

func (e *Engine) waitDebounce(ctx context.Context) error {
	if e.debounce <= 0 {
		return nil
	}
	timer := time.NewTimer(e.debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abandon reverts an edit whose caller gave up before it was pushed.
func (e *Engine) abandon(gen uint64, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if result, ok := e.takeResultLocked(gen); ok {
		return result.err
	}
	for i, ed := range e.edits {
		if ed.gen != gen {
			continue
		}
		if qty, ok := e.shadow[ed.lineID]; ok {
			e.shadow[ed.lineID] = qty - ed.applied
		}
		e.edits = append(e.edits[:i], e.edits[i+1:]...)
		break
	}
	return cause
}

// RemoveLine deletes a line remotely. A line the remote already dropped is
// treated as removed.
func (e *Engine) RemoveLine(ctx context.Context, lineID string) error {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id required")
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	cartID, err := e.beginReconcile()
	if err != nil {
		return err
	}
	logCtx := e.logg.WithLineID(e.logContext(ctx, cartID), lineID)

	callCtx, cancel := e.callContext(ctx)
	cart, err := e.remote.DeleteCartLine(callCtx, cartID, lineID)
	cancel()
	if err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			e.logg.Error(logCtx, "remove line failed", err)
			e.endReconcile(nil)
			return err
		}
		e.logg.Warn(logCtx, "line already removed remotely")
		cart = nil
	}

	e.mu.Lock()
	delete(e.shadow, lineID)
	e.dropEditsLocked(lineID)
	e.mu.Unlock()

	fetched, fetchErr := e.fetch(ctx, cartID)
	switch {
	case fetchErr == nil:
		cart = fetched
	case cart != nil:
		e.logg.Warn(logCtx, "re-fetch after remove failed; keeping delete response")
	default:
		e.logg.Error(logCtx, "re-fetch after remove failed", fetchErr)
		e.mu.Lock()
		e.dropLineLocked(lineID)
		e.stale = true
		e.mu.Unlock()
	}
	e.endReconcile(cart)
	return nil
}

// UpdateLines pushes explicit quantities for the given lines.
func (e *Engine) UpdateLines(ctx context.Context, lines []shopify.LineUpdate) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "line id required")
		}
		if line.Quantity < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative").
				WithDetails(map[string]any{"line_id": line.ID})
		}
		ids = append(ids, line.ID)
	}

	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	cartID, err := e.beginReconcile()
	if err != nil {
		return err
	}
	callCtx, cancel := e.callContext(ctx)
	cart, err := e.remote.UpdateCart(callCtx, cartID, lines)
	cancel()
	if err != nil {
		e.logg.Error(e.logContext(ctx, cartID), "update cart lines failed", err)
		e.endReconcile(nil)
		return err
	}
	cart = e.refetch(ctx, cartID, cart)

	e.mu.Lock()
	e.dropEditsLocked(ids...)
	e.mu.Unlock()
	e.endReconcile(cart)
	return nil
}

// SyncOnExit pushes every line whose shadow differs from the last fetched
// remote quantity. It reports whether a call was made.
func (e *Engine) SyncOnExit(ctx context.Context) (bool, error) {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()
	return e.syncHeld(ctx)
}

// syncHeld expects mutateMu to be held.
func (e *Engine) syncHeld(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if err := e.requireCartLocked(); err != nil {
		e.mu.Unlock()
		return false, err
	}
	diffs := e.diffLocked()
	cartID := e.cartID
	if len(diffs) == 0 {
		e.mu.Unlock()
		e.logg.Debug(e.logContext(ctx, cartID), "sync skipped; shadow matches remote")
		e.observeSync(syncOutcomeSkipped)
		return false, nil
	}
	carried := e.gen
	if err := e.setStateLocked(enums.CartStateReconciling); err != nil {
		e.mu.Unlock()
		return false, err
	}
	e.mu.Unlock()

	callCtx, cancel := e.callContext(ctx)
	cart, err := e.remote.UpdateCart(callCtx, cartID, diffs)
	cancel()
	if err != nil {
		e.logg.Error(e.logContext(ctx, cartID), "cart sync failed", err)
		e.observeSync(syncOutcomeFailed)
		e.endReconcile(nil)
		return false, err
	}
	cart = e.refetch(ctx, cartID, cart)

	e.mu.Lock()
	e.settleLocked(carried)
	e.applyRemoteLocked(cart)
	e.state = enums.CartStateReady
	e.mu.Unlock()

	logCtx := e.logg.WithField(e.logContext(ctx, cartID), "lines", len(diffs))
	e.logg.Info(logCtx, "cart synced")
	e.observeSync(syncOutcomePushed)
	return true, nil
}

// BeginCheckout syncs pending edits and requests a hosted checkout URL.
func (e *Engine) BeginCheckout(ctx context.Context) (string, error) {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	if _, err := e.syncHeld(ctx); err != nil {
		return "", err
	}

	e.mu.Lock()
	cartID := e.cartID
	var lines []shopify.CheckoutLine
	if e.cart != nil {
		for _, line := range e.cart.Lines {
			qty := e.effectiveLocked(line)
			if qty <= 0 {
				continue
			}
			lines = append(lines, shopify.CheckoutLine{VariantID: line.Merchandise.ID, Quantity: qty})
		}
	}
	e.mu.Unlock()

	if len(lines) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	callCtx, cancel := e.callContext(ctx)
	checkoutURL, err := e.remote.CreateCheckout(callCtx, lines)
	cancel()
	if err != nil {
		e.logg.Error(e.logContext(ctx, cartID), "checkout creation failed", err)
		return "", err
	}

	e.mu.Lock()
	if e.cart != nil {
		e.cart.CheckoutURL = checkoutURL
	}
	e.mu.Unlock()
	e.logg.Info(e.logContext(ctx, cartID), "checkout started")
	return checkoutURL, nil
}

// ResetAfterCheckout forgets the cart locally and in the store so the next
// Initialize creates a fresh one.
func (e *Engine) ResetAfterCheckout(ctx context.Context) error {
	e.mutateMu.Lock()
	defer e.mutateMu.Unlock()

	e.mu.Lock()
	cartID := e.cartID
	if e.state != enums.CartStateUninitialized {
		if err := e.setStateLocked(enums.CartStateUninitialized); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.cartID = ""
	e.cart = nil
	e.shadow = map[string]int{}
	e.stale = false
	for _, ed := range e.edits {
		if !ed.set {
			e.results[ed.gen] = pushResult{err: pkgerrors.New(pkgerrors.CodeCartUnavailable, "cart was reset")}
		}
	}
	e.edits = nil
	e.mu.Unlock()

	logCtx := e.logContext(ctx, cartID)
	if err := e.store.Clear(ctx, e.deviceID); err != nil {
		e.logg.Error(logCtx, "failed to clear persisted cart id", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear persisted cart id")
	}
	e.logg.Info(logCtx, "cart reset")
	return nil
}

// CompleteCheckout resets the cart when the hosted checkout reports success.
func (e *Engine) CompleteCheckout(ctx context.Context, checkoutURL string) (bool, error) {
	if !IsCheckoutComplete(checkoutURL) {
		return false, nil
	}
	if err := e.ResetAfterCheckout(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns a copy of the engine's read model.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	shadow := make(map[string]int, len(e.shadow))
	for id, qty := range e.shadow {
		shadow[id] = qty
	}
	return Snapshot{
		DeviceID:   e.deviceID,
		State:      e.state,
		CartID:     e.cartID,
		Cart:       e.cart.Clone(),
		Shadow:     shadow,
		LocalTotal: e.localTotalLocked(),
		Stale:      e.stale,
	}
}

func (e *Engine) localTotalLocked() decimal.Decimal {
	total := decimal.Zero
	if e.cart == nil {
		return total
	}
	for _, line := range e.cart.Lines {
		qty := e.effectiveLocked(line)
		if qty <= 0 {
			continue
		}
		total = total.Add(line.Merchandise.Price.Amount.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

func (e *Engine) effectiveLocked(line shopify.CartLine) int {
	if qty, ok := e.shadow[line.ID]; ok {
		return qty
	}
	return line.Quantity
}

func (e *Engine) effectiveQuantityLocked(lineID string) (int, bool) {
	if qty, ok := e.shadow[lineID]; ok {
		return qty, true
	}
	line, ok := e.cart.Line(lineID)
	if !ok {
		return 0, false
	}
	return line.Quantity, true
}

// pushLinesLocked lists every line at its effective quantity, in cart order.
func (e *Engine) pushLinesLocked() []shopify.LineUpdate {
	if e.cart == nil {
		return nil
	}
	lines := make([]shopify.LineUpdate, 0, len(e.cart.Lines))
	for _, line := range e.cart.Lines {
		lines = append(lines, shopify.LineUpdate{ID: line.ID, Quantity: e.effectiveLocked(line)})
	}
	return lines
}

func (e *Engine) diffLocked() []shopify.LineUpdate {
	if e.cart == nil {
		return nil
	}
	var diffs []shopify.LineUpdate
	for _, line := range e.cart.Lines {
		qty, ok := e.shadow[line.ID]
		if !ok || qty == line.Quantity {
			continue
		}
		diffs = append(diffs, shopify.LineUpdate{ID: line.ID, Quantity: qty})
	}
	return diffs
}

// applyRemoteLocked adopts cart wholesale and rebuilds the shadow from it.
// Pending set edits are discarded. Delta edits still queued for a push are
// replayed on top of the fresh quantities.
func (e *Engine) applyRemoteLocked(cart *shopify.Cart) {
	if cart == nil {
		return
	}
	e.cart = cart
	e.stale = false
	shadow := cart.Quantities()
	kept := e.edits[:0]
	for _, ed := range e.edits {
		if ed.set {
			continue
		}
		ed.applied = 0
		if qty, ok := shadow[ed.lineID]; ok {
			next := max(qty+ed.delta, minLineQuantity)
			ed.applied = next - qty
			shadow[ed.lineID] = next
		}
		kept = append(kept, ed)
	}
	e.edits = kept
	e.shadow = shadow
}

// settleLocked confirms every edit up to carried.
func (e *Engine) settleLocked(carried uint64) {
	kept := e.edits[:0]
	for _, ed := range e.edits {
		if ed.gen > carried {
			kept = append(kept, ed)
			continue
		}
		if !ed.set {
			e.results[ed.gen] = pushResult{}
		}
	}
	e.edits = kept
}

// rollbackLocked reverts the delta edits carried by a failed push by the
// amount each one moved the shadow. Set edits stay pending for the next sync.
func (e *Engine) rollbackLocked(carried uint64, cause error) int {
	reverted := 0
	kept := e.edits[:0]
	for _, ed := range e.edits {
		if ed.gen > carried || ed.set {
			kept = append(kept, ed)
			continue
		}
		if qty, ok := e.shadow[ed.lineID]; ok {
			e.shadow[ed.lineID] = qty - ed.applied
		}
		e.results[ed.gen] = pushResult{err: cause}
		reverted++
	}
	e.edits = kept
	return reverted
}

func (e *Engine) dropEditsLocked(lineIDs ...string) {
	drop := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = struct{}{}
	}
	kept := e.edits[:0]
	for _, ed := range e.edits {
		if _, ok := drop[ed.lineID]; !ok {
			kept = append(kept, ed)
			continue
		}
		if !ed.set {
			e.results[ed.gen] = pushResult{}
		}
	}
	e.edits = kept
}

func (e *Engine) dropLineLocked(lineID string) {
	if e.cart == nil {
		return
	}
	cart := e.cart.Clone()
	lines := cart.Lines[:0]
	for _, line := range cart.Lines {
		if line.ID != lineID {
			lines = append(lines, line)
		}
	}
	cart.Lines = lines
	e.cart = cart
}

func (e *Engine) takeResultLocked(gen uint64) (pushResult, bool) {
	result, ok := e.results[gen]
	if ok {
		delete(e.results, gen)
	}
	return result, ok
}

func (e *Engine) beginReconcile() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireCartLocked(); err != nil {
		return "", err
	}
	if err := e.setStateLocked(enums.CartStateReconciling); err != nil {
		return "", err
	}
	return e.cartID, nil
}

func (e *Engine) endReconcile(cart *shopify.Cart) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyRemoteLocked(cart)
	if e.state == enums.CartStateReconciling {
		e.state = enums.CartStateReady
	}
}

func (e *Engine) requireCartLocked() error {
	if !e.state.HasCart() || e.cartID == "" {
		return pkgerrors.New(pkgerrors.CodeCartUnavailable, "cart has not been initialized")
	}
	return nil
}

func (e *Engine) setStateLocked(next enums.CartState) error {
	if !e.state.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid cart state transition").
			WithDetails(map[string]any{"from": e.state.String(), "to": next.String()})
	}
	e.state = next
	return nil
}

func (e *Engine) fetch(ctx context.Context, cartID string) (*shopify.Cart, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.remote.FetchCart(callCtx, cartID)
}

// refetch prefers a fresh read but falls back to the mutation's own response.
func (e *Engine) refetch(ctx context.Context, cartID string, fallback *shopify.Cart) *shopify.Cart {
	cart, err := e.fetch(ctx, cartID)
	if err != nil {
		e.logg.Error(e.logContext(ctx, cartID), "re-fetch after mutation failed; keeping mutation response", err)
		return fallback
	}
	return cart
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

func (e *Engine) logContext(ctx context.Context, cartID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = e.logg.WithDeviceID(ctx, e.deviceID)
	if cartID != "" {
		ctx = e.logg.WithCartID(ctx, cartID)
	}
	return ctx
}

func (e *Engine) observeRollback(operation string) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveRollback(operation)
}

func (e *Engine) observeSync(outcome string) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveSync(outcome)
}

func lineNotFound(lineID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "line not in cart").
		WithDetails(map[string]any{"line_id": lineID})
}
