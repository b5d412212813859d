package cart

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

// fakeRemote keeps server-side carts so fetches reflect earlier mutations.
type fakeRemote struct {
	mu          sync.Mutex
	nextIDs     []string
	carts       map[string]*shopify.Cart
	calls       map[string]int
	updates     [][]shopify.LineUpdate
	checkout    []shopify.CheckoutLine
	checkoutURL string

	createErr   error
	fetchErr    error
	updateErr   error
	deleteErr   error
	checkoutErr error

	updateEntered chan struct{}
	updateRelease chan struct{}
	fetchEntered  chan struct{}
	fetchRelease  chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		carts:       map[string]*shopify.Cart{},
		calls:       map[string]int{},
		checkoutURL: "https://shop.example.com/checkouts/c1",
	}
}

func (f *fakeRemote) seed(cart *shopify.Cart) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[cart.ID] = cart.Clone()
}

func (f *fakeRemote) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setQuantity(cartID, lineID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.carts[cartID].Lines {
		if f.carts[cartID].Lines[i].ID == lineID {
			f.carts[cartID].Lines[i].Quantity = quantity
		}
	}
}

func (f *fakeRemote) lastUpdate() []shopify.LineUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

func (f *fakeRemote) CreateCart(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["createCart"]++
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("cart_%d", f.calls["createCart"])
	if len(f.nextIDs) > 0 {
		id, f.nextIDs = f.nextIDs[0], f.nextIDs[1:]
	}
	f.carts[id] = &shopify.Cart{ID: id}
	return id, nil
}

func (f *fakeRemote) FetchCart(_ context.Context, cartID string) (*shopify.Cart, error) {
	f.mu.Lock()
	f.calls["getCart"]++
	entered, release := f.fetchEntered, f.fetchRelease
	f.fetchEntered, f.fetchRelease = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart.Clone(), nil
}

func (f *fakeRemote) AddToCart(_ context.Context, cartID, variantID string, quantity int) (*shopify.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["addToCart"]++
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	for i := range cart.Lines {
		if cart.Lines[i].Merchandise.ID == variantID {
			cart.Lines[i].Quantity += quantity
			return cart.Clone(), nil
		}
	}
	cart.Lines = append(cart.Lines, line("line-"+variantID, variantID, quantity, "10.00"))
	return cart.Clone(), nil
}

func (f *fakeRemote) UpdateCart(_ context.Context, cartID string, lines []shopify.LineUpdate) (*shopify.Cart, error) {
	f.mu.Lock()
	f.calls["updateCart"]++
	f.updates = append(f.updates, append([]shopify.LineUpdate(nil), lines...))
	entered, release := f.updateEntered, f.updateRelease
	f.updateEntered, f.updateRelease = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	for _, update := range lines {
		for i := range cart.Lines {
			if cart.Lines[i].ID == update.ID {
				cart.Lines[i].Quantity = update.Quantity
			}
		}
	}
	kept := cart.Lines[:0]
	for _, l := range cart.Lines {
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	cart.Lines = kept
	return cart.Clone(), nil
}

func (f *fakeRemote) DeleteCartLine(_ context.Context, cartID, lineID string) (*shopify.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["deleteCartLine"]++
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	for i, l := range cart.Lines {
		if l.ID == lineID {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			return cart.Clone(), nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "line not found")
}

func (f *fakeRemote) CreateCheckout(_ context.Context, lines []shopify.CheckoutLine) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["createCheckout"]++
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	f.checkout = append([]shopify.CheckoutLine(nil), lines...)
	return f.checkoutURL, nil
}

type memoryIDStore struct {
	mu       sync.Mutex
	ids      map[string]string
	loadErr  error
	clearErr error
}

func newMemoryIDStore() *memoryIDStore {
	return &memoryIDStore{ids: map[string]string{}}
}

func (s *memoryIDStore) Load(_ context.Context, deviceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", false, s.loadErr
	}
	id, ok := s.ids[deviceID]
	return id, ok, nil
}

func (s *memoryIDStore) Save(_ context.Context, deviceID, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[deviceID] = cartID
	return nil
}

func (s *memoryIDStore) Clear(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	delete(s.ids, deviceID)
	return nil
}

func (s *memoryIDStore) get(deviceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[deviceID]
	return id, ok
}

type countingRecorder struct {
	mu        sync.Mutex
	rollbacks int
	syncs     map[string]int
	engines   int
}

func (r *countingRecorder) ObserveRollback(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollbacks++
}

func (r *countingRecorder) ObserveSync(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.syncs == nil {
		r.syncs = map[string]int{}
	}
	r.syncs[outcome]++
}

func (r *countingRecorder) SetActiveEngines(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = count
}

func line(id, variantID string, quantity int, price string) shopify.CartLine {
	return shopify.CartLine{
		ID:       id,
		Quantity: quantity,
		Merchandise: shopify.Merchandise{
			ID:    variantID,
			Price: shopify.Money{Amount: decimal.RequireFromString(price), CurrencyCode: "USD"},
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type engineHarness struct {
	engine   *Engine
	remote   *fakeRemote
	store    *memoryIDStore
	recorder *countingRecorder
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	remote := newFakeRemote()
	store := newMemoryIDStore()
	recorder := &countingRecorder{}
	engine, err := NewEngine(EngineParams{
		DeviceID: "device-1",
		Remote:   remote,
		Store:    store,
		Logger:   testLogger(),
		Recorder: recorder,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &engineHarness{engine: engine, remote: remote, store: store, recorder: recorder}
}

// readyWith seeds a remote cart, persists its id and initializes the engine.
func (h *engineHarness) readyWith(t *testing.T, lines ...shopify.CartLine) {
	t.Helper()
	h.remote.seed(&shopify.Cart{ID: "cart_seed", Lines: lines})
	h.store.ids["device-1"] = "cart_seed"
	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !pkgerrors.HasCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
