package cart

import (
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// ManagerParams configures the per-device engine manager.
type ManagerParams struct {
	Remote       Remote
	Store        IDStore
	Logger       *logger.Logger
	Recorder     Recorder
	CallTimeout  time.Duration
	PushDebounce time.Duration
}

type managedEngine struct {
	engine   *Engine
	refs     int
	lastUsed time.Time
}

// Manager owns one engine per device and evicts the idle ones.
type Manager struct {
	params ManagerParams
	now    func() time.Time

	mu      sync.Mutex
	engines map[string]*managedEngine
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote cart client required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("cart id store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Manager{
		params:  params,
		now:     time.Now,
		engines: map[string]*managedEngine{},
	}, nil
}

// Acquire returns the device's engine, creating it on first use. The engine
// is protected from eviction until release is called.
func (m *Manager) Acquire(deviceID string) (*Engine, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.engines[deviceID]
	if !ok {
		engine, err := NewEngine(EngineParams{
			DeviceID:     deviceID,
			Remote:       m.params.Remote,
			Store:        m.params.Store,
			Logger:       m.params.Logger,
			Recorder:     m.params.Recorder,
			CallTimeout:  m.params.CallTimeout,
			PushDebounce: m.params.PushDebounce,
		})
		if err != nil {
			return nil, nil, err
		}
		entry = &managedEngine{engine: engine}
		m.engines[deviceID] = entry
		m.reportLocked()
	}
	entry.refs++
	entry.lastUsed = m.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			entry.refs--
			entry.lastUsed = m.now()
		})
	}
	return entry.engine, release, nil
}

// Len reports how many engines are resident.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// Sweep evicts engines unused for longer than idle. Engines in use are kept.
// The cart id lives in the store, so an evicted device simply reloads it.
func (m *Manager) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	evicted := 0
	for deviceID, entry := range m.engines {
		if entry.refs > 0 || entry.lastUsed.After(cutoff) {
			continue
		}
		delete(m.engines, deviceID)
		evicted++
	}
	if evicted > 0 {
		m.reportLocked()
	}
	return evicted
}

func (m *Manager) reportLocked() {
	if m.params.Recorder == nil {
		return
	}
	m.params.Recorder.SetActiveEngines(len(m.engines))
}
