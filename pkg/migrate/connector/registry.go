package connector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

// ErrUnsupportedEngine : no connector is registered for the engine name
var ErrUnsupportedEngine = errors.New("unsupported engine")

// Registry : engine name -> connector constructor
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Default : registry the engine packages register themselves into
var Default = NewRegistry()

// NewRegistry : empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register : adds an engine, names are unique
func (r *Registry) Register(engine string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[engine]; exists {
		return fmt.Errorf("engine %s already registered", engine)
	}
	r.factories[engine] = f
	return nil
}

// MustRegister : Register for init functions
func (r *Registry) MustRegister(engine string, f Factory) {
	if err := r.Register(engine, f); err != nil {
		panic(err)
	}
}

// Has : whether the engine has a connector
func (r *Registry) Has(engine string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[engine]
	return ok
}

// Engines : registered engine names, sorted
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.factories))
	for name := range r.factories {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// New : builds the connector for the endpoint's engine
func (r *Registry) New(ep config.Endpoint, opts Options) (Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[ep.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w : %q", ErrUnsupportedEngine, ep.Engine)
	}
	c, err := f(ep, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s connector : %w", ep.Engine, err)
	}
	return c, nil
}

// Register : adds an engine to the Default registry
func Register(engine string, f Factory) error {
	return Default.Register(engine, f)
}

// MustRegister : adds an engine to the Default registry or panics
func MustRegister(engine string, f Factory) {
	Default.MustRegister(engine, f)
}
