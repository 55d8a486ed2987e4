package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/wavescope/internal/sink"
)

// ErrSinkNotRegistered is returned by [Registry.CreateSink] when no factory
// has been registered under the requested sink name.
var ErrSinkNotRegistered = errors.New("config: sink not registered")

// SinkFactory builds a sink from the output configuration.
type SinkFactory func(OutputConfig) (sink.Sink, error)

// Registry maps sink names to their factories. It is safe for concurrent
// use. Subsequent registrations under the same name overwrite the previous
// one.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]SinkFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]SinkFactory),
	}
}

// RegisterSink registers a sink factory under name.
func (r *Registry) RegisterSink(name string, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSink instantiates the sink registered under out.Sink.
// Returns [ErrSinkNotRegistered] if no factory carries that name.
func (r *Registry) CreateSink(out OutputConfig) (sink.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[out.Sink]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, out.Sink)
	}
	return factory(out)
}

// SinkNames returns the registered sink names in sorted order.
func (r *Registry) SinkNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinRegistry returns a registry with the documented sinks registered:
// "file" writing under out.Dir and "discard".
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	r.RegisterSink("file", func(out OutputConfig) (sink.Sink, error) {
		return sink.NewFileSink(out.Dir), nil
	})
	r.RegisterSink("discard", func(OutputConfig) (sink.Sink, error) {
		return sink.DiscardSink{}, nil
	})
	return r
}
