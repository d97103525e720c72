// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// OpenOptions are passed to a registered Factory.
type OpenOptions struct {
	// Width and Height size the offscreen target, in pixels.
	Width, Height int
	// Logger receives backend diagnostics. Nil discards.
	Logger *slog.Logger
}

// Factory opens a Device. The returned close function releases it.
type Factory func(opts OpenOptions) (Device, func() error, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a device implementation available by name.
// It is typically called from init() in a backend package, following the
// database/sql driver pattern:
//
//	func init() {
//	    device.Register("native", open)
//	}
//
// Register panics if factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("device: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("device: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes a registered implementation. Unknown names are ignored.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Open opens the implementation registered under name.
func Open(name string, opts OpenOptions) (Device, func() error, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("device: unknown implementation %q (forgotten import?)", name)
	}
	return factory(opts)
}

// Names returns the registered implementation names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
