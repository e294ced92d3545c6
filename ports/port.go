// Package ports implements the port registry (§4.7): named typed slots with
// readiness notification and single-writer-per-cycle discipline.
//
// A port is a write-once-per-cycle / read-many cell: at most one writer per
// cycle, readers are unbounded, and readiness is edge-triggered but
// idempotent — a late waiter still succeeds because the value is checked
// before waiting. A waiter that wakes while the value is still Empty gets
// fatal.ErrPortUnderflow.
//
// Documentation Last Review: 30.07.2026
package ports

import (
	"sync"

	"github.com/tomm2000/swirlc/fatal"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/xerrors"
)

// Port is a single named typed slot.
//
// - implements the read-many/write-once-per-cycle contract of §4.7.
type Port struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value wire.PortValue
}

func newPort() *Port {
	p := &Port{value: wire.Empty}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Registry is a Swirl's fixed set of named ports, constructed once with a
// static list of port names. Referencing an unknown port name is a
// programming error (fatal.ErrUnknownPort).
type Registry struct {
	ports map[string]*Port
}

// NewRegistry builds a Registry with one Empty port per name.
func NewRegistry(names []string) *Registry {
	r := &Registry{ports: make(map[string]*Port, len(names))}
	for _, name := range names {
		r.ports[name] = newPort()
	}
	return r
}

func (r *Registry) port(name string) (*Port, error) {
	p, found := r.ports[name]
	if !found {
		return nil, xerrors.Errorf("%w: %q", fatal.ErrUnknownPort, name)
	}
	return p, nil
}

// Init seeds an input port with value and notifies readiness. Used by the
// driver to seed the initial ports of a choreography.
func (r *Registry) Init(name string, value wire.PortValue) error {
	p, err := r.port(name)
	if err != nil {
		return err
	}
	p.setAndNotify(value)
	return nil
}

// Read returns the current value of name. It may observe Empty if called
// before readiness; callers should WaitForData first.
func (r *Registry) Read(name string) (wire.PortValue, error) {
	p, err := r.port(name)
	if err != nil {
		return wire.PortValue{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, nil
}

// WaitForData blocks until name holds a non-Empty value. If the value is
// still Empty once woken, that is a contract violation
// (fatal.ErrPortUnderflow).
func (r *Registry) WaitForData(name string) error {
	p, err := r.port(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.value.IsEmpty() {
		p.cond.Wait()
	}

	if p.value.IsEmpty() {
		return xerrors.Errorf("%w: port %q", fatal.ErrPortUnderflow, name)
	}

	return nil
}

// Clear resets name to Empty. Used internally by receive before it begins
// waiting for an incoming message.
func (r *Registry) Clear(name string) error {
	p, err := r.port(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.value = wire.Empty
	p.mu.Unlock()
	return nil
}

// SetAndNotify atomically writes value to name and wakes every waiter. Used
// by receive, exec, and init.
func (r *Registry) SetAndNotify(name string, value wire.PortValue) error {
	p, err := r.port(name)
	if err != nil {
		return err
	}
	p.setAndNotify(value)
	return nil
}

func (p *Port) setAndNotify(value wire.PortValue) {
	p.mu.Lock()
	p.value = value
	p.mu.Unlock()
	p.cond.Broadcast()
}
