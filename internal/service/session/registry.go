// Package session binds usernames to their single live connection.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
)

// ErrConnClosed is returned by Bind for a connection that was evicted or is shutting down.
var ErrConnClosed = errors.New("connection closed")

// Conn is the registry's view of a connection: only its identity matters here.
type Conn interface {
	ID() string
}

// closer is implemented by connections that can report they are shutting down.
type closer interface {
	Closed() bool
}

// BindResult reports what a successful Bind displaced.
type BindResult struct {
	// Username is the trimmed name now held by the caller.
	Username string
	// Evicted is the connection that held Username before, if it was another one.
	Evicted Conn
	// Released is the name the caller held before binding to a different one.
	Released string
}

// Registry maps each username to exactly one connection.
type Registry struct {
	mu      sync.Mutex
	owners  map[string]Conn     // username -> holder
	names   map[string]string   // conn id -> username
	retired map[string]struct{} // evicted conn ids, until they Unbind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:  make(map[string]Conn),
		names:   make(map[string]string),
		retired: make(map[string]struct{}),
	}
}

// Bind makes conn the holder of username. Any other holder is evicted in the same
// critical section, so concurrent binds of one name resolve last-writer-wins and each
// displaced connection is reported exactly once. An evicted or closed connection can
// never bind again.
func (r *Registry) Bind(username string, conn Conn) (BindResult, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return BindResult{}, fmt.Errorf("username is required: %w", errs.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.retired[conn.ID()]; gone {
		return BindResult{}, ErrConnClosed
	}
	if c, ok := conn.(closer); ok && c.Closed() {
		return BindResult{}, ErrConnClosed
	}

	result := BindResult{Username: name}

	if prev, ok := r.names[conn.ID()]; ok && prev != name {
		delete(r.owners, prev)
		result.Released = prev
	}

	if holder, ok := r.owners[name]; ok && holder.ID() != conn.ID() {
		delete(r.names, holder.ID())
		r.retired[holder.ID()] = struct{}{}
		result.Evicted = holder
	}

	r.owners[name] = conn
	r.names[conn.ID()] = name
	return result, nil
}

// Unbind drops the binding held by conn. It is a no-op for connections that hold nothing,
// including ones already evicted by a newer Bind.
func (r *Registry) Unbind(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.retired, conn.ID())
	name, ok := r.names[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.names, conn.ID())

	if holder, held := r.owners[name]; held && holder.ID() == conn.ID() {
		delete(r.owners, name)
		return name, true
	}
	return "", false
}

// Lookup returns the username conn currently holds.
func (r *Registry) Lookup(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[conn.ID()]
	return name, ok
}

// Usernames returns a sorted snapshot of every bound username.
func (r *Registry) Usernames() []string {
	r.mu.Lock()
	names := lo.Keys(r.owners)
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Len returns the number of bound usernames.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
