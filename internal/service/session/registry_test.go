package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
)

type fakeConn string

func (f fakeConn) ID() string { return string(f) }

func TestBindRejectsBlankUsernames(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := reg.Bind(name, fakeConn("a"))
		require.True(t, errors.Is(err, errs.ErrInvalidInput), "name %q", name)
	}
	require.Zero(t, reg.Len())
	_, ok := reg.Lookup(fakeConn("a"))
	require.False(t, ok)
}

func TestBindTrimsAndEvicts(t *testing.T) {
	reg := NewRegistry()
	a, b := fakeConn("a"), fakeConn("b")

	res, err := reg.Bind("  alice ", a)
	require.NoError(t, err)
	require.Equal(t, "alice", res.Username)
	require.Nil(t, res.Evicted)

	res, err = reg.Bind("alice", b)
	require.NoError(t, err)
	require.Equal(t, a, res.Evicted)

	require.Equal(t, []string{"alice"}, reg.Usernames())
	name, ok := reg.Lookup(b)
	require.True(t, ok)
	require.Equal(t, "alice", name)
	_, ok = reg.Lookup(a)
	require.False(t, ok)
}

func TestRebindBySameConnectionIsNoop(t *testing.T) {
	reg := NewRegistry()
	a := fakeConn("a")

	_, err := reg.Bind("alice", a)
	require.NoError(t, err)
	res, err := reg.Bind("alice", a)
	require.NoError(t, err)
	require.Nil(t, res.Evicted)
	require.Empty(t, res.Released)
	require.Equal(t, []string{"alice"}, reg.Usernames())
}

func TestBindToNewNameReleasesOldOne(t *testing.T) {
	reg := NewRegistry()
	a := fakeConn("a")

	_, err := reg.Bind("alice", a)
	require.NoError(t, err)
	res, err := reg.Bind("alicia", a)
	require.NoError(t, err)
	require.Equal(t, "alice", res.Released)
	require.Equal(t, []string{"alicia"}, reg.Usernames())
}

func TestUnbindIgnoresStaleConnection(t *testing.T) {
	reg := NewRegistry()
	a, b := fakeConn("a"), fakeConn("b")

	_, _ = reg.Bind("alice", a)
	_, _ = reg.Bind("alice", b)

	name, removed := reg.Unbind(a)
	require.False(t, removed)
	require.Empty(t, name)
	require.Equal(t, []string{"alice"}, reg.Usernames())

	name, removed = reg.Unbind(b)
	require.True(t, removed)
	require.Equal(t, "alice", name)
	require.Empty(t, reg.Usernames())

	_, removed = reg.Unbind(b)
	require.False(t, removed)
}

func TestEvictedConnectionCannotRebind(t *testing.T) {
	reg := NewRegistry()
	a, b := fakeConn("a"), fakeConn("b")

	_, err := reg.Bind("alice", a)
	require.NoError(t, err)
	_, err = reg.Bind("alice", b)
	require.NoError(t, err)

	for _, name := range []string{"alice", "someone-else"} {
		_, err = reg.Bind(name, a)
		require.ErrorIs(t, err, ErrConnClosed)
	}
	holder, ok := reg.Lookup(b)
	require.True(t, ok)
	require.Equal(t, "alice", holder)
	require.Equal(t, []string{"alice"}, reg.Usernames())

	// Unbind forgets the evicted connection.
	_, removed := reg.Unbind(a)
	require.False(t, removed)
	require.Empty(t, reg.retired)
}

type closedConn struct{ fakeConn }

func (closedConn) Closed() bool { return true }

func TestClosedConnectionCannotBind(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Bind("alice", closedConn{"a"})
	require.ErrorIs(t, err, ErrConnClosed)
	require.Zero(t, reg.Len())
}

func TestConcurrentBindsLeaveOneHolder(t *testing.T) {
	reg := NewRegistry()
	const n = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		evicted = make(map[string]int)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			res, err := reg.Bind("alice", fakeConn(fmt.Sprintf("c%d", id)))
			if err != nil {
				t.Errorf("bind c%d: %v", id, err)
				return
			}
			if res.Evicted != nil {
				mu.Lock()
				evicted[res.Evicted.ID()]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	require.Len(t, evicted, n-1)
	for id, count := range evicted {
		require.Equal(t, 1, count, "connection %s evicted more than once", id)
	}
}

func TestUsernamesSorted(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Bind("carol", fakeConn("c"))
	_, _ = reg.Bind("alice", fakeConn("a"))
	_, _ = reg.Bind("bob", fakeConn("b"))

	require.Equal(t, []string{"alice", "bob", "carol"}, reg.Usernames())
}
