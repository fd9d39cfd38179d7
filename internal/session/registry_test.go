package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id int }

func (f *fakeConn) WriteEvent(event string, data any) error { return nil }

func TestJoinLeave(t *testing.T) {
	r := NewRegistry()
	c1, c2 := &fakeConn{1}, &fakeConn{2}

	r.Join("u1", c1)
	r.Join("u1", c1) // idempotent
	r.Join("u1", c2)
	require.Len(t, r.ConnectionsFor("u1"), 2)
	assert.True(t, r.Connected("u1"))

	r.Leave("u1", c1)
	require.Len(t, r.ConnectionsFor("u1"), 1)

	r.Leave("u1", c2)
	assert.Empty(t, r.ConnectionsFor("u1"))
	assert.False(t, r.Connected("u1"))

	// leaving an unknown identity must not panic
	r.Leave("ghost", c1)
}

func TestConnectionsForUnknownIdentity(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.ConnectionsFor("nobody"))
	assert.False(t, r.Connected("nobody"))
}

func TestConcurrentLifecycles(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i%8)
			c := &fakeConn{i}
			r.Join(id, c)
			_ = r.ConnectionsFor(id)
			r.Leave(id, c)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		assert.False(t, r.Connected(fmt.Sprintf("user-%d", i)))
	}
}
