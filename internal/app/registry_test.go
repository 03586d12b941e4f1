package app

import (
	"testing"

	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(created *[]ClientID) *Registry {
	return NewRegistry(func(id ClientID) *session.Manager {
		*created = append(*created, id)
		return session.NewManager(session.Deps{}, session.Options{})
	})
}

func TestRegistryAttachReusesManager(t *testing.T) {
	var created []ClientID
	r := newTestRegistry(&created)

	a := r.Attach("client-1")
	b := r.Attach("client-1")
	c := r.Attach("client-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, []ClientID{"client-1", "client-2"}, created)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryDetachReleasesOnLastObserver(t *testing.T) {
	var created []ClientID
	r := newTestRegistry(&created)

	m := r.Attach("client-1")
	r.Attach("client-1")

	r.Detach("client-1")
	got, ok := r.Get("client-1")
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.Equal(t, domain.StateUninitialized, m.ConnectionState())

	r.Detach("client-1")
	_, ok = r.Get("client-1")
	assert.False(t, ok)
	assert.Equal(t, domain.StateDisconnected, m.ConnectionState())

	assert.NotPanics(t, func() { r.Detach("client-1") })
}

func TestRegistryShutdown(t *testing.T) {
	var created []ClientID
	r := newTestRegistry(&created)

	a := r.Attach("client-1")
	b := r.Attach("client-2")
	r.Shutdown()

	assert.Zero(t, r.Len())
	assert.Equal(t, domain.StateDisconnected, a.ConnectionState())
	assert.Equal(t, domain.StateDisconnected, b.ConnectionState())
}

func TestSimplePolicy(t *testing.T) {
	p := SimplePolicy{MaxDropped: 2}
	assert.Equal(t, DropFrame, p.OnBackPressure("client-1", 1))
	assert.Equal(t, DropFrame, p.OnBackPressure("client-1", 2))
	assert.Equal(t, CloseObserver, p.OnBackPressure("client-1", 3))
	assert.Equal(t, CloseObserver, SimplePolicy{}.OnBackPressure("client-1", 1))
}
