package provider

import (
	"testing"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(id string, weight float64, primary bool) engine.ModelConfig {
	return engine.ModelConfig{
		Provider:  engine.ProviderMock,
		ModelID:   id,
		Timeout:   1,
		Weight:    weight,
		IsPrimary: primary,
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	m := NewMock(MockConfig{Name: "m1"})
	require.NoError(t, r.Register(cfg("m1", 1, false), m))

	got, gotCfg, ok := r.Get("m1")
	require.True(t, ok)
	assert.Same(t, Adapter(m), got)
	assert.Equal(t, "m1", gotCfg.ModelID)
}

func TestRegistry_Get_Missing(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestRegistry_Register_InvalidConfig(t *testing.T) {
	r := NewRegistry()
	err := r.Register(engine.ModelConfig{ModelID: "x", Timeout: 0}, NewMock(MockConfig{}))
	require.Error(t, err)
}

func TestRegistry_Register_NilAdapter(t *testing.T) {
	r := NewRegistry()
	err := r.Register(cfg("x", 1, false), nil)
	require.Error(t, err)
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(cfg("m1", 1, false), NewMock(MockConfig{})))
	r.Deregister("m1")
	_, _, ok := r.Get("m1")
	assert.False(t, ok)
}

func TestRegistry_ListByTag(t *testing.T) {
	r := NewRegistry()
	c1 := cfg("a", 1, false)
	c1.Tags = map[string]bool{"fast": true}
	c2 := cfg("b", 1, false)
	c2.Tags = map[string]bool{"cheap": true}

	require.NoError(t, r.Register(c1, NewMock(MockConfig{})))
	require.NoError(t, r.Register(c2, NewMock(MockConfig{})))

	fast := r.ListByTag("fast")
	require.Len(t, fast, 1)
	assert.Equal(t, "a", fast[0].ModelID)
}

func TestRegistry_ListByCapability(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(cfg("a", 1, false), NewMock(MockConfig{})))

	withEmbeddings := r.ListByCapability(func(c Capabilities) bool { return c.SupportsEmbeddings })
	assert.Len(t, withEmbeddings, 1)

	withVision := r.ListByCapability(func(c Capabilities) bool { return c.SupportsVision })
	assert.Empty(t, withVision)
}

func TestRegistry_Prioritized(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(cfg("low", 1, false), NewMock(MockConfig{})))
	require.NoError(t, r.Register(cfg("primary", 1, true), NewMock(MockConfig{})))
	require.NoError(t, r.Register(cfg("high-weight", 5, false), NewMock(MockConfig{})))

	ordered := r.Prioritized()
	require.Len(t, ordered, 3)
	assert.Equal(t, "primary", ordered[0].ModelID)
	assert.Equal(t, "high-weight", ordered[1].ModelID)
	assert.Equal(t, "low", ordered[2].ModelID)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = r.Register(cfg("m", float64(i), false), NewMock(MockConfig{}))
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_, _, _ = r.Get("m")
	}
	<-done
}
