package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/engine/store"
	"github.com/warp/stay-engine/engine/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) engine.TxStore { return store.NewMemory() })
}

func TestMemory_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveProperty(ctx, engine.Property{ID: "home-1", Features: []string{"wifi"}}))

	p, err := m.GetProperty(ctx, "home-1")
	require.NoError(t, err)
	p.Features[0] = "sauna"

	again, err := m.GetProperty(ctx, "home-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wifi"}, again.Features)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveProperty(ctx, engine.Property{ID: "home-1"}))
	require.NoError(t, m.Reset(ctx))

	props, err := m.ListProperties(ctx)
	require.NoError(t, err)
	assert.Empty(t, props)
}
