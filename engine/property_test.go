package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/engine/store"
	"github.com/warp/stay-engine/logging"
)

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return "/uploads/" + name, nil
}

type invalidations struct {
	mu  sync.Mutex
	ids []engine.PropertyID
}

func (i *invalidations) Invalidate(_ context.Context, id engine.PropertyID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, id)
}

func TestProperty_CreateValidation(t *testing.T) {
	f := newFixture(t, engine.DefaultPolicy())
	ctx := context.Background()

	_, err := f.eng.Properties.Create(ctx, owner, engine.NewProperty{Title: "No location", Price: dec("10")})
	var vErr *engine.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "location.address", vErr.Field)

	_, err = f.eng.Properties.Create(ctx, owner, engine.NewProperty{
		Title:    "Negative",
		Location: engine.Location{Province: "p", District: "d", City: "c", Address: "a"},
		Price:    dec("-1"),
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestProperty_OwnershipRules(t *testing.T) {
	cache := &invalidations{}
	eng := engine.New(store.NewMemory(), engine.DefaultPolicy(), engine.WithPropertyCache(cache), engine.WithLogger(logging.Discard()))
	ctx := context.Background()

	p, err := eng.Properties.Create(ctx, owner, engine.NewProperty{
		Title:    "Hill Cabin",
		Location: engine.Location{Province: "Uva", District: "Badulla", City: "Ella", Address: "3 Rock Rd"},
		Price:    dec("80"),
	})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, p.OwnerID)
	assert.Equal(t, engine.PropertyActive, p.Status)

	title := "Hill Cabin Deluxe"
	_, err = eng.Properties.Update(ctx, guest, p.ID, engine.PropertyUpdate{Title: &title})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	price := dec("95")
	updated, err := eng.Properties.Update(ctx, owner, p.ID, engine.PropertyUpdate{Title: &title, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.Price.Value.Equal(price))

	_, err = eng.Properties.Hide(ctx, owner, p.ID, "")
	assert.ErrorIs(t, err, engine.ErrUnauthorized, "only admins hide")

	hidden, err := eng.Properties.Hide(ctx, admin, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, engine.PropertyHidden, hidden.Status)
	assert.Equal(t, "Violation of platform rules", hidden.StatusReason)

	_, err = eng.Properties.MarkUnavailable(ctx, admin, p.ID)
	assert.ErrorIs(t, err, engine.ErrUnauthorized, "only the owner marks unavailable")

	unavailable, err := eng.Properties.MarkUnavailable(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PropertyUnavailable, unavailable.Status)

	assert.Equal(t, []engine.PropertyID{p.ID, p.ID, p.ID}, cache.ids)
}

func TestProperty_ListByOwner(t *testing.T) {
	f := newFixture(t, engine.DefaultPolicy())
	ctx := context.Background()

	_, err := f.eng.Properties.ListByOwner(ctx, owner.ID)
	assert.True(t, engine.IsNotFound(err))

	f.home(t, 10)
	f.home(t, 20)
	props, err := f.eng.Properties.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, props, 2)

	all, err := f.eng.Properties.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProperty_AttachImages(t *testing.T) {
	blobs := &memBlobs{}
	eng := engine.New(store.NewMemory(), engine.DefaultPolicy(), engine.WithBlobStore(blobs), engine.WithLogger(logging.Discard()))
	ctx := context.Background()

	p, err := eng.Properties.Create(ctx, owner, engine.NewProperty{
		Title:    "Tea Estate Bungalow",
		Location: engine.Location{Province: "Central", District: "Nuwara Eliya", City: "Nuwara Eliya", Address: "Estate Rd"},
		Price:    dec("120"),
	})
	require.NoError(t, err)

	uploads := []engine.Upload{
		{Name: "front.jpg", Body: bytes.NewBufferString("jpeg-1")},
		{Name: "garden.png", Body: bytes.NewBufferString("png-2")},
	}
	_, err = eng.Properties.AttachImages(ctx, guest, p.ID, uploads)
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	updated, err := eng.Properties.AttachImages(ctx, owner, p.ID, uploads)
	require.NoError(t, err)
	require.Len(t, updated.Images, 2)
	assert.Contains(t, updated.Images[0], fmt.Sprintf("/uploads/homes/%s/", p.ID))
	assert.Len(t, blobs.files, 2)
}
