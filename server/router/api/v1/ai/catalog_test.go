package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/store"
)

func newCatalogServer(t *testing.T, fetches *atomic.Int32, failing *atomic.Bool, models []CatalogModel) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		fetches.Add(1)
		if failing.Load() {
			http.Error(w, "gateway down", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(catalogResponse{Models: models})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCatalogLookupCachesWithinTTL(t *testing.T) {
	var fetches atomic.Int32
	var failing atomic.Bool
	server := newCatalogServer(t, &fetches, &failing, []CatalogModel{
		{ModelID: "m1", Provider: "openrouter", Modality: store.ModalityText, PromptPrice: 1, CompletionPrice: 2},
	})

	catalog := NewCatalog(server.URL)

	model, err := catalog.Lookup(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "openrouter", model.Provider)

	model, err = catalog.Lookup(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestCatalogLookupMiss(t *testing.T) {
	var fetches atomic.Int32
	var failing atomic.Bool
	server := newCatalogServer(t, &fetches, &failing, nil)

	catalog := NewCatalog(server.URL)
	model, err := catalog.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestCatalogServesStaleOnRefreshFailure(t *testing.T) {
	var fetches atomic.Int32
	var failing atomic.Bool
	server := newCatalogServer(t, &fetches, &failing, []CatalogModel{
		{ModelID: "m1", Provider: "openrouter", Modality: store.ModalityText},
	})

	catalog := NewCatalog(server.URL)
	_, err := catalog.Lookup(context.Background(), "m1")
	require.NoError(t, err)

	// Expire the cache, then break the gateway.
	catalog.mu.Lock()
	catalog.fetchedAt = catalog.fetchedAt.Add(-2 * catalogTTL)
	catalog.mu.Unlock()
	failing.Store(true)

	model, err := catalog.Lookup(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "m1", model.ModelID)
}

func TestCatalogFailureWithoutCache(t *testing.T) {
	var fetches atomic.Int32
	failing := atomic.Bool{}
	failing.Store(true)
	server := newCatalogServer(t, &fetches, &failing, nil)

	catalog := NewCatalog(server.URL)
	_, err := catalog.Lookup(context.Background(), "m1")
	assert.Error(t, err)
}

func TestResolveModelAutoEnables(t *testing.T) {
	var fetches atomic.Int32
	var failing atomic.Bool
	server := newCatalogServer(t, &fetches, &failing, []CatalogModel{
		{ModelID: "m2", Provider: "openrouter", Modality: store.ModalityImage, PromptPrice: 3, CompletionPrice: 4},
	})

	driver := newFakeDriver()
	st := store.New(driver, testProfile())
	catalog := NewCatalog(server.URL)

	model, err := ResolveModel(context.Background(), st, catalog, 1, "m2")
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, store.ModalityImage, model.Modality)
	assert.InDelta(t, 3.0, model.PromptPrice, 1e-9)

	// The model is now persisted as enabled for the user.
	userID := int32(1)
	modelID := "m2"
	enabled, err := st.ListEnabledModels(context.Background(), &store.FindEnabledModel{UserID: &userID, ModelID: &modelID})
	require.NoError(t, err)
	require.Len(t, enabled, 1)
}

func TestResolveModelPrefersEnabledRecord(t *testing.T) {
	var fetches atomic.Int32
	var failing atomic.Bool
	server := newCatalogServer(t, &fetches, &failing, []CatalogModel{
		{ModelID: "m1", Provider: "openrouter", Modality: store.ModalityText, PromptPrice: 99, CompletionPrice: 99},
	})

	driver := newFakeDriver()
	st := store.New(driver, testProfile())
	enableTestModel(driver, 1)

	model, err := ResolveModel(context.Background(), st, NewCatalog(server.URL), 1, "m1")
	require.NoError(t, err)
	require.NotNil(t, model)
	// Enabled pricing wins over the catalog's.
	assert.InDelta(t, 1.0, model.PromptPrice, 1e-9)
	assert.Zero(t, fetches.Load())
}
