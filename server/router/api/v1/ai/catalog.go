package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driftchat/driftchat/store"
)

// CatalogModel is one model advertised by the gateway.
type CatalogModel struct {
	ModelID  string         `json:"model_id"`
	Provider string         `json:"provider"`
	Modality store.Modality `json:"modality"`
	// Prices are USD per one million tokens.
	PromptPrice     float64 `json:"prompt_price"`
	CompletionPrice float64 `json:"completion_price"`
}

type catalogResponse struct {
	Models []CatalogModel `json:"models"`
}

const catalogTTL = 10 * time.Minute

// Catalog fetches and caches the gateway's model list. It exists so a
// request naming a model the user never explicitly enabled can still
// run: a model present in the catalog is enabled on first use.
type Catalog struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	models    map[string]CatalogModel
	fetchedAt time.Time
}

// NewCatalog creates a catalog client against the gateway base URL.
func NewCatalog(baseURL string) *Catalog {
	return &Catalog{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup returns the catalog entry for a model id, fetching the
// catalog when the cache is stale. A gateway failure with no usable
// cache returns (nil, err); callers treat that the same as not found.
func (c *Catalog) Lookup(ctx context.Context, modelID string) (*CatalogModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.models == nil || time.Since(c.fetchedAt) > catalogTTL {
		models, err := c.fetch(ctx)
		if err != nil {
			if c.models == nil {
				return nil, err
			}
			// Serve the stale cache over failing the request.
			slog.Warn("model catalog refresh failed, serving cached", "error", err)
		} else {
			c.models = models
			c.fetchedAt = time.Now()
		}
	}

	model, ok := c.models[modelID]
	if !ok {
		return nil, nil
	}
	return &model, nil
}

func (c *Catalog) fetch(ctx context.Context) (map[string]CatalogModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("model catalog returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}

	models := make(map[string]CatalogModel, len(parsed.Models))
	for _, m := range parsed.Models {
		models[m.ModelID] = m
	}
	return models, nil
}

// ResolveModel returns the enabled-model record for a request. A model
// already enabled for the user is returned as is. Otherwise the
// catalog is consulted: a catalog hit auto-enables the model with its
// current pricing, a miss (or catalog failure) means the model is
// simply not enabled.
func ResolveModel(ctx context.Context, st *store.Store, catalog *Catalog, userID int32, modelID string) (*store.EnabledModel, error) {
	enabled, err := st.ListEnabledModels(ctx, &store.FindEnabledModel{
		UserID:  &userID,
		ModelID: &modelID,
	})
	if err != nil {
		return nil, err
	}
	if len(enabled) > 0 {
		return enabled[0], nil
	}

	entry, err := catalog.Lookup(ctx, modelID)
	if err != nil {
		slog.Warn("model catalog unavailable", "model", modelID, "error", err)
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}

	model, err := st.CreateEnabledModel(ctx, &store.EnabledModel{
		UserID:          userID,
		ModelID:         entry.ModelID,
		Provider:        entry.Provider,
		Modality:        entry.Modality,
		PromptPrice:     entry.PromptPrice,
		CompletionPrice: entry.CompletionPrice,
		CreatedTs:       time.Now().Unix(),
	})
	if err != nil {
		return nil, err
	}
	slog.Info("model auto-enabled from catalog", "user_id", userID, "model", modelID)
	return model, nil
}
