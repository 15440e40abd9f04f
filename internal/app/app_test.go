package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wayfarer/internal/config"
	"wayfarer/internal/modules/dialogue"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestOfflineAppAnswersWithoutProviders(t *testing.T) {
	cfg := offlineConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop(), Options{Offline: true})
	require.NoError(t, err)
	defer a.Close()

	r, err := a.Orchestrator.Handle(context.Background(), "cli", "fly from Boston to Chicago")
	require.NoError(t, err)
	assert.Equal(t, dialogue.PhaseCollectingParameters, r.Phase)
	assert.Equal(t, int64(1), r.Version)

	ctx, cancel := context.WithCancel(context.Background())
	a.RunBackground(ctx)
	cancel()
}

func TestUnknownProviderIsAnError(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Search.Primary = "bing"
	_, err := New(context.Background(), cfg, zap.NewNop(), Options{Offline: true})
	assert.ErrorContains(t, err, `unknown search provider "bing"`)
}

func TestProvidersWithoutKeysAreSkipped(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Providers.Groq.APIKey = "k"
	cfg.Providers.Serper.APIKey = "s"
	a, err := New(context.Background(), cfg, zap.NewNop(), Options{Offline: true})
	require.NoError(t, err)
	defer a.Close()

	providers, err := a.completionProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "groq", providers[0].Name())

	searchers, err := a.searchProviders()
	require.NoError(t, err)
	require.Len(t, searchers, 1)
	assert.Equal(t, "serper", searchers[0].Name())
}
