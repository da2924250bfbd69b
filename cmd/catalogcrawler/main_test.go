package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/auth"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	memorypublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

func TestSplitSeeds(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, splitSeeds(" a, ,b,"))
	require.Empty(t, splitSeeds(""))
}

func TestCredentialProvider(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.IsType(t, &auth.PageScrape{}, credentialProvider(cfg))

	cfg.Auth.Provider = config.AuthStatic
	cfg.Auth.Token = "tok"
	require.Equal(t, auth.Static("tok"), credentialProvider(cfg))

	cfg.Auth.Provider = config.AuthClientCredentials
	require.IsType(t, &auth.ClientCredentials{}, credentialProvider(cfg))
}

func TestBuildLocalMode(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Publisher.Kind = config.PublisherMemory

	comps, err := build(context.Background(), cfg, false, zap.NewNop())
	require.NoError(t, err)
	defer comps.close()

	require.IsType(t, &memory.TaskQueue{}, comps.deps.Queue)
	require.IsType(t, &memory.Lock{}, comps.deps.Lock)
	require.IsType(t, &memory.Ledger{}, comps.deps.Ledger)
	require.IsType(t, &memory.EntityStore{}, comps.deps.Store)
	require.IsType(t, &memorypublisher.Publisher{}, comps.deps.Publisher)
	require.NotNil(t, comps.deps.Fetcher)
	require.Same(t, comps.tokens, comps.deps.Tokens)
	require.Contains(t, comps.checks, "token")
	require.NotContains(t, comps.checks, "redis")
}
