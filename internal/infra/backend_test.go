package infra

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/config"
	"github.com/dvloznov/trading-ingest/internal/infra/memory"
)

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendMemory}

	store, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, Migrate(context.Background(), cfg, store, "test", zerolog.Nop()))
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{Backend: "sqlite"})
	assert.ErrorContains(t, err, "sqlite")
}

func TestOpenArchiver_Disabled(t *testing.T) {
	archiver, closeFn, err := OpenArchiver(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, archiver)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())
}
