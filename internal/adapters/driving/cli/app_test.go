package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/services"
)

// isolateEnv clears the variables that would override stored settings.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		services.EnvGraphBackend, services.EnvRedisAddr, services.EnvQdrantAddr,
		services.EnvGeminiAPIKey, services.EnvOpenAIAPIKey,
		services.EnvAgentURL, services.EnvAgentKey,
	} {
		t.Setenv(name, "")
	}
}

// writeConfig stores settings in dir/config.toml.
func writeConfig(t *testing.T, dir string, values map[string]any) {
	t.Helper()
	store, err := file.NewConfigStore(dir)
	require.NoError(t, err)
	for k, v := range values {
		require.NoError(t, store.Set(k, v))
	}
}

// unreachableEmbedding points the embedder at a closed port so startup does not wait on a real server.
var unreachableEmbedding = map[string]any{"embedding.base_url": "http://127.0.0.1:1"}

func TestNewApp_Ephemeral(t *testing.T) {
	isolateEnv(t)

	a, err := newApp(context.Background(), appOptions{Ephemeral: true})
	require.NoError(t, err)
	defer a.Close()

	s := a.services
	assert.NotNil(t, s.Upload)
	assert.NotNil(t, s.Document)
	assert.NotNil(t, s.Retrieval)
	assert.NotNil(t, s.Question)
	assert.NotNil(t, s.Settings)
	assert.NotNil(t, s.Sweep)

	docs, err := s.Document.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNewApp_SQLiteDataDir(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, unreachableEmbedding)

	a, err := newApp(context.Background(), appOptions{DataDir: dir})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "data", "lectern.db"))
	assert.NoError(t, err, "database should be created under data/")

	docs, err := a.services.Document.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.NoError(t, a.Close())
}

func TestNewApp_InvalidPipeline(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"pipeline.chunk_size":    100,
		"pipeline.chunk_overlap": 100,
	})

	a, err := newApp(context.Background(), appOptions{DataDir: dir})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Nil(t, a)
}

func TestNewApp_UnreachableRedis(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"graph.backend":      "redis",
		"graph.addr":         "127.0.0.1:1",
		"embedding.base_url": "http://127.0.0.1:1",
	})

	a, err := newApp(context.Background(), appOptions{DataDir: dir})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
	assert.Nil(t, a)
}

// The records store opens before the graph, so a graph failure must close it
// without the partially built app escaping.
func TestNewApp_GraphFailureReleasesRecords(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, map[string]any{
		"graph.backend":      "redis",
		"graph.addr":         "127.0.0.1:1",
		"embedding.base_url": "http://127.0.0.1:1",
	})

	for range 2 {
		a, err := newApp(context.Background(), appOptions{DataDir: dir})
		require.Error(t, err)
		assert.Nil(t, a)
	}

	writeConfig(t, dir, map[string]any{
		"graph.backend":      "sqlite",
		"embedding.base_url": "http://127.0.0.1:1",
	})
	a, err := newApp(context.Background(), appOptions{DataDir: dir})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NoError(t, a.Close())
}

func TestApp_CloseRunsInReverseOrder(t *testing.T) {
	var order []string
	a := &app{}
	a.closers = append(a.closers,
		func() error { order = append(order, "records"); return nil },
		func() error { order = append(order, "graph"); return errors.New("graph busy") },
		func() error { order = append(order, "embedder"); return nil },
	)

	err := a.Close()

	assert.EqualError(t, err, "graph busy")
	assert.Equal(t, []string{"embedder", "graph", "records"}, order)
	assert.NoError(t, a.Close(), "second close is a no-op")
}
