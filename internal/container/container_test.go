package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "sygfp.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "attachments")
	cfg.Storage.URLSecret = "test-secret"
	cfg.Auth.JWTSecret = "jwt"
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Storage.Backend = "s3"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)
}

func TestContainer_StartAndClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	health := c.Health(ctx)
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.True(t, health.Components["database"].Healthy)
	assert.NotNil(t, c.LocalStorage())

	chain, err := c.Services().WorkflowConfig.Chain(workflow.DocEngagement)
	require.NoError(t, err)
	assert.Len(t, chain, 4)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestProvideSequenceAllocator_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	bundle, err := ProvideSequenceAllocator(context.Background(), &SequenceConfig{
		Backend:   "redis",
		KeyPrefix: "seq",
		RedisAddr: mr.Addr(),
	}, &RepositoryBundle{}, zap.NewNop())
	require.NoError(t, err)
	defer bundle.Redis.Close()

	key := port.SequenceKey{DocType: "engagement", Exercice: 2025, Scope: "DAAF"}
	first, err := bundle.Allocator.Next(context.Background(), key)
	require.NoError(t, err)
	second, err := bundle.Allocator.Next(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestProvideSequenceAllocator_Unknown(t *testing.T) {
	_, err := ProvideSequenceAllocator(context.Background(), &SequenceConfig{Backend: "etcd"}, &RepositoryBundle{}, zap.NewNop())
	assert.Error(t, err)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("document_id", "d-1", 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "document_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
