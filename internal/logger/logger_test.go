package logger_test

import (
	"context"
	"testing"

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup(t *testing.T) {
	for _, env := range []string{logger.DevelopmentEnvironment, logger.ProductionEnvironment} {
		t.Run(env, func(t *testing.T) {
			require.NotPanics(t, func() { logger.Setup(env) })
			require.NotNil(t, logger.Get(context.Background()))
		})
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	logger.Setup(logger.DevelopmentEnvironment)

	ctx := context.Background()
	require.NotNil(t, logger.Get(ctx))

	custom := zap.NewExample()
	require.Equal(t, custom, logger.Get(logger.WithLogger(ctx, custom)))
}

func TestWithFieldsAttachesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))

	ctx = logger.WithFields(ctx, zap.String("section", "A1"))
	logger.Info(ctx, "done", zap.String("layer", "parcelles"))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "done", entries[0].Message)
	fields := entries[0].ContextMap()
	require.Equal(t, "A1", fields["section"])
	require.Equal(t, "parcelles", fields["layer"])
}

func TestIsDebug(t *testing.T) {
	logger.Setup(logger.DevelopmentEnvironment)
	ctx := context.Background()
	require.True(t, logger.IsDebug(ctx))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	info, err := cfg.Build()
	require.NoError(t, err)
	require.False(t, logger.IsDebug(logger.WithLogger(ctx, info)))
}

func TestLoggingFunctions(t *testing.T) {
	logger.Setup(logger.DevelopmentEnvironment)
	ctx := context.Background()

	require.NotPanics(t, func() {
		logger.Debug(ctx, "debug message", zap.String("key", "value"))
		logger.Info(ctx, "info message", zap.String("key", "value"))
		logger.Warn(ctx, "warn message", zap.String("key", "value"))
		logger.Error(ctx, "error message", zap.String("key", "value"))
	})
}
