//go:build !integration

package main

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-index/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"backfill", "status", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "edgar-index", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.RunE, "the root command runs ingestion without a subcommand")
}

func TestRootCommand_NoRequiredFlags(t *testing.T) {
	for _, name := range []string{"skip-fetch", "workers"} {
		f := rootCmd.Flags().Lookup(name)
		require.NotNil(t, f, "root should have --%s", name)
		_, required := f.Annotations["cobra_annotation_bash_completion_one_required_flag"]
		assert.False(t, required)
	}
}

func TestApplyRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	c := &config.Config{Ingest: config.IngestConfig{Workers: 3, SkipFetch: false}}
	cmd := newRunFlagsCmd()

	require.NoError(t, applyRunFlags(cmd, c))
	assert.Equal(t, 3, c.Ingest.Workers)
	assert.False(t, c.Ingest.SkipFetch)

	require.NoError(t, cmd.Flags().Set("skip-fetch", "true"))
	require.NoError(t, cmd.Flags().Set("workers", "8"))
	require.NoError(t, applyRunFlags(cmd, c))
	assert.Equal(t, 8, c.Ingest.Workers)
	assert.True(t, c.Ingest.SkipFetch)
}

func TestInterruptible_CancelsOnSIGINT(t *testing.T) {
	ctx, stop := interruptible(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGINT")
	}
}
