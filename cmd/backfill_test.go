//go:build !integration

package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRunFlagsCmd creates a fresh command with the run and backfill flags so
// tests don't share mutable flag state.
func newRunFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test-run"}
	cmd.Flags().Int("from", 0, "")
	cmd.Flags().Int("to", 0, "")
	cmd.Flags().Bool("skip-fetch", false, "")
	cmd.Flags().Int("workers", 0, "")
	return cmd
}

var backfillNow = time.Date(2024, 9, 20, 0, 0, 0, 0, time.UTC)

func TestParseBackfillRange_DefaultsToCurrentYear(t *testing.T) {
	cmd := newRunFlagsCmd()
	require.NoError(t, cmd.Flags().Set("from", "2020"))

	from, to, err := parseBackfillRange(cmd, backfillNow)
	require.NoError(t, err)
	assert.Equal(t, 2020, from)
	assert.Equal(t, 2024, to)
}

func TestParseBackfillRange_Explicit(t *testing.T) {
	cmd := newRunFlagsCmd()
	require.NoError(t, cmd.Flags().Set("from", "2018"))
	require.NoError(t, cmd.Flags().Set("to", "2019"))

	from, to, err := parseBackfillRange(cmd, backfillNow)
	require.NoError(t, err)
	assert.Equal(t, 2018, from)
	assert.Equal(t, 2019, to)
}

func TestParseBackfillRange_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{"missing from", "", "", "--from is required"},
		{"before edgar", "1990", "", "start in 1993"},
		{"reversed", "2022", "2021", "is before --from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunFlagsCmd()
			if tt.from != "" {
				require.NoError(t, cmd.Flags().Set("from", tt.from))
			}
			if tt.to != "" {
				require.NoError(t, cmd.Flags().Set("to", tt.to))
			}
			_, _, err := parseBackfillRange(cmd, backfillNow)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBackfillCommand_Flags(t *testing.T) {
	for _, name := range []string{"from", "to", "skip-fetch", "workers"} {
		assert.NotNil(t, backfillCmd.Flags().Lookup(name), "backfill should have --%s", name)
	}
}
