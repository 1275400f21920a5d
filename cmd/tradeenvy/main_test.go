package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions(t *testing.T) {
	opts, err := buildOptions("2024-10-01", "2024-10-08T12:00:00Z", 0, 21000000, " USDC-WETH, ,WBTC-WETH")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), opts.StartTime)
	assert.Equal(t, time.Date(2024, 10, 8, 12, 0, 0, 0, time.UTC), opts.EndTime)
	assert.Equal(t, uint64(21000000), opts.EndBlock)
	assert.Equal(t, []string{"USDC-WETH", "WBTC-WETH"}, opts.Pools)

	_, err = buildOptions("yesterday", "", 0, 0, "")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
