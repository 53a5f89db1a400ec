package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdFlagDefaults(t *testing.T) {
	cmd := newRootCmd()

	host, err := cmd.Flags().GetString("osc-host")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	port, err := cmd.Flags().GetInt("osc-port")
	assert.NoError(t, err)
	assert.Equal(t, 57110, port)

	httpAddr, err := cmd.Flags().GetString("http-addr")
	assert.NoError(t, err)
	assert.Equal(t, "localhost:1606", httpAddr)

	tick, err := cmd.Flags().GetInt("tick-ms")
	assert.NoError(t, err)
	assert.Equal(t, 2, tick)

	recordLog, err := cmd.Flags().GetString("record-log")
	assert.NoError(t, err)
	assert.Equal(t, "vibelang-record.jsonl", recordLog)
}

func TestRootCmdFlagsOverride(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--osc-port", "57200", "--record"}))

	port, _ := cmd.Flags().GetInt("osc-port")
	assert.Equal(t, 57200, port)
	record, _ := cmd.Flags().GetBool("record")
	assert.True(t, record)
}
