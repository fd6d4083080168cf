package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvforge/bitcask/internal/protocol"
)

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	encoded, err := protocol.EncodeCommand("set", "key", "value")
	require.NoError(t, err)

	cmd, err := protocol.DecodeCommand(bytes.NewReader(encoded))
	require.NoError(t, err)

	assert.Equal(t, "set", cmd.Cmd)
	assert.Equal(t, "key", cmd.Key)
	assert.Equal(t, "value", cmd.Val)
}

func TestEncodeDecodeCommandWithEmptyFields(t *testing.T) {
	encoded, err := protocol.EncodeCommand("count", "", "")
	require.NoError(t, err)

	cmd, err := protocol.DecodeCommand(bytes.NewReader(encoded))
	require.NoError(t, err)

	assert.Equal(t, "count", cmd.Cmd)
	assert.Empty(t, cmd.Key)
	assert.Empty(t, cmd.Val)
}

func TestDecodeCommandPropagatesShortRead(t *testing.T) {
	_, err := protocol.DecodeCommand(bytes.NewReader(nil))
	assert.Error(t, err)
}
