package remote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/seal"
)

func testCodec(t *testing.T) seal.Codec {
	t.Helper()
	key := make([]byte, seal.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := seal.NewWithKey(key)
	require.NoError(t, err)
	return c
}
