package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/digipot/busopen"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigEnv(t *testing.T) {
	path := writeConfig(t, "bus: periph:/dev/i2c-1\nstrap: vdd\nvariant: ad5274\n")

	env, err := configEnv(path)
	require.NoError(t, err)
	require.Len(t, env, 1)
	assert.Equal(t, "DIGIPOT_CONFIG="+path, env[0])
	assert.True(t, filepath.IsAbs(env[0][len("DIGIPOT_CONFIG="):]))
}

func TestConfigEnv_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := configEnv(filepath.Join(t.TempDir(), "none.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("unknown bus", func(t *testing.T) {
		_, err := configEnv(writeConfig(t, "bus: spi:0\n"))
		assert.ErrorIs(t, err, busopen.ErrUnknownBus)
	})
	t.Run("bad strap", func(t *testing.T) {
		_, err := configEnv(writeConfig(t, "bus: mcp2221\nstrap: high\n"))
		assert.ErrorContains(t, err, `invalid strap "high"`)
	})
}

func TestHardwareTestCmd_Flags(t *testing.T) {
	cmd := HardwareTestCmd()
	for _, name := range []string{"config", "bus", "strap", "variant"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
