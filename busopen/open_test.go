package busopen

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/digipot/ad5274"
	"github.com/mklimuk/digipot/adapter"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path    string
		want    Path
		wantErr bool
	}{
		{path: "mcp2221", want: Path{Kind: KindMCP2221, Index: -1}},
		{path: "MCP2221:1", want: Path{Kind: KindMCP2221, Index: 1}},
		{path: "periph", want: Path{Kind: KindPeriph, Index: -1}},
		{path: "periph:/dev/i2c-1", want: Path{Kind: KindPeriph, Index: -1, Device: "/dev/i2c-1"}},
		{path: "nanopi:0", want: Path{Kind: KindNanoPi, Index: 0}},
		{path: "nanopi:x", wantErr: true},
		{path: "mcp2221:-2", wantErr: true},
		{path: "spi:0", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_String(t *testing.T) {
	for _, path := range []string{"mcp2221", "mcp2221:1", "periph", "periph:/dev/i2c-1", "nanopi:0"} {
		p, err := Parse(path)
		require.NoError(t, err)
		assert.Equal(t, path, p.String())
	}
}

func TestOpen_MCP2221(t *testing.T) {
	bus, err := Open(context.Background(), "mcp2221:2")
	require.NoError(t, err)
	assert.IsType(t, &adapter.MCP2221{}, bus.I2CBus)
	assert.Equal(t, 2, bus.Path.Index)
	assert.NoError(t, bus.Close())
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), "usb:0")
	assert.ErrorIs(t, err, ErrUnknownBus)
}

func TestOpenDevice(t *testing.T) {
	cfg, err := ad5274.LoadConfig(strings.NewReader("bus: mcp2221:1\nstrap: float\nvariant: ad5274\n"))
	require.NoError(t, err)

	dev, bus, err := OpenDevice(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, ad5274.AddressFloat, dev.Address())
	assert.Equal(t, ad5274.AD5274, dev.Variant())
	assert.Equal(t, Path{Kind: KindMCP2221, Index: 1}, bus.Path)
	assert.NoError(t, bus.Close())
}

func TestOpenDevice_NoBus(t *testing.T) {
	cfg, err := ad5274.LoadConfig(strings.NewReader("strap: vdd\n"))
	require.NoError(t, err)

	_, _, err = OpenDevice(context.Background(), cfg, io.Discard)
	assert.ErrorIs(t, err, ErrUnknownBus)
}
