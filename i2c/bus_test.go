package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/mklimuk/digipot"
	"github.com/mklimuk/digipot/ad5274"
)

func TestGenericBus_Playback(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x2F, W: []byte{0x1C, 0x02}},
			{Addr: 0x2F, W: []byte{0x20, 0x00}, R: []byte{0x00, 0x02}},
			{Addr: 0x2F, W: []byte{0x05, 0x80}},
		},
		DontPanic: true,
	}
	bus := NewGenericBusFrom(playback)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, 0x2F, []byte{0x1C, 0x02}))
	r := make([]byte, 2)
	require.NoError(t, bus.Tx(ctx, 0x2F, []byte{0x20, 0x00}, r))
	assert.Equal(t, []byte{0x00, 0x02}, r)
	require.NoError(t, bus.WriteToAddr(ctx, 0x2F, []byte{0x05, 0x80}))
	assert.NoError(t, bus.Close())
}

func TestGenericBus_DeviceOverWire(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x2C, W: []byte{0x1C, 0x02}},
			{Addr: 0x2C, W: []byte{0x20, 0x00}},
			{Addr: 0x2C, R: []byte{0x00, 0x02}},
			{Addr: 0x2C, W: []byte{0x05, 0x80}},
		},
		DontPanic: true,
	}
	dev := ad5274.New(NewWire(NewGenericBusFrom(playback)), ad5274.AddressVDD)
	ctx := context.Background()

	_, err := dev.ControlWriteVerified(ctx, ad5274.ControlRDACWriteEnable)
	require.NoError(t, err)
	require.NoError(t, dev.WiperWrite(ctx, 0x180))
	assert.NoError(t, playback.Close())
}

type failingBus struct {
	i2ctest.Playback
	err error
}

func (b *failingBus) Tx(addr uint16, w, r []byte) error {
	return b.err
}

func TestGenericBus_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		nack bool
	}{
		{name: "enxio", err: errors.New("sysfs-i2c: no such device or address"), nack: true},
		{name: "eremoteio", err: errors.New("sysfs-i2c: remote I/O error"), nack: true},
		{name: "other", err: errors.New("sysfs-i2c: bad file descriptor")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewGenericBusFrom(&failingBus{err: tt.err})
			err := bus.WriteToAddr(context.Background(), 0x2F, []byte{0x00})
			require.Error(t, err)
			assert.Equal(t, tt.nack, errors.Is(err, digipot.ErrAddressNACK))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
