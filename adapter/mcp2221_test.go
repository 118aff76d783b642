package adapter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/digipot"
	"github.com/mklimuk/digipot/dpctx"
)

// fakeHID records requests and answers with queued reports.
type fakeHID struct {
	requests  [][]byte
	responses [][]byte
	closed    int
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.requests = append(f.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	if len(f.responses) == 0 {
		return 0, errors.New("no response queued")
	}
	n := copy(b, f.responses[0])
	f.responses = f.responses[1:]
	return n, nil
}

func (f *fakeHID) Close() error {
	f.closed++
	return nil
}

func (f *fakeHID) queue(cmd byte, fields map[int]byte) {
	r := make([]byte, reportSize)
	r[0] = cmd
	for i, v := range fields {
		r[i] = v
	}
	f.responses = append(f.responses, r)
}

func newTestAdapter(dev *fakeHID, opts ...MCP2221Opt) *MCP2221 {
	opts = append([]MCP2221Opt{WithResponseWait(0), WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	a := NewMCP2221(opts...)
	a.open = func(index int) (hidDevice, error) {
		return dev, nil
	}
	return a
}

func TestMCP2221_WriteToAddr(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(cmdI2CWrite, nil)
	dev.queue(cmdStatus, nil)
	a := newTestAdapter(dev)

	err := a.WriteToAddr(context.Background(), 0x2F, []byte{0x1C, 0x02})
	require.NoError(t, err)
	require.Len(t, dev.requests, 2)
	assert.Equal(t, []byte{cmdI2CWrite, 0x02, 0x00, 0x5E, 0x1C, 0x02}, dev.requests[0][:6])
	assert.Equal(t, byte(cmdStatus), dev.requests[1][0])
	assert.Zero(t, dev.requests[1][2], "status check must not cancel the transfer")
	assert.Equal(t, 2, dev.closed)
}

func TestMCP2221_WriteToAddr_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakeHID)
		target error
	}{
		{
			name: "busy",
			setup: func(dev *fakeHID) {
				dev.queue(cmdI2CWrite, map[int]byte{1: statusBusy})
			},
			target: digipot.ErrBusBusy,
		},
		{
			name: "failed",
			setup: func(dev *fakeHID) {
				dev.queue(cmdI2CWrite, map[int]byte{1: 0x02})
			},
			target: ErrCommandFailed,
		},
		{
			name: "address nack",
			setup: func(dev *fakeHID) {
				dev.queue(cmdI2CWrite, nil)
				dev.queue(cmdStatus, map[int]byte{statusNACKOffset: statusNACKBit})
				dev.queue(cmdStatus, nil)
			},
			target: digipot.ErrAddressNACK,
		},
		{
			name: "unexpected echo",
			setup: func(dev *fakeHID) {
				dev.queue(0x00, nil)
			},
			target: ErrCommandUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeHID{}
			tt.setup(dev)
			a := newTestAdapter(dev)

			err := a.WriteToAddr(context.Background(), 0x2C, []byte{0x00})
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, dev.responses)
		})
	}
}

func TestMCP2221_WriteToAddr_TooLong(t *testing.T) {
	dev := &fakeHID{}
	a := newTestAdapter(dev)
	err := a.WriteToAddr(context.Background(), 0x2C, make([]byte, maxTransfer+1))
	assert.Error(t, err)
	assert.Empty(t, dev.requests)
}

func TestMCP2221_ReadFromAddr(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(cmdI2CRead, nil)
	dev.queue(cmdI2CGetData, map[int]byte{3: 2, 4: 0x00, 5: 0x05})
	a := newTestAdapter(dev)

	buf := make([]byte, 2)
	require.NoError(t, a.ReadFromAddr(context.Background(), 0x2F, buf))
	assert.Equal(t, []byte{0x00, 0x05}, buf)
	assert.Equal(t, []byte{cmdI2CRead, 0x02, 0x00, 0x5F}, dev.requests[0][:4])
	assert.Equal(t, byte(cmdI2CGetData), dev.requests[1][0])
}

func TestMCP2221_ReadFromAddr_NACK(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(cmdI2CRead, nil)
	dev.queue(cmdI2CGetData, map[int]byte{1: statusReadError, 3: invalidDataSize})
	dev.queue(cmdStatus, nil)
	a := newTestAdapter(dev)

	err := a.ReadFromAddr(context.Background(), 0x2F, make([]byte, 2))
	assert.ErrorIs(t, err, digipot.ErrAddressNACK)
	require.Len(t, dev.requests, 3)
	assert.Equal(t, byte(cmdCancelTx), dev.requests[2][2], "bus must be released")
}

func TestMCP2221_ReadFromAddr_SizeMismatch(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(cmdI2CRead, nil)
	dev.queue(cmdI2CGetData, map[int]byte{3: 1})
	a := newTestAdapter(dev)

	err := a.ReadFromAddr(context.Background(), 0x2F, make([]byte, 2))
	assert.EqualError(t, err, "invalid data size byte; expected 2, got 1")
}

func TestMCP2221_ReleaseBus(t *testing.T) {
	dev := &fakeHID{}
	dev.queue(cmdStatus, map[int]byte{14: 0x76, 15: 0x0A, 16: 0x5E})
	a := newTestAdapter(dev)

	status, err := a.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(cmdCancelTx), dev.requests[0][2])
	assert.Equal(t, 0x76, status.I2CSpeedDivider)
	assert.Equal(t, 10, status.I2CTimeout)
	assert.Equal(t, "5e00", status.CurrentAddress)
	assert.Contains(t, status.String(), "current_address:")
	assert.Contains(t, status.String(), "5e00")
}

func TestMCP2221_Init(t *testing.T) {
	a := NewMCP2221(WithResponseWait(0))
	a.open = func(index int) (hidDevice, error) {
		return nil, ErrDeviceNotFound
	}
	err := a.Init()
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestMCP2221_VerboseDump(t *testing.T) {
	var buf bytes.Buffer
	dev := &fakeHID{}
	dev.queue(cmdStatus, nil)
	a := newTestAdapter(dev, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := a.Status(dpctx.SetVerbose(context.Background(), true))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sending message to adapter")
	assert.Contains(t, buf.String(), "read message from adapter")
}

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, reportSize)
	buf[9], buf[10] = 0x02, 0x00
	buf[11], buf[12] = 0x01, 0x00
	buf[13] = 3
	buf[25] = 1
	buf[statusNACKOffset] = statusNACKBit
	status := bufferToStatus(buf)
	assert.Equal(t, uint16(2), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(1), status.LastWriteSentSize)
	assert.Equal(t, 3, status.I2CDataBufferCounter)
	assert.Equal(t, 1, status.ReadPending)
	assert.True(t, status.AddressNACK)
}
