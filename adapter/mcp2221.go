package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/digipot"
	"github.com/mklimuk/digipot/dpctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// maxTransfer is the largest I2C transfer a single HID report can carry.
const maxTransfer = 60

const (
	cmdStatus        = 0x10
	cmdCancelTx      = 0x10
	cmdI2CWrite      = 0x90
	cmdI2CRead       = 0x91
	cmdI2CGetData    = 0x40
	statusBusy       = 0x01
	statusReadError  = 0x41
	invalidDataSize  = 127
	statusNACKOffset = 20
	statusNACKBit    = 0x40
)

var (
	_ digipot.I2CBus      = &MCP2221{}
	_ digipot.Initializer = &MCP2221{}
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 drives a Microchip MCP2221(A) USB to I2C bridge. The HID device
// is opened for every command so several processes can share the bridge.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	index        int
	open         func(index int) (hidDevice, error)
	log          *slog.Logger
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
	AddressNACK            bool   `yaml:"address_nack"`
}

func (s *MCP2221Status) String() string {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

type MCP2221Opt func(*MCP2221)

// WithDeviceIndex selects one of several attached bridges in enumeration order.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(d *MCP2221) {
		d.index = index
	}
}

// WithResponseWait sets the delay between a request and reading its response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func WithLogger(logger *slog.Logger) MCP2221Opt {
	return func(d *MCP2221) {
		d.log = logger
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		index:        -1,
		open:         openHID,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init checks that the bridge answers and cancels any transfer left
// pending by a previous user.
func (d *MCP2221) Init() error {
	status, err := d.ReleaseBus(context.Background())
	if err != nil {
		return fmt.Errorf("mcp2221: init failed: %w", err)
	}
	d.log.Debug("adapter initialized", "speed_divider", status.I2CSpeedDivider, "timeout", status.I2CTimeout)
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("write to %x failed: %d bytes exceed the report size", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// write could not be performed
	switch d.response[1] {
	case 0x00:
	case statusBusy:
		d.log.Debug("adapter busy", "addr", address)
		return digipot.ErrBusBusy
	default:
		return fmt.Errorf("write to %x: %w (%#x)", address, ErrCommandFailed, d.response[1])
	}
	status, err := d.status(ctx, false)
	if err != nil {
		return fmt.Errorf("write to %x: status check failed: %w", address, err)
	}
	if status.AddressNACK {
		if _, err := d.status(ctx, true); err != nil {
			d.log.Warn("could not release bus after NACK", "error", err)
		}
		return fmt.Errorf("write to %x failed: %w", address, digipot.ErrAddressNACK)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("bus read from %x failed: %d bytes exceed the report size", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		return digipot.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CGetData
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == statusReadError || d.response[3] == invalidDataSize {
		if _, err := d.status(ctx, true); err != nil {
			d.log.Warn("could not release bus after failed read", "error", err)
		}
		return fmt.Errorf("bus read from %x failed: %w", address, digipot.ErrAddressNACK)
	}
	if int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:4+len(buffer)])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, false)
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		20: bit 6 set when the last address was not acknowledged
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
		AddressNACK:          buffer[statusNACKOffset]&statusNACKBit != 0,
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels the current transfer so the bus can recover.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.status(ctx, true)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, true)
}

func (d *MCP2221) status(ctx context.Context, cancelTransfer bool) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	if cancelTransfer {
		d.request[2] = cmdCancelTx
	}
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open(d.index)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := dpctx.IsVerbose(ctx)
	if verbose {
		d.log.Info("sending message to adapter", "dump", "\n"+hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.responseWait):
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		d.log.Info("read message from adapter", "dump", "\n"+hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response to %#x echoes %#x", ErrCommandUnsupported, d.request[0], d.response[0])
	}
	return nil
}

func openHID(index int) (hidDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
