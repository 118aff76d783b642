// Package gobotbus adapts a gobot I2C connector (e.g. the NanoPi NEO
// adaptor) to digipot.I2CBus.
//
// Example usage:
//
//	adaptor := nanopi.NewNeoAdaptor()
//	if err := adaptor.Connect(); err != nil { log.Fatal(err) }
//	bus := gobotbus.New(adaptor, gobotbus.DefaultBus)
//	dev := ad5274.New(i2c.NewWire(bus), ad5274.AddressGND)
package gobotbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/digipot"
)

// DefaultBus selects the connector's default bus number.
const DefaultBus = -1

var _ digipot.I2CBus = &Bus{}

// Bus keeps one gobot connection per device address.
type Bus struct {
	mx        sync.Mutex
	connector i2c.Connector
	busNr     int
	conns     map[byte]i2c.Connection
}

func New(connector i2c.Connector, busNr int) *Bus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &Bus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]i2c.Connection),
	}
}

func (b *Bus) connection(address byte) (i2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("gobotbus: could not open connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Write(buffer)
	if err != nil {
		return fmt.Errorf("gobotbus: write to %x failed: %w", address, digipot.ClassifyBusError(err))
	}
	if n != len(buffer) {
		return fmt.Errorf("gobotbus: short write to %x (%d of %d): %w", address, n, len(buffer), digipot.ErrDataNACK)
	}
	return nil
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("gobotbus: read from %x failed: %w", address, digipot.ClassifyBusError(err))
	}
	if n != len(buffer) {
		return fmt.Errorf("gobotbus: short read from %x: expected %d, got %d", address, len(buffer), n)
	}
	return nil
}

func (b *Bus) Release(ctx context.Context) error {
	return nil
}

// Close closes every connection opened so far.
func (b *Bus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for address, conn := range b.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gobotbus: could not close connection to %x: %w", address, err))
		}
		delete(b.conns, address)
	}
	return errors.Join(errs...)
}
