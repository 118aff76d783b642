package digipot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrAddressNACK is returned by buses when no device acknowledged the address byte.
// Devices that are busy programming (e.g. after an OTP write) NACK their address.
var ErrAddressNACK = errors.New("address not acknowledged")

// ErrDataNACK is returned by buses when a data byte was not acknowledged.
var ErrDataNACK = errors.New("data not acknowledged")

// nackMarkers are fragments of driver error messages meaning the device did
// not acknowledge: Linux i2c-dev returns ENXIO or EREMOTEIO, USB bridges
// mostly say NACK.
var nackMarkers = []string{"NACK", "no such device or address", "remote I/O", "input/output error"}

// ClassifyBusError wraps err with ErrAddressNACK when the driver message
// shows the address was not acknowledged. Other errors are returned unchanged.
func ClassifyBusError(err error) error {
	if err == nil || errors.Is(err, ErrAddressNACK) || errors.Is(err, ErrDataNACK) {
		return err
	}
	msg := err.Error()
	for _, marker := range nackMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrAddressNACK, err)
		}
	}
	return err
}

// StatusOf maps a bus error to the transaction status reported by a Transport.
func StatusOf(err error) TxStatus {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrAddressNACK), errors.Is(err, ErrBusBusy):
		return StatusAddressNACK
	case errors.Is(err, ErrDataNACK):
		return StatusDataNACK
	}
	return StatusOther
}

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// Transferer is implemented by buses able to write and read in one
// transaction (repeated start, no stop in between).
type Transferer interface {
	Tx(ctx context.Context, address byte, w, r []byte) error
}

// Initializer is implemented by buses that need explicit initialization.
type Initializer interface {
	Init() error
}

// TxStatus is the per-transaction status reported when a transaction ends.
// Zero means success, any other value is a transport defined error class.
type TxStatus uint8

const (
	StatusOK TxStatus = iota
	StatusDataTooLong
	StatusAddressNACK
	StatusDataNACK
	StatusOther
)

func (s TxStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDataTooLong:
		return "data too long"
	case StatusAddressNACK:
		return "address NACK"
	case StatusDataNACK:
		return "data NACK"
	case StatusOther:
		return "other error"
	default:
		return fmt.Sprintf("status %d", uint8(s))
	}
}

// Transport is a transaction oriented two-wire bus controller. Bytes queued
// between BeginTransaction and EndTransaction are sent as one write;
// RequestBytes reads from the device into a buffer drained with NextByte.
type Transport interface {
	// Open initializes the bus as controller. It is idempotent.
	Open(ctx context.Context) error
	BeginTransaction(address byte)
	// QueueByte appends value to the outgoing buffer and reports whether it was accepted.
	QueueByte(value byte) bool
	EndTransaction(ctx context.Context, sendStop bool) TxStatus
	// RequestBytes reads count bytes from address and returns how many were received.
	RequestBytes(ctx context.Context, address byte, count int, sendStop bool) int
	// NextByte returns the next received byte in transmission order.
	NextByte() byte
}
