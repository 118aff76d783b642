package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/digipot"
)

var _ digipot.Transport = &Wire{}

// BufferSize is the capacity of the transmit and receive buffers.
const BufferSize = 32

// Wire is a transaction oriented digipot.Transport on top of any I2CBus.
// Bytes are buffered between BeginTransaction and EndTransaction and sent
// as a single bus write. Reads are buffered and drained with NextByte.
//
// Ending a transaction without stop holds the written bytes back when the
// bus is a digipot.Transferer, so that the following RequestBytes to the
// same address is issued as one combined transfer.
type Wire struct {
	mx  sync.Mutex
	bus digipot.I2CBus
	log *slog.Logger

	opened   bool
	address  byte
	tx       []byte
	overflow bool

	pending     []byte
	pendingAddr byte
	hasPending  bool

	rx []byte
}

type WireOpt func(*Wire)

func WithWireLogger(logger *slog.Logger) WireOpt {
	return func(w *Wire) {
		w.log = logger
	}
}

func NewWire(bus digipot.I2CBus, opts ...WireOpt) *Wire {
	w := &Wire{
		bus: bus,
		log: slog.New(slog.DiscardHandler),
		tx:  make([]byte, 0, BufferSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open initializes the underlying bus once, if it needs initialization.
func (w *Wire) Open(ctx context.Context) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.opened {
		return nil
	}
	if initializer, ok := w.bus.(digipot.Initializer); ok {
		if err := initializer.Init(); err != nil {
			return fmt.Errorf("i2c: could not initialize bus: %w", err)
		}
	}
	w.opened = true
	return nil
}

func (w *Wire) BeginTransaction(address byte) {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.address = address
	w.tx = w.tx[:0]
	w.overflow = false
}

func (w *Wire) QueueByte(value byte) bool {
	w.mx.Lock()
	defer w.mx.Unlock()
	if len(w.tx) >= BufferSize {
		w.overflow = true
		return false
	}
	w.tx = append(w.tx, value)
	return true
}

// EndTransaction sends the queued bytes. An empty transaction probes the
// address with a one byte read, since zero length writes are not supported
// by every bus. Bytes held back by an earlier transaction without stop are
// written first; their failure is reported if the new transaction succeeds.
func (w *Wire) EndTransaction(ctx context.Context, sendStop bool) digipot.TxStatus {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.overflow {
		return digipot.StatusDataTooLong
	}
	flushed := w.flush(ctx)
	if !sendStop && len(w.tx) > 0 {
		if _, ok := w.bus.(digipot.Transferer); ok {
			w.pending = append(w.pending[:0], w.tx...)
			w.pendingAddr = w.address
			w.hasPending = true
			return flushed
		}
	}
	var err error
	if len(w.tx) == 0 {
		err = w.bus.ReadFromAddr(ctx, w.address, make([]byte, 1))
	} else {
		err = w.bus.WriteToAddr(ctx, w.address, w.tx)
	}
	status := digipot.StatusOf(err)
	if err != nil {
		w.log.Debug("transaction failed", "addr", w.address, "bytes", len(w.tx), "status", status, "error", err)
		return status
	}
	return flushed
}

// flush writes bytes held back for a combined transfer that never came.
func (w *Wire) flush(ctx context.Context) digipot.TxStatus {
	if !w.hasPending {
		return digipot.StatusOK
	}
	w.hasPending = false
	err := w.bus.WriteToAddr(ctx, w.pendingAddr, w.pending)
	status := digipot.StatusOf(err)
	if err != nil {
		w.log.Debug("held back write failed", "addr", w.pendingAddr, "bytes", len(w.pending), "status", status, "error", err)
	}
	return status
}

// RequestBytes reads up to BufferSize bytes from address and returns the
// number received, zero on failure.
func (w *Wire) RequestBytes(ctx context.Context, address byte, count int, sendStop bool) int {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.rx = w.rx[:0]
	if count <= 0 {
		return 0
	}
	count = min(count, BufferSize)
	buf := make([]byte, count)
	var err error
	if w.hasPending && w.pendingAddr == address {
		w.hasPending = false
		err = w.bus.(digipot.Transferer).Tx(ctx, address, w.pending, buf)
	} else {
		w.flush(ctx)
		err = w.bus.ReadFromAddr(ctx, address, buf)
	}
	if err != nil {
		w.log.Debug("read failed", "addr", address, "count", count, "error", err)
		return 0
	}
	w.rx = append(w.rx, buf...)
	return count
}

// NextByte returns the next received byte, 0xFF when the buffer is drained.
func (w *Wire) NextByte() byte {
	w.mx.Lock()
	defer w.mx.Unlock()
	if len(w.rx) == 0 {
		return 0xFF
	}
	b := w.rx[0]
	w.rx = w.rx[1:]
	return b
}

// Release lets the bus recover after a failed transaction.
func (w *Wire) Release(ctx context.Context) error {
	return w.bus.Release(ctx)
}
