// Package ad5274 drives the Analog Devices AD5272/AD5274 single channel
// digital potentiometers (1024/256 positions, 50-TP memory) over I2C.
//
// Datasheet: https://www.analog.com/media/en/technical-documentation/data-sheets/AD5272_5274.pdf
//
// Every exchange with the chip is a 16-bit frame, most significant byte
// first: bits 15:14 are zero, bits 13:10 carry the command and bits 9:0 the
// command data. Reads send a command frame and then fetch two bytes.
//
// Usage:
//
//	dev := ad5274.New(transport, ad5274.AddressGND)
//	if err := dev.Begin(ctx); err != nil { ... }
//	if _, err := dev.ControlWriteVerified(ctx, ad5274.ControlRDACWriteEnable); err != nil { ... }
//	err := dev.Write(ctx, ad5274.CmdRDACWrite, 512)
package ad5274

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mklimuk/digipot"
)

const (
	opWrite  = "write"
	opRead   = "read"
	opVerify = "control write verified"

	frameSize = 2
)

// Device is a handle to one chip. It holds no mutable state, but the chip
// processes one command at a time: calls on a Device must be serialized by
// the caller, as must any other traffic sharing the bus.
type Device struct {
	transport digipot.Transport
	address   byte
	variant   Variant
	log       *slog.Logger
}

// New creates a handle for the chip at address, one of AddressGND,
// AddressVDD or AddressFloat depending on the ADDR pin strap.
func New(transport digipot.Transport, address byte, opts ...Opt) *Device {
	o := Opts{
		Logger:  slog.New(slog.DiscardHandler),
		Variant: AD5272,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Device{
		transport: transport,
		address:   address,
		variant:   o.Variant,
		log:       o.Logger.With("dev", o.Variant.String(), "addr", address),
	}
}

func (d *Device) Address() byte {
	return d.address
}

func (d *Device) Variant() Variant {
	return d.variant
}

// Begin joins the bus as controller.
func (d *Device) Begin(ctx context.Context) error {
	if err := d.transport.Open(ctx); err != nil {
		return fmt.Errorf("ad5274: could not open transport: %w", err)
	}
	return nil
}

// Write sends one of the writable commands (RDAC write, OTP write, software
// reset, control write, shutdown). Invalid commands and data wider than the
// command accepts are rejected without touching the bus. Commands that take
// no data ignore datum.
func (d *Device) Write(ctx context.Context, cmd Command, datum uint16) error {
	perr := &ProtocolError{Op: opWrite, Command: cmd}
	if !cmd.Writable() {
		perr.InvalidCommand = true
	}
	if datum > dataMask || (cmd.DataWidth() > 0 && datum>>cmd.DataWidth() != 0) {
		perr.InvalidDatum = true
	}
	if perr.InvalidCommand || perr.InvalidDatum {
		d.log.Debug("write rejected", "cmd", cmd, "datum", datum, "error", perr)
		return perr
	}
	if cmd.DataWidth() == 0 {
		datum = 0
	}
	perr.TransportErrors = d.send(ctx, NewFrame(cmd, datum))
	if perr.TransportErrors > 0 {
		return perr
	}
	return nil
}

// Read sends a readable command (RDAC read, OTP read, OTP last used,
// control read) and returns the two byte response. For CmdOTPRead location
// selects the 50-TP slot (6 bits); other commands ignore it.
func (d *Device) Read(ctx context.Context, cmd Command, location byte) (uint16, error) {
	perr := &ProtocolError{Op: opRead, Command: cmd}
	if !cmd.Readable() {
		perr.InvalidCommand = true
		d.log.Debug("read rejected", "cmd", cmd, "error", perr)
		return 0, perr
	}
	var data uint16
	if cmd == CmdOTPRead {
		if location > locationMask {
			perr.InvalidDatum = true
			return 0, perr
		}
		data = uint16(location)
	}
	value, errs := d.exchange(ctx, NewFrame(cmd, data))
	if errs > 0 {
		perr.TransportErrors = errs
		return 0, perr
	}
	return value, nil
}

// ControlVerification is the outcome of ControlWriteVerified.
type ControlVerification struct {
	Requested byte
	// ReadBack is the raw control register read after the write.
	ReadBack ControlBits
	// ExtraBits is set when Requested had bits above bit 2. The device
	// ignores them, so the write still went ahead.
	ExtraBits bool
	Mismatch  bool
	// TransportErrors totals the write and read phases.
	TransportErrors int
}

// Errors returns the error count of the legacy API: transport errors plus
// one when Requested carried extra bits.
func (v ControlVerification) Errors() int {
	if v.ExtraBits {
		return v.TransportErrors + 1
	}
	return v.TransportErrors
}

// ControlWriteVerified writes the three control bits, reads the register
// back and compares. Extra bits in control are tolerated since the device
// ignores them. A mismatch is reported as *MismatchError; transport errors
// as *ProtocolError. Both may be returned joined.
func (d *Device) ControlWriteVerified(ctx context.Context, control byte) (ControlVerification, error) {
	res := ControlVerification{
		Requested: control,
		ExtraBits: control > controlMask,
	}
	if res.ExtraBits {
		d.log.Debug("control bits above bit 2 are ignored by the device", "control", control)
	}
	res.TransportErrors = d.send(ctx, NewFrame(CmdControlWrite, uint16(control)))

	value, errs, complete := d.exchangeRaw(ctx, NewFrame(CmdControlRead, 0))
	res.TransportErrors += errs
	res.ReadBack = ControlBits(value)

	var errList []error
	if res.TransportErrors > 0 {
		errList = append(errList, &ProtocolError{Op: opVerify, Command: CmdControlWrite, TransportErrors: res.TransportErrors})
	}
	if complete && byte(value)&controlMask != control&controlMask {
		res.Mismatch = true
		errList = append(errList, &MismatchError{Want: control & controlMask, Got: byte(value) & controlMask})
	}
	d.log.Debug("control register verified", "want", control, "got", res.ReadBack, "errors", res.TransportErrors, "mismatch", res.Mismatch)
	return res, errors.Join(errList...)
}

// IsAvailable polls the device with an empty transaction. The device does
// not acknowledge its address for up to 350 ms after an OTP write and
// briefly after a software reset. The raw transaction status is returned
// for diagnostics.
func (d *Device) IsAvailable(ctx context.Context) (bool, digipot.TxStatus) {
	d.transport.BeginTransaction(d.address)
	status := d.transport.EndTransaction(ctx, true)
	return status == digipot.StatusOK, status
}

// Unlock would set or clear the RDAC and 50-TP write enable bits of the
// control register. Not implemented yet; use ControlWriteVerified.
func (d *Device) Unlock(ctx context.Context, rdac, otp bool) error {
	return &notImplementedError{op: "unlock"}
}

// send writes one command frame and returns the transport error count.
func (d *Device) send(ctx context.Context, f Frame) int {
	b := f.Bytes()
	d.transport.BeginTransaction(d.address)
	accepted := 0
	for _, v := range b {
		if d.transport.QueueByte(v) {
			accepted++
		}
	}
	errs := frameSize - accepted
	status := d.transport.EndTransaction(ctx, true)
	errs += int(status)
	d.log.Debug("frame sent", "frame", f, "bytes", b, "status", status, "errors", errs)
	return errs
}

func (d *Device) exchange(ctx context.Context, f Frame) (uint16, int) {
	value, errs, _ := d.exchangeRaw(ctx, f)
	return value, errs
}

// exchangeRaw sends a command frame and fetches the two byte response.
// complete reports whether both response bytes arrived.
func (d *Device) exchangeRaw(ctx context.Context, f Frame) (uint16, int, bool) {
	errs := d.send(ctx, f)
	n := d.transport.RequestBytes(ctx, d.address, frameSize, true)
	if n < frameSize {
		errs += frameSize - n
	}
	var buf [frameSize]byte
	for i := 0; i < n && i < frameSize; i++ {
		buf[i] = d.transport.NextByte()
	}
	value := Decode(buf[0], buf[1])
	d.log.Debug("response received", "cmd", f.Command(), "received", n, "value", value, "errors", errs)
	return value, errs, n >= frameSize
}
