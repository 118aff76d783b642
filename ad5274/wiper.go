package ad5274

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/digipot"
)

// OTPSlots is the number of 50-TP memory locations (addressed 1..50).
const OTPSlots = 50

// OTPBusyTime is the worst case time the device ignores the bus after an OTP write.
const OTPBusyTime = 350 * time.Millisecond

// WiperWrite moves the wiper to position (0..Positions()-1 of the variant).
// The wiper must have been unlocked with ControlRDACWriteEnable.
func (d *Device) WiperWrite(ctx context.Context, position uint16) error {
	if int(position) >= d.variant.Positions() {
		return &ProtocolError{Op: opWrite, Command: CmdRDACWrite, InvalidDatum: true}
	}
	return d.Write(ctx, CmdRDACWrite, position<<d.variant.shift())
}

// WiperRead returns the current wiper position.
func (d *Device) WiperRead(ctx context.Context) (uint16, error) {
	v, err := d.Read(ctx, CmdRDACRead, 0)
	if err != nil {
		return 0, err
	}
	return (v & dataMask) >> d.variant.shift(), nil
}

// StoreWiper copies the current wiper setting to the next free 50-TP slot.
// The device stays busy for up to OTPBusyTime afterwards; use WaitAvailable.
func (d *Device) StoreWiper(ctx context.Context) error {
	return d.Write(ctx, CmdOTPWrite, 0)
}

// SoftwareReset reloads the wiper from the last programmed 50-TP slot
// (midscale if none was programmed).
func (d *Device) SoftwareReset(ctx context.Context) error {
	return d.Write(ctx, CmdSoftwareReset, 0)
}

// Shutdown puts the device in shutdown mode (terminal A open) or resumes normal mode.
func (d *Device) Shutdown(ctx context.Context, enable bool) error {
	var data uint16
	if enable {
		data = 1
	}
	return d.Write(ctx, CmdShutdown, data)
}

// ReadOTP returns the wiper position stored in 50-TP slot location (1..50).
func (d *Device) ReadOTP(ctx context.Context, location byte) (uint16, error) {
	if location < 1 || location > OTPSlots {
		return 0, &ProtocolError{Op: opRead, Command: CmdOTPRead, InvalidDatum: true}
	}
	v, err := d.Read(ctx, CmdOTPRead, location)
	if err != nil {
		return 0, err
	}
	return (v & dataMask) >> d.variant.shift(), nil
}

// LastUsedOTP returns the address of the last programmed 50-TP slot, 0 when
// the memory was never programmed.
func (d *Device) LastUsedOTP(ctx context.Context) (byte, error) {
	v, err := d.Read(ctx, CmdOTPLastUsed, 0)
	if err != nil {
		return 0, err
	}
	return byte(v & locationMask), nil
}

// WaitAvailable polls IsAvailable every interval until the device
// acknowledges its address or ctx is done. It returns the last status seen.
// A non-positive interval is rejected with ErrInvalidInterval.
func (d *Device) WaitAvailable(ctx context.Context, interval time.Duration) (digipot.TxStatus, error) {
	if interval <= 0 {
		return digipot.StatusOther, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, status := d.IsAvailable(ctx)
		if ok {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("ad5274: device still busy (%s): %w", status, ctx.Err())
		case <-ticker.C:
		}
	}
}
