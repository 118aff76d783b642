package ad5274

import (
	"context"
	"fmt"
	"strings"
)

// Control register bits (command 7 writes C2:C0, command 8 reads C3:C0).
const (
	// ControlOTPWriteEnable allows storing the wiper in 50-TP memory. Default cleared.
	ControlOTPWriteEnable byte = 0x01
	// ControlRDACWriteEnable allows writes to the wiper register. Default cleared,
	// the wiper is then frozen to the last 50-TP value.
	ControlRDACWriteEnable byte = 0x02
	// ControlCalibrationDisable turns off resistor performance mode. Default cleared (enabled).
	ControlCalibrationDisable byte = 0x04
	// ControlOTPProgramSuccess is set by the device after a successful 50-TP write. Read only.
	ControlOTPProgramSuccess byte = 0x08
)

// ControlBits is the content of the control register as read back.
type ControlBits uint16

func (c ControlBits) OTPWriteEnabled() bool {
	return byte(c)&ControlOTPWriteEnable != 0
}

func (c ControlBits) RDACWriteEnabled() bool {
	return byte(c)&ControlRDACWriteEnable != 0
}

func (c ControlBits) CalibrationEnabled() bool {
	return byte(c)&ControlCalibrationDisable == 0
}

func (c ControlBits) OTPProgrammed() bool {
	return byte(c)&ControlOTPProgramSuccess != 0
}

func (c ControlBits) String() string {
	var flags []string
	if c.OTPWriteEnabled() {
		flags = append(flags, "otp-write")
	}
	if c.RDACWriteEnabled() {
		flags = append(flags, "rdac-write")
	}
	if !c.CalibrationEnabled() {
		flags = append(flags, "calib-off")
	}
	if c.OTPProgrammed() {
		flags = append(flags, "otp-ok")
	}
	return fmt.Sprintf("%#x[%s]", uint16(c)&0x0F, strings.Join(flags, ","))
}

// ReadControl reads the control register.
func (d *Device) ReadControl(ctx context.Context) (ControlBits, error) {
	v, err := d.Read(ctx, CmdControlRead, 0)
	if err != nil {
		return 0, err
	}
	return ControlBits(v & 0x0F), nil
}
