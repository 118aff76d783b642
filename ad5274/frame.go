package ad5274

import "fmt"

// Command is the 4-bit command code carried in bits 13:10 of every frame.
// See Table 12 of the AD5272/AD5274 datasheet (Rev. D).
type Command uint8

const (
	CmdNOP Command = iota
	// CmdRDACWrite writes data bits to the wiper register. Requires ControlRDACWriteEnable.
	CmdRDACWrite
	CmdRDACRead
	// CmdOTPWrite stores the current wiper setting in the next 50-TP slot.
	// Requires ControlOTPWriteEnable. Only 50 writes are possible per chip.
	CmdOTPWrite
	// CmdSoftwareReset refreshes the wiper with the last stored 50-TP value.
	CmdSoftwareReset
	// CmdOTPRead reads the 50-TP slot addressed by data bits 5:0 in the next frame.
	CmdOTPRead
	// CmdOTPLastUsed reads the address of the last programmed 50-TP slot.
	CmdOTPLastUsed
	// CmdControlWrite writes data bits 2:0 to the control register.
	CmdControlWrite
	CmdControlRead
	// CmdShutdown enters shutdown when data bit 0 is set, normal mode when cleared.
	CmdShutdown
)

const (
	commandShift = 10
	commandMask  = 0x0F
	dataMask     = 0x3FF
	locationMask = 0x3F
	controlMask  = 0x07
)

var commandNames = [...]string{
	CmdNOP:           "nop",
	CmdRDACWrite:     "rdac-write",
	CmdRDACRead:      "rdac-read",
	CmdOTPWrite:      "otp-write",
	CmdSoftwareReset: "software-reset",
	CmdOTPRead:       "otp-read",
	CmdOTPLastUsed:   "otp-last-used",
	CmdControlWrite:  "control-write",
	CmdControlRead:   "control-read",
	CmdShutdown:      "shutdown",
}

func (c Command) String() string {
	if c.Valid() {
		return commandNames[c]
	}
	return fmt.Sprintf("command(%#x)", uint8(c))
}

// Valid reports whether c is one of the ten codes the device understands.
func (c Command) Valid() bool {
	return c <= CmdShutdown
}

// Writable reports whether c is accepted by Device.Write.
func (c Command) Writable() bool {
	switch c {
	case CmdRDACWrite, CmdOTPWrite, CmdSoftwareReset, CmdControlWrite, CmdShutdown:
		return true
	}
	return false
}

// Readable reports whether c is accepted by Device.Read.
func (c Command) Readable() bool {
	switch c {
	case CmdRDACRead, CmdOTPRead, CmdOTPLastUsed, CmdControlRead:
		return true
	}
	return false
}

// DataWidth returns the number of data bits the command uses.
func (c Command) DataWidth() int {
	switch c {
	case CmdRDACWrite, CmdShutdown:
		return 10
	case CmdOTPRead:
		return 6
	case CmdControlWrite:
		return 3
	}
	return 0
}

// Frame is the 16-bit unit exchanged with the device:
// bits 15:14 are zero, 13:10 hold the command, 9:0 the data.
type Frame uint16

// NewFrame packs cmd and data. Data above 10 bits is silently truncated.
func NewFrame(cmd Command, data uint16) Frame {
	return Frame(uint16(cmd&commandMask)<<commandShift | data&dataMask)
}

func (f Frame) Command() Command {
	return Command(uint16(f) >> commandShift & commandMask)
}

func (f Frame) Data() uint16 {
	return uint16(f) & dataMask
}

// Bytes returns the frame in transmission order, most significant byte first.
func (f Frame) Bytes() [2]byte {
	return [2]byte{byte(f >> 8), byte(f)}
}

func (f Frame) String() string {
	return fmt.Sprintf("%s(0x%03x)", f.Command(), f.Data())
}

// Encode builds the two wire bytes for cmd and data.
func Encode(cmd Command, data uint16) [2]byte {
	return NewFrame(cmd, data).Bytes()
}

// Decode joins two received bytes into a 16-bit value. Which bits are
// meaningful depends on the register that was read.
func Decode(msb, lsb byte) uint16 {
	return uint16(msb)<<8 | uint16(lsb)
}
