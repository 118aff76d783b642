package ad5274

import (
	"context"
	"sync"
	"time"

	"github.com/mklimuk/digipot"
)

var _ digipot.Transport = &Simulator{}

// ResetBusyTime is how long the simulated device ignores the bus after a
// software reset. The datasheet does not document this window.
const ResetBusyTime = 2 * time.Millisecond

const midscale = 0x200

// Simulator is an in-memory AD5272/AD5274 that implements digipot.Transport.
// It can be used to exercise code built on Device without hardware.
//
// It models the RDAC and control registers, 50-TP memory, write
// protection, shutdown and the busy windows following OTP writes and
// software resets, during which the address is not acknowledged.
type Simulator struct {
	mx sync.Mutex

	address byte
	now     func() time.Time
	maxTx   int

	rdac      uint16
	control   byte
	otp       [OTPSlots + 1]uint16
	otpLast   byte
	shutdown  bool
	busyUntil time.Time
	response  uint16

	txAddr   byte
	txBuf    []byte
	rxBuf    []byte
	injected []digipot.TxStatus
	shortRx  int
	rejectAt int
	frames   []Frame
}

type SimulatorOpt func(*Simulator)

// WithClock replaces time.Now, letting tests step through busy windows.
func WithClock(now func() time.Time) SimulatorOpt {
	return func(s *Simulator) {
		s.now = now
	}
}

// NewSimulator returns a device in its power-on state: wiper at midscale,
// control register cleared, no 50-TP slot programmed.
func NewSimulator(address byte, opts ...SimulatorOpt) *Simulator {
	s := &Simulator{
		address:  address,
		now:      time.Now,
		maxTx:    32,
		rdac:     midscale,
		rejectAt: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Open(ctx context.Context) error {
	return nil
}

func (s *Simulator) BeginTransaction(address byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.txAddr = address
	s.txBuf = s.txBuf[:0]
}

func (s *Simulator) QueueByte(value byte) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.txBuf) >= s.maxTx || len(s.txBuf) == s.rejectAt {
		s.rejectAt = -1
		return false
	}
	s.txBuf = append(s.txBuf, value)
	return true
}

func (s *Simulator) EndTransaction(ctx context.Context, sendStop bool) digipot.TxStatus {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.injected) > 0 {
		status := s.injected[0]
		s.injected = s.injected[1:]
		return status
	}
	if s.txAddr != s.address || s.busy() {
		return digipot.StatusAddressNACK
	}
	if len(s.txBuf) == 0 {
		return digipot.StatusOK
	}
	if len(s.txBuf) != frameSize {
		return digipot.StatusDataNACK
	}
	s.execute(Frame(Decode(s.txBuf[0], s.txBuf[1])))
	return digipot.StatusOK
}

func (s *Simulator) RequestBytes(ctx context.Context, address byte, count int, sendStop bool) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.rxBuf = s.rxBuf[:0]
	if address != s.address || s.busy() {
		return 0
	}
	resp := [frameSize]byte{byte(s.response >> 8), byte(s.response)}
	for i := 0; i < count; i++ {
		s.rxBuf = append(s.rxBuf, resp[i%frameSize])
	}
	if s.shortRx > 0 {
		cut := min(s.shortRx, len(s.rxBuf))
		s.rxBuf = s.rxBuf[:len(s.rxBuf)-cut]
		s.shortRx = 0
	}
	return len(s.rxBuf)
}

func (s *Simulator) NextByte() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.rxBuf) == 0 {
		return 0xFF
	}
	b := s.rxBuf[0]
	s.rxBuf = s.rxBuf[1:]
	return b
}

// InjectStatus makes the following EndTransaction calls return the given
// statuses, in order, without executing the transaction.
func (s *Simulator) InjectStatus(status ...digipot.TxStatus) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.injected = append(s.injected, status...)
}

// DropResponseBytes makes the next RequestBytes return n bytes fewer.
func (s *Simulator) DropResponseBytes(n int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.shortRx = n
}

// RejectByte makes QueueByte refuse the byte at index i of the next transaction.
func (s *Simulator) RejectByte(i int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.rejectAt = i
}

// Wiper returns the raw RDAC register.
func (s *Simulator) Wiper() uint16 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.rdac
}

// Control returns the control register including the program success bit.
func (s *Simulator) Control() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.control
}

// IsShutdown reports whether the simulated device is in shutdown mode.
func (s *Simulator) IsShutdown() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.shutdown
}

// OTP returns the value stored in the given 50-TP slot.
func (s *Simulator) OTP(location byte) uint16 {
	s.mx.Lock()
	defer s.mx.Unlock()
	if int(location) > OTPSlots {
		return 0
	}
	return s.otp[location]
}

// Frames returns every frame the simulator executed.
func (s *Simulator) Frames() []Frame {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]Frame(nil), s.frames...)
}

func (s *Simulator) busy() bool {
	return s.now().Before(s.busyUntil)
}

func (s *Simulator) execute(f Frame) {
	s.frames = append(s.frames, f)
	data := f.Data()
	switch f.Command() {
	case CmdRDACWrite:
		if s.control&ControlRDACWriteEnable != 0 {
			s.rdac = data
		}
	case CmdRDACRead:
		s.response = s.rdac
	case CmdOTPWrite:
		if s.control&ControlOTPWriteEnable == 0 || int(s.otpLast) >= OTPSlots {
			s.control &^= ControlOTPProgramSuccess
			return
		}
		s.otpLast++
		s.otp[s.otpLast] = s.rdac
		s.control |= ControlOTPProgramSuccess
		s.busyUntil = s.now().Add(OTPBusyTime)
	case CmdSoftwareReset:
		s.rdac = midscale
		if s.otpLast > 0 {
			s.rdac = s.otp[s.otpLast]
		}
		s.busyUntil = s.now().Add(ResetBusyTime)
	case CmdOTPRead:
		loc := data & locationMask
		if int(loc) <= OTPSlots {
			s.response = s.otp[loc]
		} else {
			s.response = 0
		}
	case CmdOTPLastUsed:
		s.response = uint16(s.otpLast)
	case CmdControlWrite:
		s.control = s.control&ControlOTPProgramSuccess | byte(data)&controlMask
	case CmdControlRead:
		s.response = uint16(s.control)
	case CmdShutdown:
		s.shutdown = data&0x01 != 0
	}
}
