package ad5274

import (
	"fmt"
	"log/slog"
)

// Bus addresses selected by the ADDR pin strap.
const (
	AddressGND   byte = 0x2F
	AddressVDD   byte = 0x2C
	AddressFloat byte = 0x2E // unipolar supply only
)

// Variant selects the wiper resolution of the part.
type Variant int

const (
	// AD5272 has a 10-bit wiper (1024 positions).
	AD5272 Variant = iota
	// AD5274 has an 8-bit wiper (256 positions) carried in data bits 9:2.
	AD5274
)

func (v Variant) String() string {
	switch v {
	case AD5272:
		return "AD5272"
	case AD5274:
		return "AD5274"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Positions returns the number of wiper positions.
func (v Variant) Positions() int {
	if v == AD5274 {
		return 256
	}
	return 1024
}

func (v Variant) shift() uint {
	if v == AD5274 {
		return 2
	}
	return 0
}

type Opts struct {
	Logger  *slog.Logger
	Variant Variant
}

type Opt func(*Opts)

// WithLogger sets the logger used for frame level diagnostics. Frames are
// logged at debug level, so verbosity follows the handler's level.
func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

func WithVariant(v Variant) Opt {
	return func(o *Opts) {
		o.Variant = v
	}
}
