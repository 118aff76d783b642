// Package busopen opens an I2C bus described by a short path:
//
//	mcp2221            the only attached MCP2221 USB bridge
//	mcp2221:1          the second attached bridge
//	periph             first bus found by periph.io
//	periph:/dev/i2c-1  a Linux i2c-dev bus through periph.io
//	nanopi             NanoPi NEO default bus through gobot
//	nanopi:0           NanoPi NEO bus 0
package busopen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/digipot"
	"github.com/mklimuk/digipot/ad5274"
	"github.com/mklimuk/digipot/adapter"
	"github.com/mklimuk/digipot/gobotbus"
	"github.com/mklimuk/digipot/i2c"
)

type Kind string

const (
	KindMCP2221 Kind = "mcp2221"
	KindPeriph  Kind = "periph"
	KindNanoPi  Kind = "nanopi"
)

var ErrUnknownBus = errors.New("busopen: bus type not supported, use 'mcp2221', 'periph' or 'nanopi'")

// Path is a parsed bus path.
type Path struct {
	Kind Kind
	// Index is the bridge index (mcp2221) or bus number (nanopi), -1 for the default.
	Index int
	// Device is the periph bus name.
	Device string
}

func (p Path) String() string {
	switch p.Kind {
	case KindPeriph:
		if p.Device == "" {
			return string(p.Kind)
		}
		return string(p.Kind) + ":" + p.Device
	default:
		if p.Index < 0 {
			return string(p.Kind)
		}
		return fmt.Sprintf("%s:%d", p.Kind, p.Index)
	}
}

func Parse(path string) (Path, error) {
	kind, rest, _ := strings.Cut(strings.TrimSpace(path), ":")
	p := Path{Kind: Kind(strings.ToLower(kind)), Index: -1}
	switch p.Kind {
	case KindPeriph:
		p.Device = rest
	case KindMCP2221, KindNanoPi:
		if rest == "" {
			break
		}
		index, err := strconv.Atoi(rest)
		if err != nil || index < 0 {
			return Path{}, fmt.Errorf("busopen: invalid index %q in %q", rest, path)
		}
		p.Index = index
	default:
		return Path{}, fmt.Errorf("%w: %q", ErrUnknownBus, path)
	}
	return p, nil
}

// Bus is an opened bus. Close releases the underlying hardware.
type Bus struct {
	digipot.I2CBus
	Path  Path
	close func() error
}

func (b *Bus) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open parses path and opens the bus it names.
func Open(ctx context.Context, path string) (*Bus, error) {
	p, err := Parse(path)
	if err != nil {
		return nil, err
	}
	switch p.Kind {
	case KindMCP2221:
		var opts []adapter.MCP2221Opt
		if p.Index >= 0 {
			opts = append(opts, adapter.WithDeviceIndex(p.Index))
		}
		bridge := adapter.NewMCP2221(opts...)
		return &Bus{I2CBus: bridge, Path: p}, nil
	case KindPeriph:
		bus, err := i2c.NewGenericBus(p.Device)
		if err != nil {
			return nil, fmt.Errorf("busopen: %w", err)
		}
		return &Bus{I2CBus: bus, Path: p, close: bus.Close}, nil
	case KindNanoPi:
		board := nanopi.NewNeoAdaptor()
		if err := board.Connect(); err != nil {
			return nil, fmt.Errorf("busopen: could not connect nanopi adaptor: %w", err)
		}
		bus := gobotbus.New(board, p.Index)
		return &Bus{I2CBus: bus, Path: p, close: func() error {
			return errors.Join(bus.Close(), board.Finalize())
		}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBus, path)
}

// OpenDevice opens the bus named by cfg.Bus and returns the device behind
// it, logging to logw at the configured level. The device is not begun.
// Closing the returned bus releases the hardware.
func OpenDevice(ctx context.Context, cfg ad5274.Config, logw io.Writer) (*ad5274.Device, *Bus, error) {
	if cfg.Bus == "" {
		return nil, nil, fmt.Errorf("%w: no bus configured", ErrUnknownBus)
	}
	bus, err := Open(ctx, cfg.Bus)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Logger(logw)
	wire := i2c.NewWire(bus, i2c.WithWireLogger(logger.With("bus", bus.Path.String())))
	dev := ad5274.New(wire, cfg.Address(), cfg.Options(logw)...)
	return dev, bus, nil
}
