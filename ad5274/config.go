package ad5274

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	chlog "github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Config is the declarative description of one device, typically loaded
// from YAML:
//
//	bus: periph:/dev/i2c-1
//	strap: gnd
//	variant: ad5274
//	log_level: debug
type Config struct {
	Bus      string  `yaml:"bus"`
	Strap    Strap   `yaml:"strap"`
	Variant  Variant `yaml:"variant"`
	LogLevel string  `yaml:"log_level"`
}

// Strap is the bus address selected by the ADDR pin.
type Strap byte

func (s Strap) String() string {
	switch byte(s) {
	case AddressGND:
		return "gnd"
	case AddressVDD:
		return "vdd"
	case AddressFloat:
		return "float"
	}
	return fmt.Sprintf("%#x", byte(s))
}

// ParseStrap accepts gnd, vdd, float or a numeric address (e.g. 0x2f).
func ParseStrap(value string) (Strap, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "gnd":
		return Strap(AddressGND), nil
	case "vdd":
		return Strap(AddressVDD), nil
	case "float", "nc":
		return Strap(AddressFloat), nil
	}
	addr, err := strconv.ParseUint(value, 0, 7)
	if err != nil {
		return 0, fmt.Errorf("ad5274: invalid strap %q: %w", value, err)
	}
	return Strap(addr), nil
}

func (s *Strap) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseStrap(node.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Strap) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// ParseVariant accepts ad5272 or ad5274 (case insensitive).
func ParseVariant(value string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "ad5272":
		return AD5272, nil
	case "ad5274":
		return AD5274, nil
	}
	return 0, fmt.Errorf("ad5274: unknown variant %q", value)
}

func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseVariant(node.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Variant) MarshalYAML() (interface{}, error) {
	return strings.ToLower(v.String()), nil
}

// LoadConfig decodes a YAML device description. Missing fields default to
// the grounded strap, the AD5272 and info level logging.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := Config{
		Strap:    Strap(AddressGND),
		Variant:  AD5272,
		LogLevel: "info",
	}
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("ad5274: could not decode config: %w", err)
	}
	if _, err := chlog.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("ad5274: invalid log level %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}

// Address returns the bus address selected by the strap.
func (c Config) Address() byte {
	return byte(c.Strap)
}

// Logger builds a charm logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	charm := chlog.NewWithOptions(w, chlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "ad5274",
	})
	level, err := chlog.ParseLevel(c.LogLevel)
	if err != nil {
		level = chlog.InfoLevel
	}
	charm.SetLevel(level)
	return slog.New(charm)
}

// Options turns the config into device options, logging to w.
func (c Config) Options(w io.Writer) []Opt {
	return []Opt{
		WithVariant(c.Variant),
		WithLogger(c.Logger(w)),
	}
}
