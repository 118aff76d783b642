package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"

	"github.com/mklimuk/digipot/ad5274"
	"github.com/mklimuk/digipot/busopen"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func HardwareTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hwtest",
		Short: "Run tests against a real potentiometer",
		Long: `Run the hardware tagged tests of the ad5274 package against a chip.

The chip is described either by a YAML device config or by flags.

Examples:
  dev hwtest --bus mcp2221
  dev hwtest --bus periph:/dev/i2c-1 --strap vdd --variant ad5274
  dev hwtest --config bench.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("could not get config flag: %w", err)
			}
			if config != "" {
				env, err := configEnv(config)
				if err != nil {
					return err
				}
				return runHardwareTests(cmd, env...)
			}
			bus, err := cmd.Flags().GetString("bus")
			if err != nil {
				return fmt.Errorf("could not get bus flag: %w", err)
			}
			if _, err := busopen.Parse(bus); err != nil {
				return err
			}
			strap, err := cmd.Flags().GetString("strap")
			if err != nil {
				return fmt.Errorf("could not get strap flag: %w", err)
			}
			if _, err := ad5274.ParseStrap(strap); err != nil {
				return err
			}
			variant, err := cmd.Flags().GetString("variant")
			if err != nil {
				return fmt.Errorf("could not get variant flag: %w", err)
			}
			if _, err := ad5274.ParseVariant(variant); err != nil {
				return err
			}

			slog.Info("running hardware tests", "bus", bus, "strap", strap, "variant", variant)
			return runHardwareTests(cmd,
				"DIGIPOT_BUS="+bus,
				"DIGIPOT_STRAP="+strap,
				"DIGIPOT_VARIANT="+variant,
			)
		},
	}
	cmd.Flags().String("config", "", "YAML device config (bus, strap, variant, log_level); overrides the other flags")
	cmd.Flags().String("bus", "mcp2221", "bus path (mcp2221[:index], periph[:device], nanopi[:bus])")
	cmd.Flags().String("strap", "gnd", "ADDR pin strap (gnd, vdd, float or address)")
	cmd.Flags().String("variant", "ad5272", "part variant (ad5272, ad5274)")
	return cmd
}

// configEnv validates the device config at path and returns the environment
// pointing the hardware tests at it. Tests run in the package directory so
// the path is made absolute.
func configEnv(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve config path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("could not open config: %w", err)
	}
	defer f.Close()
	cfg, err := ad5274.LoadConfig(f)
	if err != nil {
		return nil, err
	}
	if _, err := busopen.Parse(cfg.Bus); err != nil {
		return nil, err
	}
	slog.Info("running hardware tests", "config", abs, "bus", cfg.Bus, "strap", cfg.Strap, "variant", cfg.Variant)
	return []string{"DIGIPOT_CONFIG=" + abs}, nil
}

func runHardwareTests(cmd *cobra.Command, env ...string) error {
	goTest := exec.CommandContext(cmd.Context(), "go", "test", "-tags", "hardware", "-count=1", "-v", "./ad5274/...")
	goTest.Env = append(os.Environ(), env...)
	if slog.Default().Enabled(cmd.Context(), slog.LevelDebug) {
		goTest.Env = append(goTest.Env, "DIGIPOT_LOG_LEVEL=debug")
	}
	goTest.Stdout = os.Stdout
	goTest.Stderr = os.Stderr
	if err := goTest.Run(); err != nil {
		return fmt.Errorf("failed to run hardware tests: %w", err)
	}
	return nil
}
