package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cosmac/vip8/internal/driver"
	"github.com/cosmac/vip8/internal/hal"
	"github.com/cosmac/vip8/internal/tui"
	"github.com/cosmac/vip8/internal/vm"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
	}

	verbose := cmd.Flags().BoolP("verbose", "v", false, "enable verbose logging")
	ips := cmd.Flags().Int("ips", 700, "instructions per second")
	useTUI := cmd.Flags().Bool("tui", false, "render in the terminal instead of an sdl window")
	shiftQuirk := cmd.Flags().Bool("shift-quirk", false, "8XY6/8XYE copy VY into VX before shifting")
	jumpQuirk := cmd.Flags().Bool("jump-quirk", false, "BNNN jumps to NNN plus VX instead of NNN plus V0")
	indexQuirk := cmd.Flags().Bool("index-quirk", false, "FX55/FX65 leave I pointing past the stored block")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if *verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))

		path := args[0]
		program, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to load file %q: %w", path, err)
		}

		front, shutdown, err := newFrontEnd(*useTUI)
		if err != nil {
			return err
		}
		defer shutdown()

		quirks := vm.Quirks{
			ShiftCopiesY:         *shiftQuirk,
			JumpOffsetUsesVX:     *jumpQuirk,
			LoadStoreIncrementsI: *indexQuirk,
		}

		return run(program, quirks, front, *ips)
	}

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newFrontEnd(useTUI bool) (driver.HAL, func(), error) {
	if useTUI {
		t, err := tui.New()
		if err != nil {
			return nil, nil, fmt.Errorf("unable to initialize tui: %w", err)
		}
		return t, t.Shutdown, nil
	}

	h, err := hal.New()
	if err != nil {
		return nil, nil, fmt.Errorf("unable to initialize hal: %w", err)
	}
	return h, h.Shutdown, nil
}

// run drives the program on a fresh machine, building another one for every
// reboot request so a reboot behaves like a cold start.
func run(program []byte, quirks vm.Quirks, front driver.HAL, ips int) error {
	for {
		machine := vm.New(vm.WithQuirks(quirks))
		if err := machine.Load(program); err != nil {
			return err
		}

		err := driver.New(machine, front, ips).Run()

		if errors.Is(err, driver.ErrQuit) {
			return nil
		}

		if errors.Is(err, driver.ErrReboot) {
			slog.Info("reboot")
			continue
		}

		return err
	}
}
