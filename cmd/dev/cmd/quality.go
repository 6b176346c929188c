package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run unit tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

// SmokeCmd runs the cli against the simulated card for a short while.
func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Monitor the simulated card to check the acquisition path end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, _ := cmd.Flags().GetString("duration")
			run := exec.CommandContext(cmd.Context(), "go", "run", mainPkg,
				"--adapter", "sim", "monitor", "--summary", "--duration", duration)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			slog.Info("running smoke test", "duration", duration)
			if err := run.Run(); err != nil {
				return fmt.Errorf("smoke test failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("duration", "3s", "how long to monitor")
	return cmd
}
