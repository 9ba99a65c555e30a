package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/cli/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report node liveness and readiness",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := client()

	live, err := c.Liveness()
	if err != nil {
		return fmt.Errorf("liveness check failed: %w", err)
	}
	ready, err := c.Readiness()
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}

	return output.SimpleTable(os.Stdout, [][2]string{
		{"liveness", live.Status},
		{"readiness", ready.Status},
	})
}
