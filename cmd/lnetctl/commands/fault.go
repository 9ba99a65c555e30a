package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/cli/output"
	"github.com/lustre-net/lnetgo/pkg/lnetclient"
)

var faultCmd = &cobra.Command{
	Use:   "fault",
	Short: "Inject and clear synthetic message loss (test only)",
}

var faultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every armed fault injection",
	RunE:  runFaultList,
}

var faultFailCmd = &cobra.Command{
	Use:   "fail <nid> <threshold>",
	Short: "Arm synthetic loss for messages sent to/from nid",
	Args:  cobra.ExactArgs(2),
	RunE:  runFaultFail,
}

var faultClearCmd = &cobra.Command{
	Use:   "clear <nid>",
	Short: "Disarm fault injection for nid",
	Args:  cobra.ExactArgs(1),
	RunE:  runFaultClear,
}

func init() {
	faultCmd.AddCommand(faultListCmd, faultFailCmd, faultClearCmd)
}

func runFaultList(cmd *cobra.Command, args []string) error {
	faults, err := client().ListFaults()
	if err != nil {
		return fmt.Errorf("failed to list faults: %w", err)
	}
	if len(faults) == 0 {
		fmt.Println("No fault injections armed.")
		return nil
	}
	t := output.NewTableData("NID", "REMAINING")
	for nid, remaining := range faults {
		t.AddRow(nid, strconv.FormatUint(remaining, 10))
	}
	return output.PrintTable(os.Stdout, t)
}

func runFaultFail(cmd *cobra.Command, args []string) error {
	nid, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid nid %q: %w", args[0], err)
	}
	threshold, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[1], err)
	}
	if err := client().FailNID(lnetclient.FailNIDRequest{NID: nid, Threshold: threshold}); err != nil {
		return fmt.Errorf("failed to arm fault: %w", err)
	}
	fmt.Printf("Fault armed for nid %d (threshold %d).\n", nid, threshold)
	return nil
}

func runFaultClear(cmd *cobra.Command, args []string) error {
	nid, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid nid %q: %w", args[0], err)
	}
	if err := client().ClearFault(nid); err != nil {
		return fmt.Errorf("failed to clear fault: %w", err)
	}
	fmt.Printf("Fault cleared for nid %d.\n", nid)
	return nil
}
